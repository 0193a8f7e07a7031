// Package all wires every built-in dialect into the storage registry.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each backend, which register their
// dialects with the storage package. After the import, storage.Open accepts
// the kinds "sqlite", "postgres", "mssql" and "mysql".
//
// A binary that needs only a subset can blank-import the individual backend
// packages instead.
package all

import (
	_ "tableflow/internal/storage/mssql"
	_ "tableflow/internal/storage/mysql"
	_ "tableflow/internal/storage/postgres"
	_ "tableflow/internal/storage/sqlite"
)
