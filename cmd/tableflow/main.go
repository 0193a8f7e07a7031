// Command tableflow loads delimited files into a SQL store, normalizes them
// and materializes declarative pipelines over the result.
package main

import (
	"fmt"
	"log"
	"os"

	// every dialect is compiled in; --store picks one at runtime.
	_ "tableflow/internal/storage/all"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tableflow:", err)
		os.Exit(ExitCode(err))
	}
}
