package csv

import "strings"

const utf8BOM = "\uFEFF"

// CleanHeader strips a UTF-8 BOM from the first header cell and surrounding
// whitespace from every cell. It modifies h in place and returns it.
func CleanHeader(h []string) []string {
	for i := range h {
		if i == 0 {
			h[i] = strings.TrimPrefix(h[i], utf8BOM)
		}
		h[i] = strings.TrimSpace(h[i])
	}
	return h
}
