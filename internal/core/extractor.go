package core

import (
	"context"
)

// PageTable is one extracted table, tagged with its source page.
type PageTable struct {
	Page int
	Text string
}

// PageExtractor pulls per-page text and table content out of an uploaded
// document. Implementations may fail on malformed input.
type PageExtractor interface {
	// ExtractPages returns one plain-text string per page, in page order.
	ExtractPages(ctx context.Context, data []byte) ([]string, error)

	// ExtractTables returns table content found in the document, each entry
	// tagged with the page it came from.
	ExtractTables(ctx context.Context, data []byte) ([]PageTable, error)
}
