// Package extract turns uploaded documents into per-page plain text and
// table content.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cgc-labs/docquery/internal/core"
)

// PDFExtractor reads PDF files page by page.
type PDFExtractor struct {
	log *slog.Logger
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{log: slog.With("component", "extract")}
}

func (e *PDFExtractor) ExtractPages(_ context.Context, data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			e.log.Warn("null pdf page", "page", i)
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ExtractTables scans each page for runs of table-shaped lines and returns
// them tagged with their source page.
func (e *PDFExtractor) ExtractTables(ctx context.Context, data []byte) ([]core.PageTable, error) {
	pages, err := e.ExtractPages(ctx, data)
	if err != nil {
		return nil, err
	}
	return FindTables(pages), nil
}

var fieldRun = regexp.MustCompile(`\s{2,}`)

// minTableRun is how many consecutive table-shaped lines make a table.
const minTableRun = 2

// FindTables collects runs of at least minTableRun consecutive lines that
// split into three or more fields under a common delimiter. Each run becomes
// one table string prefixed with its source page.
func FindTables(pages []string) []core.PageTable {
	var tables []core.PageTable
	for pageIdx, page := range pages {
		var run []string
		flush := func() {
			if len(run) >= minTableRun {
				tables = append(tables, core.PageTable{
					Page: pageIdx + 1,
					Text: fmt.Sprintf("Table from page %d:\n\n%s", pageIdx+1, strings.Join(run, "\n")),
				})
			}
			run = nil
		}
		for _, line := range strings.Split(page, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && isTableRow(trimmed) {
				run = append(run, trimmed)
				continue
			}
			flush()
		}
		flush()
	}
	return tables
}

func isTableRow(line string) bool {
	return len(fieldRun.Split(line, -1)) > 2 ||
		len(strings.Split(line, "\t")) > 2 ||
		len(strings.Split(line, "|")) > 2 ||
		len(strings.Split(line, ",")) > 2
}
