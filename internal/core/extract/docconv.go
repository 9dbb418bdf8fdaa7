package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/cgc-labs/docquery/internal/core"
)

// DocconvExtractor handles the non-PDF formats docconv understands (docx,
// odt, rtf, html, plain text, ...). docconv flattens the document, so the
// whole body is returned as a single page and no tables are reported.
type DocconvExtractor struct {
	mimeType string
}

func NewDocconvExtractor(mimeType string) *DocconvExtractor {
	return &DocconvExtractor{mimeType: mimeType}
}

func (e *DocconvExtractor) ExtractPages(_ context.Context, data []byte) ([]string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), e.mimeType, true)
	if err != nil {
		return nil, fmt.Errorf("convert document: %w", err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, fmt.Errorf("no text content extracted")
	}
	return []string{res.Body}, nil
}

func (e *DocconvExtractor) ExtractTables(_ context.Context, _ []byte) ([]core.PageTable, error) {
	return nil, nil
}

// ForFile picks the extractor for an uploaded filename by extension.
func ForFile(filename string) core.PageExtractor {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return NewPDFExtractor()
	}
	return NewDocconvExtractor(docconv.MimeTypeByExtension(filename))
}
