// Package chunker groups extracted page text into bounded-size,
// type-coherent passages. It never drops a paragraph: every paragraph that
// survives the noise filter lands in exactly one output chunk, in order.
package chunker

import (
	"regexp"
	"strings"

	"github.com/cgc-labs/docquery/internal/core/content"
	"github.com/cgc-labs/docquery/internal/models"
)

var (
	headingLine  = regexp.MustCompile(`(?m)^\s*((?:[0-9]+\.)+\s+[A-Za-z][A-Za-z\s]+|[A-Z][A-Za-z\s]+:?)$`)
	numberedItem = regexp.MustCompile(`^\d+\.\s.*$`)
	labelNumeric = regexp.MustCompile(`^[0-9.]+\s+.*$`)
	labelTitle   = regexp.MustCompile(`^[A-Z][A-Za-z\s]+$`)
	labelColon   = regexp.MustCompile(`^[A-Z][A-Za-z\s]+:$`)
)

// Chunker builds semantic chunks from per-page text.
type Chunker struct {
	chunkSize int
}

// New returns a chunker targeting the given chunk size in characters.
func New(chunkSize int) *Chunker {
	return &Chunker{chunkSize: chunkSize}
}

// Chunk walks the pages in order and accumulates paragraphs into chunks.
// A chunk is flushed before a paragraph is appended when any of these holds:
// the paragraph's category differs from the previous one and either side is
// special (code or table), appending would exceed the target size, the
// paragraph opens a list or table while the buffer is not already in list
// mode, or the paragraph is a standalone heading/label line. Special
// paragraphs are additionally flushed right after appending so code and
// tables never merge with unrelated text. When a page introduces a new
// section heading, the buffer is flushed and subsequent flushes re-seed the
// new buffer with a `[Section: <label>]` prefix.
func (c *Chunker) Chunk(pages []string) []string {
	var result []string
	var buf strings.Builder
	size := 0
	var lastType models.ContentType
	inList := false
	section := ""

	flush := func() {
		result = append(result, buf.String())
		buf.Reset()
		size = 0
	}

	for _, page := range pages {
		headings := ExtractHeadings(page)
		if len(headings) > 0 && section != headings[0] {
			if size > 0 {
				flush()
			}
			section = headings[0]
		}
		for _, paragraph := range SplitParagraphs(page) {
			curType := content.Detect(paragraph)
			special := curType.IsSpecial()
			typeChange := curType != lastType

			startNew := false
			if size > 0 && typeChange && (special || lastType.IsSpecial()) {
				startNew = true
			}
			if size > 0 && size+len(paragraph) > c.chunkSize {
				startNew = true
			}
			if curType == models.ContentTable || looksLikeListItem(paragraph) {
				if size > 0 && !inList {
					startNew = true
				}
				inList = true
			} else {
				inList = false
			}
			if looksLikeLabel(paragraph) && size > 0 {
				startNew = true
			}

			if startNew {
				flush()
				if section != "" {
					buf.WriteString("[Section: " + section + "]\n\n")
					size += len(section) + 13
				}
			}
			if size > 0 {
				buf.WriteString("\n\n")
				size += 2
			}
			buf.WriteString(paragraph)
			size += len(paragraph)
			lastType = curType

			if special && size > 0 {
				flush()
				lastType = ""
			}
		}
	}
	if size > 0 {
		flush()
	}
	return result
}

// ExtractHeadings returns heading-like lines found in page text, in order:
// numbered section labels ("2.1 Methods") and capitalized title lines.
func ExtractHeadings(text string) []string {
	var headings []string
	for _, m := range headingLine.FindAllStringSubmatch(text, -1) {
		headings = append(headings, strings.TrimSpace(m[1]))
	}
	return headings
}

func looksLikeListItem(p string) bool {
	return strings.HasPrefix(p, "- ") || strings.HasPrefix(p, "* ") ||
		numberedItem.MatchString(p)
}

func looksLikeLabel(p string) bool {
	t := strings.TrimSpace(p)
	return labelNumeric.MatchString(t) || labelTitle.MatchString(t) || labelColon.MatchString(t)
}
