package chunker

import (
	"regexp"
	"strings"
)

var (
	paragraphBreak = regexp.MustCompile(`(?:\r\n|\r|\n){2,}`)
	digitsOnly     = regexp.MustCompile(`^[\d\s]+$`)
	hyphenBreak    = regexp.MustCompile(`-[ \t]*\n[ \t]*`)
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// minParagraphLen drops page-number fragments and stray artifacts.
const minParagraphLen = 10

// SplitParagraphs splits page text on blank-line runs and filters out noise:
// short fragments, lines that are only digits and whitespace, extraction
// artifacts. Paragraph internals (single newlines, spacing) are preserved so
// tabular and code layout survives for classification.
func SplitParagraphs(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if len(p) <= minParagraphLen {
			continue
		}
		if digitsOnly.MatchString(p) {
			continue
		}
		p = cleanParagraph(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cleanParagraph(p string) string {
	p = strings.ReplaceAll(p, "\r\n", "\n")
	p = strings.ReplaceAll(p, "\r", "\n")
	// Rejoin words hyphenated across line breaks.
	p = hyphenBreak.ReplaceAllString(p, "")
	p = controlChars.ReplaceAllString(p, "")
	return strings.TrimSpace(p)
}
