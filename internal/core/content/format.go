package content

import (
	"regexp"
	"strings"

	"github.com/cgc-labs/docquery/internal/models"
)

var blankRun = regexp.MustCompile(`\n{3,}`)

// fenceTags maps code categories to fenced-block language tags.
var fenceTags = map[models.ContentType]string{
	models.ContentCodeGo:     "go",
	models.ContentCodePython: "python",
	models.ContentCodeJS:     "javascript",
	models.ContentCodeCSharp: "csharp",
	models.ContentCodeSQL:    "sql",
	models.ContentCodeXML:    "xml",
	models.ContentCodeJSON:   "json",
	models.ContentCodeOther:  "",
}

// Format re-serializes a span for its category. Formatting is deterministic
// and never drops text: code gets fenced with a language tag, math gets a
// recognizable prefix unless it already carries TeX delimiters, lists get
// their blank runs collapsed. Tables, headings and plain text pass through.
func Format(text string, category models.ContentType) string {
	switch {
	case category.IsCode():
		tag := fenceTags[category]
		body := strings.TrimSpace(blankRun.ReplaceAllString(text, "\n\n"))
		return "```" + tag + "\n" + body + "\n```"
	case category == models.ContentMathFormula:
		if strings.Contains(text, "$") || strings.Contains(text, "\\begin{") {
			return text
		}
		return "Math Formula:\n" + strings.TrimSpace(text)
	case category == models.ContentList:
		return strings.TrimSpace(blankRun.ReplaceAllString(text, "\n\n"))
	default:
		return text
	}
}
