// Package content classifies text spans into content categories and
// re-serializes them deterministically per category. Classification is an
// ordered list of (predicate, category) rules evaluated top to bottom;
// the first match wins. Every predicate is pure, so identical input always
// yields the same category.
package content

import (
	"encoding/json"
	"encoding/xml"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"regexp"
	"strings"

	"github.com/cgc-labs/docquery/internal/models"
)

var (
	goPattern = regexp.MustCompile(
		`(?m)^\s*(?:func\s+(?:\(\w+\s+\*?\w+\)\s*)?\w+\s*\(|package\s+\w+|import\s+(?:\(|")|type\s+\w+\s+(?:struct|interface)\s*\{|(?:var|const)\s+\w+\s*=?)`)

	pythonPattern = regexp.MustCompile(
		`(?m)(?:def\s+\w+\s*\(|class\s+\w+\s*(?:\(|:)|import\s+\w+|from\s+\w+\s+import)`)

	jsPattern = regexp.MustCompile(
		`(?m)(?:function\s+\w+\s*\(|const\s+\w+\s*=|let\s+\w+\s*=|var\s+\w+\s*=|=>\s*\{|\}\)\()`)

	csharpPattern = regexp.MustCompile(
		`(?m)(?:namespace\s+\w+|using\s+\w+(?:\.\w+)*;|class\s+\w+\s*(?::|\{)|public\s+\w+\s+\w+)`)

	sqlPattern = regexp.MustCompile(
		`(?im)(?:SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|FROM|WHERE|JOIN)\s+\w+`)

	xmlPattern = regexp.MustCompile(
		`(?s)(?:<\?xml.*\?>|<!DOCTYPE.*>|<[a-zA-Z][a-zA-Z0-9]*(?:\s+[a-zA-Z][a-zA-Z0-9]*=".*")*\s*>)`)

	xmlTagPattern = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*[^>]*>`)

	jsonPattern = regexp.MustCompile(`(?s)\s*[{\[]\s*["']?\w+["']?\s*:.*`)

	jsonKVPattern = regexp.MustCompile(
		`"[^"]+"\s*:\s*(?:"[^"]*"|\d+|true|false|null|\{|\[)`)

	mathPattern = regexp.MustCompile(
		`(?s)(?:\$\$.+?\$\$|\$.+?\$|\\begin\{(?:equation|align|gather|math)\}.*?\\end\{(?:equation|align|gather|math)\})`)

	looseEquation = regexp.MustCompile(`(?i)[a-z]\s*=\s*[a-z0-9]`)

	listPattern = regexp.MustCompile(
		`(?m)(?:^\s*[*\-+]\s+.+$|^\s*\d+\.\s+.+$|^\s*[a-z]\)\s+.+$|^\s*[ixv]+\.\s+.+$)`)

	indentPattern = regexp.MustCompile(`(?m)^\s{4}\S`)

	allCapsHeading  = regexp.MustCompile(`^[A-Z\s]+$`)
	numberedHeading = regexp.MustCompile(`^\d+\.\s.*$`)

	twoSpaceRun = regexp.MustCompile(`\s{2,}`)

	codeStatementTail  = regexp.MustCompile(`[{};]\s*$`)
	closingBracketLead = regexp.MustCompile(`^\s*[)}]`)
)

// tableRatio is the fraction of non-blank lines that must look tabular.
const tableRatio = 0.3

// codeLineRatio is the fraction of non-blank lines that must look like code
// statements for the generic code fallback.
const codeLineRatio = 0.3

// goParseErrorLimit is the lenient-parse acceptance threshold for Go code.
const goParseErrorLimit = 5

// minListItems is how many list-shaped lines make a list.
const minListItems = 3

type rule struct {
	category models.ContentType
	match    func(string) bool
}

// Rules are evaluated in order; the first predicate that fires decides the
// category. Order matters: tabular layout beats markup, markup beats code,
// code beats the formula/list/heading heuristics.
var rules = []rule{
	{models.ContentTable, IsLikelyTable},
	{models.ContentCodeXML, IsXMLContent},
	{models.ContentCodeJSON, IsJSONContent},
	{models.ContentCodeGo, IsGoCode},
	{models.ContentCodePython, IsPythonCode},
	{models.ContentCodeJS, IsJavaScriptCode},
	{models.ContentCodeCSharp, IsCSharpCode},
	{models.ContentCodeSQL, IsSQLCode},
	{models.ContentCodeOther, IsOtherCode},
	{models.ContentMathFormula, IsMathFormula},
	{models.ContentList, IsList},
	{models.ContentHeading, isHeading},
}

// Detect returns the content category for a text span.
func Detect(text string) models.ContentType {
	for _, r := range rules {
		if r.match(text) {
			return r.category
		}
	}
	return models.ContentText
}

// IsLikelyTable reports whether more than 30% of the non-blank lines split
// into three or more fields under any of the common table delimiters
// (two-space runs, tabs, pipes, commas).
func IsLikelyTable(text string) bool {
	lineCount := 0
	tableLineCount := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lineCount++
		if len(twoSpaceRun.Split(trimmed, -1)) > 2 ||
			len(strings.Split(trimmed, "\t")) > 2 ||
			len(strings.Split(trimmed, "|")) > 2 ||
			len(strings.Split(trimmed, ",")) > 2 {
			tableLineCount++
		}
	}
	return lineCount > 0 && tableLineCount > 0 &&
		float64(tableLineCount)/float64(lineCount) > tableRatio
}

// IsXMLContent reports whether the span is well-formed XML, or failing that,
// dense with XML tags.
func IsXMLContent(text string) bool {
	if !xmlPattern.MatchString(text) {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "<?xml") && !strings.HasPrefix(trimmed, "<!DOCTYPE") &&
		!(strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">")) {
		return false
	}
	if xmlWellFormed(text) {
		return true
	}
	return len(xmlTagPattern.FindAllString(text, -1)) >= 3
}

func xmlWellFormed(text string) bool {
	dec := xml.NewDecoder(strings.NewReader(text))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return true
		}
		if err != nil {
			return false
		}
	}
}

// IsJSONContent reports whether the span parses as JSON, or failing that,
// contains at least two key-value pairs in JSON shape.
func IsJSONContent(text string) bool {
	if !jsonPattern.MatchString(text) {
		return false
	}
	trimmed := strings.TrimSpace(text)
	object := strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
	array := strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
	if !object && !array {
		return false
	}
	if json.Valid([]byte(trimmed)) {
		return true
	}
	return len(jsonKVPattern.FindAllString(text, -1)) >= 2
}

// IsGoCode requires a declaration-shaped signature match, then validates by
// parsing the span leniently and accepting it when the parse produces fewer
// than goParseErrorLimit errors.
func IsGoCode(text string) bool {
	if !goPattern.MatchString(text) {
		return false
	}
	src := text
	if !strings.Contains(src, "package ") {
		src = "package p\n" + src
	}
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "", src, parser.AllErrors|parser.SkipObjectResolution)
	if err == nil {
		return true
	}
	if list, ok := err.(scanner.ErrorList); ok {
		return len(list) < goParseErrorLimit
	}
	return false
}

// IsPythonCode requires two signature matches, or one match plus an
// indentation cue (a 4-space indented line).
func IsPythonCode(text string) bool {
	matches := len(pythonPattern.FindAllString(text, -1))
	return matches >= 2 || (matches >= 1 && indentPattern.MatchString(text))
}

// IsJavaScriptCode requires two signature matches, or one match plus a
// JS-specific cue.
func IsJavaScriptCode(text string) bool {
	matches := len(jsPattern.FindAllString(text, -1))
	hasJSFeatures := strings.Contains(text, "document.") || strings.Contains(text, "window.") ||
		strings.Contains(text, "$.") || strings.Contains(text, "React.")
	return matches >= 2 || (matches >= 1 && hasJSFeatures)
}

// IsCSharpCode matches C# structural keywords.
func IsCSharpCode(text string) bool {
	return csharpPattern.MatchString(text)
}

// IsSQLCode matches SQL statement keywords.
func IsSQLCode(text string) bool {
	return sqlPattern.MatchString(text)
}

// IsOtherCode is the generic fallback: more than 30% of non-blank lines
// shaped like code statements, over a minimum line count.
func IsOtherCode(text string) bool {
	codeLines := 0
	totalLines := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		totalLines++
		if strings.HasPrefix(trimmed, "if ") || strings.HasPrefix(trimmed, "for ") ||
			strings.HasPrefix(trimmed, "while ") || strings.Contains(trimmed, " = ") ||
			strings.Contains(trimmed, "==") || strings.Contains(trimmed, "!=") ||
			strings.Contains(trimmed, "<=") || strings.Contains(trimmed, ">=") ||
			codeStatementTail.MatchString(trimmed) || closingBracketLead.MatchString(trimmed) {
			codeLines++
		}
	}
	return totalLines > 5 && float64(codeLines)/float64(totalLines) > codeLineRatio
}

// IsMathFormula matches TeX-style delimiters or a loose `var = expr` shape.
func IsMathFormula(text string) bool {
	if mathPattern.MatchString(text) {
		return true
	}
	return strings.Contains(text, "=") && looseEquation.MatchString(text)
}

// IsList requires at least three lines shaped like bullet, numbered or
// lettered list items.
func IsList(text string) bool {
	return len(listPattern.FindAllString(text, -1)) >= minListItems
}

func isHeading(text string) bool {
	if allCapsHeading.MatchString(text) && len(text) < 100 {
		return true
	}
	if numberedHeading.MatchString(text) && len(text) < 150 {
		return true
	}
	return len(text) < 50 && !strings.Contains(text, " ")
}
