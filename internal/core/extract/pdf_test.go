package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTablesDetectsDelimitedRuns(t *testing.T) {
	pages := []string{
		"Intro text on page one.\n\nName | Age | City\nAlice | 30 | Paris\nBob | 25 | Lyon\n\nClosing text.",
		"Nothing tabular on page two at all.",
	}
	tables := FindTables(pages)
	require.Len(t, tables, 1)
	assert.Equal(t, 1, tables[0].Page)
	assert.Contains(t, tables[0].Text, "Table from page 1:")
	assert.Contains(t, tables[0].Text, "Alice | 30 | Paris")
}

func TestFindTablesIgnoresSingleRows(t *testing.T) {
	pages := []string{"one, two, three\n\nplain prose follows here"}
	assert.Empty(t, FindTables(pages))
}

func TestFindTablesMultiplePages(t *testing.T) {
	table := "a\tb\tc\nd\te\tf"
	pages := []string{table, "prose only", table}
	tables := FindTables(pages)
	require.Len(t, tables, 2)
	assert.Equal(t, 1, tables[0].Page)
	assert.Equal(t, 3, tables[1].Page)
	assert.Contains(t, tables[1].Text, "Table from page 3:")
}

func TestForFileDispatch(t *testing.T) {
	_, isPDF := ForFile("report.PDF").(*PDFExtractor)
	assert.True(t, isPDF)
	_, isDocconv := ForFile("notes.docx").(*DocconvExtractor)
	assert.True(t, isDocconv)
}
