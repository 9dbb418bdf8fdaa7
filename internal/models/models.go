package models

import (
	"time"
)

// ContentType classifies what kind of content a passage holds.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentTable       ContentType = "table"
	ContentHeading     ContentType = "heading"
	ContentList        ContentType = "list"
	ContentMathFormula ContentType = "math_formula"
	ContentCodeGo      ContentType = "code_go"
	ContentCodePython  ContentType = "code_python"
	ContentCodeJS      ContentType = "code_javascript"
	ContentCodeCSharp  ContentType = "code_csharp"
	ContentCodeSQL     ContentType = "code_sql"
	ContentCodeXML     ContentType = "code_xml"
	ContentCodeJSON    ContentType = "code_json"
	ContentCodeOther   ContentType = "code_other"
)

// IsCode reports whether the type is one of the code variants.
func (c ContentType) IsCode() bool {
	switch c {
	case ContentCodeGo, ContentCodePython, ContentCodeJS, ContentCodeCSharp,
		ContentCodeSQL, ContentCodeXML, ContentCodeJSON, ContentCodeOther:
		return true
	}
	return false
}

// IsSpecial reports whether the type must never be merged with unrelated
// surrounding content during chunking: tables and executable code variants.
func (c ContentType) IsSpecial() bool {
	switch c {
	case ContentTable, ContentCodeGo, ContentCodePython, ContentCodeJS,
		ContentCodeCSharp, ContentCodeSQL, ContentCodeOther:
		return true
	}
	return false
}

// Document is the metadata persisted for one ingested document.
type Document struct {
	ID                string `json:"id"`
	Filename          string `json:"filename"`
	PageCount         int    `json:"page_count"`
	ChunksCount       int    `json:"chunks_count"`
	ProcessedTimeMs   int64  `json:"processed_time_ms"`
	ContentType       string `json:"content_type,omitempty"`
	ProcessingStatus  int    `json:"processing_status"`
	ProcessingMessage string `json:"processing_message,omitempty"`
	StoragePath       string `json:"storage_path,omitempty"`
	FileSize          int64  `json:"file_size"`
}

// Chunk is one passage of a document: the unit of retrieval.
// Embedding may be nil for passages that were never scored.
type Chunk struct {
	Text        string      `json:"text"`
	Embedding   []float32   `json:"embedding,omitempty"`
	StartPage   int         `json:"start_page"`
	EndPage     int         `json:"end_page"`
	ContentType ContentType `json:"content_type"`
}

// RankedChunk pairs a chunk with its relevance score for one query.
// It only exists while a query is being processed.
type RankedChunk struct {
	Chunk Chunk
	Score float32
}

// ProcessingStatus tracks ingestion progress for one document.
// Progress runs 0-100 on the happy path; negative means failed.
type ProcessingStatus struct {
	Filename    string    `json:"filename"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	LastUpdated time.Time `json:"last_updated"`
}

// Update sets progress and message and stamps the record.
func (s *ProcessingStatus) Update(progress int, message string) {
	s.Progress = progress
	s.Message = message
	s.LastUpdated = time.Now()
}

// QueryResult is the outcome of answering one question.
type QueryResult struct {
	Answer           string  `json:"answer"`
	ConfidenceScore  float32 `json:"confidence_score"`
	RelevantChunks   []Chunk `json:"-"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}
