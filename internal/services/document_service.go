// Package services holds the ingestion and query orchestrators.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cfg "github.com/cgc-labs/docquery/internal/config"
	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/core/chunker"
	"github.com/cgc-labs/docquery/internal/core/content"
	"github.com/cgc-labs/docquery/internal/core/extract"
	"github.com/cgc-labs/docquery/internal/core/storage"
	"github.com/cgc-labs/docquery/internal/models"
)

// embedGroupSize is how many chunks are embedded per call during ingestion.
const embedGroupSize = 20

// UploadFile is one uploaded document as received by the HTTP layer.
type UploadFile struct {
	Name string
	Data []byte
}

// StatusReport is the aggregate view of ingestion progress.
type StatusReport struct {
	ActiveProcessingCount int                                `json:"active_processing_count"`
	TotalInProgress       int                                `json:"total_documents_in_progress"`
	Processing            int                                `json:"processing"`
	Completed             int                                `json:"completed"`
	Failed                int                                `json:"failed"`
	Documents             map[string]models.ProcessingStatus `json:"documents"`
}

// extractorFor is swapped in tests to avoid real document parsing.
type extractorFor func(filename string) core.PageExtractor

// DocumentService drives ingestion: extract, chunk, embed, persist. Each
// document is processed by exactly one task; progress runs 0-100 with -1 as
// the terminal failed state.
type DocumentService struct {
	store     *storage.Store
	embedder  core.EmbeddingProvider
	chunker   *chunker.Chunker
	conf      *cfg.Config
	log       *slog.Logger
	extractor extractorFor

	mu       sync.RWMutex
	statuses map[string]*models.ProcessingStatus
	inFlight atomic.Int32
}

func NewDocumentService(store *storage.Store, embedder core.EmbeddingProvider, conf *cfg.Config) *DocumentService {
	return &DocumentService{
		store:     store,
		embedder:  embedder,
		chunker:   chunker.New(conf.ChunkSize),
		conf:      conf,
		log:       slog.With("component", "documents"),
		extractor: extract.ForFile,
		statuses:  make(map[string]*models.ProcessingStatus),
	}
}

// ProcessDocument ingests one file synchronously and returns its metadata.
func (s *DocumentService) ProcessDocument(ctx context.Context, file UploadFile) (*models.Document, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.statuses[id] = &models.ProcessingStatus{
		Filename:    file.Name,
		Progress:    0,
		Message:     "Starting",
		LastUpdated: time.Now(),
	}
	s.mu.Unlock()

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	doc, err := s.process(ctx, id, file)
	if err != nil {
		s.updateStatus(id, -1, "Failed: "+err.Error())
		s.log.Error("document processing failed", "id", id, "file", file.Name, "error", err)
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) process(ctx context.Context, id string, file UploadFile) (*models.Document, error) {
	start := time.Now()
	safeName := sanitizeFilename(file.Name)
	if err := s.store.StoreFile(ctx, safeName, file.Data); err != nil {
		return nil, err
	}

	extractor := s.extractor(file.Name)
	s.updateStatus(id, 10, "Extracting content")
	pages, err := extractor.ExtractPages(ctx, file.Data)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	s.updateStatus(id, 60, fmt.Sprintf("Extracted %d pages", len(pages)))

	tables, err := extractor.ExtractTables(ctx, file.Data)
	if err != nil {
		return nil, fmt.Errorf("extract tables: %w", err)
	}
	s.updateStatus(id, 60, "Processing tables")
	tableChunks := make([]models.Chunk, 0, len(tables))
	for _, table := range tables {
		if strings.TrimSpace(table.Text) == "" {
			continue
		}
		embedding, err := s.embedder.EmbedText(ctx, table.Text)
		if err != nil {
			return nil, fmt.Errorf("embed table: %w", err)
		}
		tableChunks = append(tableChunks, models.Chunk{
			Text:        table.Text,
			Embedding:   embedding,
			StartPage:   table.Page,
			EndPage:     table.Page,
			ContentType: models.ContentTable,
		})
	}

	s.updateStatus(id, 70, "Generating semantic chunks")
	textChunks := s.chunker.Chunk(pages)

	s.updateStatus(id, 75, "Creating embeddings")
	contentChunks, err := s.embedChunks(ctx, id, textChunks, len(pages))
	if err != nil {
		return nil, err
	}

	s.updateStatus(id, 95, "Finalizing document")
	allChunks := append(tableChunks, contentChunks...)
	doc := &models.Document{
		ID:              id,
		Filename:        file.Name,
		PageCount:       len(pages),
		ChunksCount:     len(allChunks),
		ProcessedTimeMs: time.Since(start).Milliseconds(),
		StoragePath:     safeName,
		FileSize:        int64(len(file.Data)),
	}
	if err := s.store.StoreChunks(ctx, id, allChunks); err != nil {
		return nil, err
	}
	if err := s.store.StoreMetadata(ctx, doc); err != nil {
		return nil, err
	}
	s.updateStatus(id, 100, "Completed")
	s.log.Info("document processed", "id", id, "file", file.Name,
		"chunks", len(allChunks), "elapsed_ms", doc.ProcessedTimeMs)
	return doc, nil
}

// embedChunks classifies, formats and embeds the semantic chunks in groups,
// advancing progress from 75 toward 95 as groups complete.
func (s *DocumentService) embedChunks(ctx context.Context, id string, textChunks []string, pageCount int) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, 0, len(textChunks))
	type pending struct {
		text     string
		category models.ContentType
	}
	var group []pending

	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		texts := make([]string, len(group))
		for i, p := range group {
			texts[i] = p.text
		}
		embeddings, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(embeddings) != len(group) {
			return fmt.Errorf("embed chunks: got %d embeddings for %d texts", len(embeddings), len(group))
		}
		for i, p := range group {
			chunks = append(chunks, models.Chunk{
				Text:        p.text,
				Embedding:   embeddings[i],
				StartPage:   1,
				EndPage:     pageCount,
				ContentType: p.category,
			})
		}
		group = group[:0]
		progress := 75 + int(float64(len(chunks))/float64(len(textChunks))*20)
		if progress > 95 {
			progress = 95
		}
		s.updateStatus(id, progress, fmt.Sprintf("Created embeddings for %d/%d chunks", len(chunks), len(textChunks)))
		return nil
	}

	for _, text := range textChunks {
		if strings.TrimSpace(text) == "" {
			continue
		}
		category := content.Detect(text)
		group = append(group, pending{text: content.Format(text, category), category: category})
		if len(group) >= embedGroupSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// ProcessDocuments ingests files one after another; failures are logged and
// skipped so one bad file does not sink the batch.
func (s *DocumentService) ProcessDocuments(ctx context.Context, files []UploadFile) []*models.Document {
	docs := make([]*models.Document, 0, len(files))
	for _, file := range files {
		doc, err := s.ProcessDocument(ctx, file)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// ProcessDocumentsAsync fans out one task per file on a bounded pool and
// returns immediately. Progress is observable through Status.
func (s *DocumentService) ProcessDocumentsAsync(files []UploadFile) {
	g := new(errgroup.Group)
	g.SetLimit(s.conf.WorkerPoolSize)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if _, err := s.ProcessDocument(context.Background(), file); err != nil {
				s.log.Error("background processing failed", "file", file.Name, "error", err)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
	}()
}

func (s *DocumentService) updateStatus(id string, progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[id]; ok {
		st.Update(progress, message)
		s.log.Debug("processing status", "id", id, "progress", progress, "message", message)
	}
}

// DocumentStatus returns the progress record for one document.
func (s *DocumentService) DocumentStatus(id string) (models.ProcessingStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[id]
	if !ok {
		return models.ProcessingStatus{}, false
	}
	return *st, true
}

// Status reports in-flight counts plus per-document records that are either
// still in progress or updated within the last hour.
func (s *DocumentService) Status() StatusReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := StatusReport{
		ActiveProcessingCount: int(s.inFlight.Load()),
		TotalInProgress:       len(s.statuses),
		Documents:             make(map[string]models.ProcessingStatus),
	}
	cutoff := time.Now().Add(-time.Hour)
	for id, st := range s.statuses {
		inProgress := st.Progress >= 0 && st.Progress < 100
		if !inProgress && st.LastUpdated.Before(cutoff) {
			continue
		}
		report.Documents[id] = *st
		switch {
		case st.Progress < 0:
			report.Failed++
		case st.Progress >= 100:
			report.Completed++
		default:
			report.Processing++
		}
	}
	return report
}

// GetDocument returns stored metadata overlaid with live processing status.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.store.LoadMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if st, ok := s.DocumentStatus(id); ok {
		doc.ProcessingStatus = st.Progress
		doc.ProcessingMessage = st.Message
	}
	return doc, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	return s.store.ListDocuments(ctx)
}

// ListDocumentIDs returns the ids of every stored document.
func (s *DocumentService) ListDocumentIDs(ctx context.Context) ([]string, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// RemoveDocument deletes one document. The bool reports whether it existed.
func (s *DocumentService) RemoveDocument(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	delete(s.statuses, id)
	s.mu.Unlock()
	return s.store.DeleteDocument(ctx, id)
}

// RemoveAllDocuments deletes everything and returns the count removed.
func (s *DocumentService) RemoveAllDocuments(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.statuses = make(map[string]*models.ProcessingStatus)
	s.mu.Unlock()
	return s.store.DeleteAll(ctx)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	return unsafeFilenameChars.ReplaceAllString(base, "_")
}
