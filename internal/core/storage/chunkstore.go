package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"

	cfg "github.com/cgc-labs/docquery/internal/config"
	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/models"
)

const (
	metadataPrefix = "metadata/"
	chunksPrefix   = "chunks/"
	filesPrefix    = "files/"
)

// chunkIndex is the per-document index record, written after every batch
// record so that a readable index always implies complete batches.
type chunkIndex struct {
	Count int `json:"count"`
}

// Store persists a document's ordered chunk list in fixed-size batches plus
// an index record, and document metadata as single records. Reads go through
// a bounded LRU cache with idle expiry when caching is enabled.
type Store struct {
	records    core.RecordStore
	batchSize  int
	chunkCache *expirable.LRU[string, []models.Chunk]
	metaCache  *expirable.LRU[string, *models.Document]
	log        *slog.Logger
}

func NewStore(records core.RecordStore, conf *cfg.Config) *Store {
	s := &Store{
		records:   records,
		batchSize: conf.ChunkBatchSize,
		log:       slog.With("component", "storage"),
	}
	if conf.CacheEnabled {
		s.chunkCache = expirable.NewLRU[string, []models.Chunk](conf.CacheMaxSize, nil, conf.CacheExpiry)
		s.metaCache = expirable.NewLRU[string, *models.Document](conf.CacheMaxSize, nil, conf.CacheExpiry)
	}
	return s
}

func metadataKey(id string) string { return metadataPrefix + id }
func indexKey(id string) string    { return chunksPrefix + id + "/index" }
func batchKey(id string, start int) string {
	return fmt.Sprintf("%s%s/%06d", chunksPrefix, id, start)
}
func fileKey(name string) string { return filesPrefix + name }

// StoreChunks writes the chunk list in batches keyed by their start index,
// then writes the index record last. A failed batch write leaves no readable
// index, so partial writes are never observed as a complete document.
func (s *Store) StoreChunks(ctx context.Context, docID string, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		data, err := json.Marshal(chunks[start:end])
		if err != nil {
			return fmt.Errorf("marshal chunk batch %s/%d: %w", docID, start, err)
		}
		if err := s.records.Put(ctx, batchKey(docID, start), data); err != nil {
			return fmt.Errorf("store chunk batch %s/%d: %w", docID, start, err)
		}
	}
	idx, err := json.Marshal(chunkIndex{Count: len(chunks)})
	if err != nil {
		return fmt.Errorf("marshal chunk index %s: %w", docID, err)
	}
	if err := s.records.Put(ctx, indexKey(docID), idx); err != nil {
		return fmt.Errorf("store chunk index %s: %w", docID, err)
	}
	if s.chunkCache != nil {
		s.chunkCache.Add(docID, chunks)
	}
	return nil
}

// LoadChunks returns the document's chunks in stored order, serving from
// cache when possible.
func (s *Store) LoadChunks(ctx context.Context, docID string) ([]models.Chunk, error) {
	if s.chunkCache != nil {
		if chunks, ok := s.chunkCache.Get(docID); ok {
			return chunks, nil
		}
	}
	data, err := s.records.Get(ctx, indexKey(docID))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("load chunk index %s: %w", docID, err)
	}
	var idx chunkIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode chunk index %s: %w", docID, err)
	}
	chunks := make([]models.Chunk, 0, idx.Count)
	for start := 0; start < idx.Count; start += s.batchSize {
		data, err := s.records.Get(ctx, batchKey(docID, start))
		if err != nil {
			return nil, fmt.Errorf("load chunk batch %s/%d: %w", docID, start, err)
		}
		var batch []models.Chunk
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode chunk batch %s/%d: %w", docID, start, err)
		}
		chunks = append(chunks, batch...)
	}
	if s.chunkCache != nil {
		s.chunkCache.Add(docID, chunks)
	}
	return chunks, nil
}

func (s *Store) StoreMetadata(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", doc.ID, err)
	}
	if err := s.records.Put(ctx, metadataKey(doc.ID), data); err != nil {
		return fmt.Errorf("store metadata %s: %w", doc.ID, err)
	}
	if s.metaCache != nil {
		s.metaCache.Add(doc.ID, doc)
	}
	return nil
}

func (s *Store) LoadMetadata(ctx context.Context, docID string) (*models.Document, error) {
	if s.metaCache != nil {
		if doc, ok := s.metaCache.Get(docID); ok {
			return doc, nil
		}
	}
	data, err := s.records.Get(ctx, metadataKey(docID))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("load metadata %s: %w", docID, err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", docID, err)
	}
	if s.metaCache != nil {
		s.metaCache.Add(docID, &doc)
	}
	return &doc, nil
}

// StoreFile keeps the original upload alongside the derived records.
func (s *Store) StoreFile(ctx context.Context, name string, data []byte) error {
	if err := s.records.Put(ctx, fileKey(name), data); err != nil {
		return fmt.Errorf("store file %s: %w", name, err)
	}
	return nil
}

func (s *Store) LoadFile(ctx context.Context, name string) ([]byte, error) {
	return s.records.Get(ctx, fileKey(name))
}

// ListDocuments returns metadata for every stored document.
func (s *Store) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	keys, err := s.records.List(ctx, metadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]*models.Document, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, metadataPrefix)
		doc, err := s.LoadMetadata(ctx, id)
		if err != nil {
			s.log.Warn("skipping unreadable metadata record", "id", id, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteDocument removes the metadata record, every chunk record under the
// document's prefix, the original uploaded file if tracked, and invalidates
// both caches. The returned bool reports whether metadata existed.
func (s *Store) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	existed := true
	doc, err := s.LoadMetadata(ctx, docID)
	if errors.Is(err, core.ErrNotFound) {
		existed = false
	} else if err != nil {
		return false, err
	}

	if s.chunkCache != nil {
		s.chunkCache.Remove(docID)
	}
	if s.metaCache != nil {
		s.metaCache.Remove(docID)
	}

	if err := s.records.Delete(ctx, metadataKey(docID)); err != nil && !errors.Is(err, core.ErrNotFound) {
		return existed, fmt.Errorf("delete metadata %s: %w", docID, err)
	}
	keys, err := s.records.List(ctx, chunksPrefix+docID+"/")
	if err != nil {
		return existed, fmt.Errorf("list chunk records %s: %w", docID, err)
	}
	for _, key := range keys {
		if err := s.records.Delete(ctx, key); err != nil && !errors.Is(err, core.ErrNotFound) {
			return existed, fmt.Errorf("delete chunk record %s: %w", key, err)
		}
	}
	if doc != nil && doc.Filename != "" {
		if err := s.records.Delete(ctx, fileKey(doc.Filename)); err != nil && !errors.Is(err, core.ErrNotFound) {
			s.log.Warn("uploaded file not removed", "id", docID, "file", doc.Filename, "error", err)
		}
	}
	return existed, nil
}

// DeleteAll deletes every known document, then clears the caches and removes
// any orphaned uploaded files. Per-document failures are logged and skipped;
// the returned count covers documents actually deleted.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	keys, err := s.records.List(ctx, metadataPrefix)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	deleted := 0
	for _, key := range keys {
		id := strings.TrimPrefix(key, metadataPrefix)
		existed, err := s.DeleteDocument(ctx, id)
		if err != nil {
			s.log.Warn("document not fully removed", "id", id, "error", err)
			continue
		}
		if existed {
			deleted++
		}
	}
	if s.chunkCache != nil {
		s.chunkCache.Purge()
	}
	if s.metaCache != nil {
		s.metaCache.Purge()
	}
	orphans, err := s.records.List(ctx, filesPrefix)
	if err != nil {
		s.log.Warn("orphaned file listing failed", "error", err)
		return deleted, nil
	}
	for _, key := range orphans {
		if err := s.records.Delete(ctx, key); err != nil && !errors.Is(err, core.ErrNotFound) {
			s.log.Warn("orphaned file not removed", "key", key, "error", err)
		}
	}
	return deleted, nil
}
