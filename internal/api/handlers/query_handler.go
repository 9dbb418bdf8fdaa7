package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/services"
)

const (
	defaultMaxResults        = 5
	defaultMinRelevanceScore = 0.6
)

// QueryHandler serves question answering and document analysis endpoints.
type QueryHandler struct {
	docs    *services.DocumentService
	queries *services.QueryService
	log     *slog.Logger
}

func NewQueryHandler(docs *services.DocumentService, queries *services.QueryService) *QueryHandler {
	return &QueryHandler{docs: docs, queries: queries, log: slog.With("component", "api")}
}

type queryRequest struct {
	Question          string   `json:"question"`
	DocumentIDs       []string `json:"document_ids"`
	MaxResults        int      `json:"max_results"`
	MinRelevanceScore float32  `json:"min_relevance_score"`
}

// resolve applies defaults and expands an empty id list to every stored
// document. The bool reports whether any documents exist.
func (h *QueryHandler) resolve(r *http.Request, req *queryRequest) (bool, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}
	if req.MinRelevanceScore <= 0 {
		req.MinRelevanceScore = defaultMinRelevanceScore
	}
	if len(req.DocumentIDs) == 0 {
		ids, err := h.docs.ListDocumentIDs(r.Context())
		if err != nil {
			return false, err
		}
		req.DocumentIDs = ids
	}
	return len(req.DocumentIDs) > 0, nil
}

// Query answers a question in one response.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	hasDocs, err := h.resolve(r, &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list documents: "+err.Error())
		return
	}
	if !hasDocs {
		respondError(w, http.StatusBadRequest, "No documents have been uploaded")
		return
	}

	result, err := h.queries.Query(r.Context(), req.DocumentIDs, req.Question, req.MaxResults, req.MinRelevanceScore)
	if errors.Is(err, services.ErrNoDocuments) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// QueryStream answers a question as server-sent events: chunk events with
// partial text, an error event on failure, and a final complete event.
func (h *QueryHandler) QueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	hasDocs, err := h.resolve(r, &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list documents: "+err.Error())
		return
	}
	if !hasDocs {
		respondError(w, http.StatusBadRequest, "No documents have been uploaded")
		return
	}

	events, err := h.queries.QueryStream(r.Context(), req.DocumentIDs, req.Question, req.MaxResults, req.MinRelevanceScore)
	if errors.Is(err, services.ErrNoDocuments) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed: "+err.Error())
		return
	}
	h.pipeSSE(w, r, events)
}

// SummarizeStream streams a summary of one stored document.
func (h *QueryHandler) SummarizeStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentId")
	events, err := h.queries.SummarizeStream(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "summarization failed: "+err.Error())
		return
	}
	h.pipeSSE(w, r, events)
}

// Analyze returns a summary plus recommendations for one stored document.
func (h *QueryHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentId")
	analysis, err := h.queries.Analyze(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// pipeSSE forwards stream events to the client. A dropped connection ends
// the stream quietly; it is not an error.
func (h *QueryHandler) pipeSSE(w http.ResponseWriter, r *http.Request, events <-chan core.StreamEvent) {
	sse, ok := newSSEWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	for ev := range events {
		if r.Context().Err() != nil {
			h.log.Info("client disconnected during stream")
			return
		}
		if ev.Err != nil {
			h.log.Error("stream failed", "error", ev.Err)
			_ = sse.send(uuid.NewString(), "error", ev.Err.Error())
			return
		}
		if ev.Text != "" {
			if err := sse.send(uuid.NewString(), "chunk", ev.Text); err != nil {
				h.log.Info("client disconnected during stream", "error", err)
				return
			}
		}
		if ev.Done {
			break
		}
	}
	_ = sse.send(uuid.NewString(), "complete", "Query completed")
}
