package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/services"
)

const maxUploadSize = 100 << 20

// DocumentHandler serves the document lifecycle endpoints.
type DocumentHandler struct {
	docs *services.DocumentService
	log  *slog.Logger
}

func NewDocumentHandler(docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs, log: slog.With("component", "api")}
}

// Upload accepts one or more files. With async=true processing runs in the
// background and only an acknowledgement is returned.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
			return
		}
		files = append(files, services.UploadFile{Name: header.Filename, Data: data})
	}

	if r.FormValue("async") == "true" {
		h.docs.ProcessDocumentsAsync(files)
		respondJSON(w, http.StatusAccepted, map[string]string{
			"message": fmt.Sprintf("Processing started for %d files. Check status endpoint for progress.", len(files)),
		})
		return
	}

	if len(files) == 1 {
		doc, err := h.docs.ProcessDocument(r.Context(), files[0])
		if err != nil {
			respondError(w, http.StatusInternalServerError, "processing failed: "+err.Error())
			return
		}
		respondJSON(w, http.StatusOK, doc)
		return
	}

	docs := h.docs.ProcessDocuments(r.Context(), files)
	respondJSON(w, http.StatusOK, map[string]any{
		"processed": len(docs),
		"failed":    len(files) - len(docs),
		"documents": docs,
	})
}

// Status reports aggregate ingestion progress.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.docs.Status())
}

// List returns metadata for every stored document.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.ListDocuments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list documents: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

// Get returns one document's metadata with live processing status overlaid.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentId")
	doc, err := h.docs.GetDocument(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load document: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// Delete removes one document and everything stored for it.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentId")
	existed, err := h.docs.RemoveDocument(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete document: "+err.Error())
		return
	}
	if !existed {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

// DeleteAll wipes every stored document.
func (h *DocumentHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	count, err := h.docs.RemoveAllDocuments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete documents: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Successfully deleted %d documents", count),
	})
}
