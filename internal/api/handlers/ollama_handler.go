package handlers

import (
	"net/http"

	"github.com/cgc-labs/docquery/internal/core/llm"
)

// OllamaHandler proxies diagnostic endpoints of the local Ollama server.
type OllamaHandler struct {
	client *llm.OllamaClient
}

func NewOllamaHandler(client *llm.OllamaClient) *OllamaHandler {
	return &OllamaHandler{client: client}
}

func (h *OllamaHandler) Models(w http.ResponseWriter, r *http.Request) {
	raw, err := h.client.Models(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "ollama unreachable: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (h *OllamaHandler) Version(w http.ResponseWriter, r *http.Request) {
	raw, err := h.client.Version(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "ollama unreachable: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}
