// Package app wires configuration, storage, providers and routes together.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cgc-labs/docquery/internal/api/handlers"
	cfg "github.com/cgc-labs/docquery/internal/config"
	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/core/llm"
	"github.com/cgc-labs/docquery/internal/core/storage"
	"github.com/cgc-labs/docquery/internal/services"
)

// App is the assembled service: router plus everything that needs closing.
type App struct {
	conf    *cfg.Config
	handler http.Handler
	closers []io.Closer
}

func New(ctx context.Context, conf *cfg.Config) (*App, error) {
	a := &App{conf: conf}

	var records core.RecordStore
	switch conf.StorageBackend {
	case "s3":
		s3store, err := storage.NewS3Store(ctx, conf)
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		records = s3store
	default:
		fsStore, err := storage.NewFSStore(conf.StorageBasePath)
		if err != nil {
			return nil, fmt.Errorf("init fs storage: %w", err)
		}
		records = fsStore
	}
	store := storage.NewStore(records, conf)

	var (
		embedder     core.EmbeddingProvider
		provider     core.LLMProvider
		ollamaClient *llm.OllamaClient
	)
	switch conf.Provider {
	case "gemini":
		embed, err := llm.NewGeminiEmbedder(ctx, conf.GeminiAPIKey, conf.GeminiEmbed)
		if err != nil {
			return nil, fmt.Errorf("init gemini embedder: %w", err)
		}
		a.closers = append(a.closers, embed)
		gen, err := llm.NewGeminiLLM(ctx, conf.GeminiAPIKey, conf.GeminiModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init gemini llm: %w", err)
		}
		a.closers = append(a.closers, gen)
		embedder, provider = embed, gen
	default:
		ollamaClient = llm.NewOllamaClient(conf)
		embedder, provider = ollamaClient, ollamaClient
	}

	docs := services.NewDocumentService(store, embedder, conf)
	queries := services.NewQueryService(store, embedder, provider, conf)
	a.handler = buildRouter(docs, queries, ollamaClient)
	return a, nil
}

func buildRouter(docs *services.DocumentService, queries *services.QueryService, ollamaClient *llm.OllamaClient) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	dh := handlers.NewDocumentHandler(docs)
	qh := handlers.NewQueryHandler(docs, queries)

	r.Route("/document", func(r chi.Router) {
		r.Post("/upload", dh.Upload)
		r.Get("/status", dh.Status)
		r.Get("/", dh.List)
		r.Delete("/", dh.DeleteAll)
		r.Post("/query", qh.Query)
		r.Post("/query/stream", qh.QueryStream)
		r.Route("/{documentId}", func(r chi.Router) {
			r.Get("/", dh.Get)
			r.Delete("/", dh.Delete)
			r.Post("/analyze", qh.Analyze)
			r.Post("/summarize/stream", qh.SummarizeStream)
		})
	})

	if ollamaClient != nil {
		oh := handlers.NewOllamaHandler(ollamaClient)
		r.Get("/ollama/models", oh.Models)
		r.Get("/ollama/version", oh.Version)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// Handler exposes the assembled router.
func (a *App) Handler() http.Handler { return a.handler }

// Close releases provider clients.
func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}
