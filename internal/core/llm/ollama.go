// Package llm holds the embedding and generation provider adapters.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	cfg "github.com/cgc-labs/docquery/internal/config"
	"github.com/cgc-labs/docquery/internal/core"
)

// OllamaClient talks to a local Ollama server for both embeddings and
// generation. The HTTP client carries no timeout of its own; callers bound
// requests through ctx so that streaming responses are not cut off.
type OllamaClient struct {
	client        *http.Client
	baseURL       string
	model         string
	embedModel    string
	supportsBatch bool
	batchSize     int
	limiter       *rate.Limiter
	temperature   float64
	topP          float64
	maxTokens     int
	log           *slog.Logger
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type batchEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type batchEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaClient(conf *cfg.Config) *OllamaClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if conf.EmbedRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(conf.EmbedRateLimit), 1)
	}
	return &OllamaClient{
		client:        &http.Client{},
		baseURL:       conf.OllamaBaseURL,
		model:         conf.OllamaModel,
		embedModel:    conf.EmbedModel,
		supportsBatch: conf.SupportsBatch,
		batchSize:     conf.EmbedBatchSize,
		limiter:       limiter,
		temperature:   conf.Temperature,
		topP:          conf.TopP,
		maxTokens:     conf.MaxTokens,
		log:           slog.With("component", "ollama"),
	}
}

func (c *OllamaClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

// EmbedText generates a vector for one string. Blank input is rejected
// without a network call.
func (c *OllamaClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrBlankText
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	defer resp.Body.Close()

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	embedding := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// EmbedTexts embeds a list of strings. When the server supports the batch
// endpoint the texts go out in groups of batchSize; otherwise each text is
// embedded individually and results are assembled in order.
func (c *OllamaClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !c.supportsBatch {
		embeddings := make([][]float32, len(texts))
		for i, text := range texts {
			embedding, err := c.EmbedText(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed text %d: %w", i, err)
			}
			embeddings[i] = embedding
		}
		return embeddings, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.post(ctx, "/api/embed", batchEmbedRequest{Model: c.embedModel, Input: texts[start:end]})
		if err != nil {
			return nil, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		var br batchEmbedResponse
		err = json.NewDecoder(resp.Body).Decode(&br)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode batch at %d: %w", start, err)
		}
		if len(br.Embeddings) != end-start {
			return nil, fmt.Errorf("embed batch at %d: got %d embeddings for %d texts", start, len(br.Embeddings), end-start)
		}
		embeddings = append(embeddings, br.Embeddings...)
	}
	return embeddings, nil
}

// Generate produces a complete answer for the prompt.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, "/api/generate", generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: &ollamaOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
			NumPredict:  c.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return gr.Response, nil
}

// GenerateStream delivers partial answers as Ollama emits them. The channel
// is closed after the terminal Done event. Cancelling ctx stops emission.
func (c *OllamaClient) GenerateStream(ctx context.Context, prompt string) (<-chan core.StreamEvent, error) {
	resp, err := c.post(ctx, "/api/generate", generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: true,
		Options: &ollamaOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
			NumPredict:  c.maxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	events := make(chan core.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		emit := func(ev core.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var gr generateResponse
			if err := json.Unmarshal(line, &gr); err != nil {
				emit(core.StreamEvent{Done: true, Err: fmt.Errorf("decode stream line: %w", err)})
				return
			}
			if gr.Response != "" && !emit(core.StreamEvent{Text: gr.Response}) {
				return
			}
			if gr.Done {
				emit(core.StreamEvent{Done: true})
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(core.StreamEvent{Done: true, Err: fmt.Errorf("read stream: %w", err)})
			return
		}
		// Stream ended without an explicit done marker.
		emit(core.StreamEvent{Done: true})
	}()
	return events, nil
}

// Models proxies Ollama's model listing.
func (c *OllamaClient) Models(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/api/tags")
}

// Version proxies Ollama's version endpoint.
func (c *OllamaClient) Version(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/api/version")
}

func (c *OllamaClient) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(msg))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

var (
	_ core.EmbeddingProvider = (*OllamaClient)(nil)
	_ core.LLMProvider       = (*OllamaClient)(nil)
)
