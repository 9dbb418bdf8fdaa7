package core

import (
	"context"
	"errors"
)

// ErrBlankText is returned when an empty or whitespace-only string is
// submitted for embedding.
var ErrBlankText = errors.New("text cannot be empty or blank")

// EmbeddingProvider produces fixed-length vectors for text.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamEvent is one item of a streamed generation. A stream is a sequence
// of events with Text set, terminated by exactly one event with Done=true.
// Err is carried on the terminal event when generation failed mid-stream.
type StreamEvent struct {
	Text string
	Done bool
	Err  error
}

// LLMProvider generates text from a fully assembled prompt.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream delivers partial answers on the returned channel and
	// closes it after the terminal Done event. Cancelling ctx stops emission;
	// the producer must never block forever on an abandoned consumer.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamEvent, error)
}
