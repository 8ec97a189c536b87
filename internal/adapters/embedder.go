package adapters

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/talentmesh/actionloop"
)

// GenkitEmbedder implements actionloop.Embedder over a Genkit embedder.
// Embeddings fingerprint messages and step descriptions; they never gate
// execution.
type GenkitEmbedder struct {
	embedder ai.Embedder
	maxChars int
}

// EmbedderOption configures a GenkitEmbedder.
type EmbedderOption func(*GenkitEmbedder)

// WithMaxChars truncates input text before embedding.
func WithMaxChars(n int) EmbedderOption {
	return func(e *GenkitEmbedder) {
		e.maxChars = n
	}
}

// NewGenkitEmbedder creates an embedder adapter.
func NewGenkitEmbedder(embedder ai.Embedder, options ...EmbedderOption) (*GenkitEmbedder, error) {
	if embedder == nil {
		return nil, actionloop.NewConfigurationError("embedder adapter requires a genkit embedder", nil)
	}
	e := &GenkitEmbedder{
		embedder: embedder,
		maxChars: 8192,
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// Embed implements actionloop.Embedder.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	if e.maxChars > 0 && len(text) > e.maxChars {
		text = text[:e.maxChars]
	}

	startTime := time.Now()
	resp, err := ai.Embed(ctx, e.embedder, ai.WithTextDocs(text))
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no embeddings")
	}

	log.Printf("Embedding computed (chars: %d, duration: %v)", len(text), time.Since(startTime))
	return resp.Embeddings[0].Embedding, nil
}
