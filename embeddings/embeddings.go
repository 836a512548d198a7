// Package embeddings generates vector embeddings for text.
// Backends: OpenAI (API), Ollama (local server) and a deterministic
// hash embedder for tests and offline runs.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when there is nothing to embed.
var ErrEmptyInput = errors.New("agentloom: empty embedding input")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Name returns the embedder name.
	Name() string
}

// HealthChecker is an optional interface for embedders backed by a
// service. Callers may verify availability before batch operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config selects and configures an embedder.
type Config struct {
	// Provider is one of: openai, ollama, hash.
	Provider string

	// Model is the embedding model identifier (openai, ollama).
	Model string

	// APIKey authenticates against the OpenAI API.
	APIKey string

	// BaseURL is the Ollama endpoint.
	BaseURL string

	// Dimensions fixes the vector width for the hash embedder and
	// overrides the requested width for OpenAI v3 models.
	Dimensions int
}

// New creates an embedder from config.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model), nil
	case "hash":
		return NewHash(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("agentloom: unknown embeddings provider %q", cfg.Provider)
	}
}
