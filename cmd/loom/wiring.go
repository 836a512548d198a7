// Wiring from resolved configuration to agentloom subsystems. These
// helpers are shared by the corpus and mcp commands.
package main

import (
	"fmt"

	"github.com/agentloom/agentloom/corpus"
	"github.com/agentloom/agentloom/embeddings"
	"github.com/agentloom/agentloom/internal/config"
	"github.com/agentloom/agentloom/providers"
	"github.com/agentloom/agentloom/providers/anthropic"
	"github.com/agentloom/agentloom/providers/mock"
	"github.com/agentloom/agentloom/providers/openai"
	"github.com/agentloom/agentloom/providers/ratelimit"
	"github.com/agentloom/agentloom/vectorstore"
)

// buildProvider constructs the configured chat provider, wrapped in a
// rate limiter when requests_per_second is set.
func buildProvider(c config.ProviderConfig) (providers.Provider, error) {
	var provider providers.Provider
	switch c.Name {
	case "openai":
		var opts []openai.Option
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		provider = openai.New(c.ResolveAPIKey(), opts...)
	case "anthropic":
		var opts []anthropic.Option
		if c.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(c.BaseURL))
		}
		provider = anthropic.New(c.ResolveAPIKey(), opts...)
	case "mock":
		provider = mock.New()
	default:
		return nil, fmt.Errorf("agentloom: unknown provider %q", c.Name)
	}

	if c.RequestsPerSecond > 0 {
		provider = ratelimit.New(provider, c.RequestsPerSecond, c.Burst)
	}
	return provider, nil
}

// buildEmbedder constructs the configured embedding backend.
func buildEmbedder(c config.EmbeddingsConfig) (embeddings.Embedder, error) {
	return embeddings.New(embeddings.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.ResolveAPIKey(),
		BaseURL:    c.BaseURL,
		Dimensions: c.Dimensions,
	})
}

// openVectorStore opens the configured vector store. The returned
// cleanup closes the sqlite database and is a no-op for memory.
func openVectorStore(c config.CorpusConfig) (vectorstore.Store, func() error, error) {
	switch c.Store {
	case "sqlite":
		db, err := vectorstore.OpenSQLite(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "", "memory":
		return vectorstore.NewMemory(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("agentloom: unknown vector store %q", c.Store)
	}
}

// buildIngestor assembles the documentation ingestor from config.
func buildIngestor(c *config.Config, library *corpus.Library, store vectorstore.Store, embedder embeddings.Embedder) *corpus.Ingestor {
	chunker := corpus.NewChunker(corpus.ChunkerConfig{
		Strategy:     corpus.ChunkRecursive,
		ChunkSize:    c.Corpus.ChunkSize,
		ChunkOverlap: c.Corpus.ChunkOverlap,
	}, corpus.NewTokenCounter(c.Embeddings.Model))

	opts := []corpus.IngestorOption{
		corpus.WithChunker(chunker),
		corpus.WithIngestLogger(logger),
	}
	if len(c.Corpus.Extensions) > 0 {
		opts = append(opts, corpus.WithExtensions(c.Corpus.Extensions...))
	}
	return corpus.NewIngestor(library, store, embedder, opts...)
}
