// Package vectorstore provides document stores searchable by vector
// similarity: an in-memory index and a SQLite-backed table. Both score
// with cosine similarity over a linear scan; they are adapters for demo
// and moderate corpus sizes, not a vector database.
package vectorstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document doesn't exist.
var ErrNotFound = errors.New("agentloom: document not found")

// ErrMissingVector is returned when a document is added without a vector.
var ErrMissingVector = errors.New("agentloom: document has no vector")

// Document is a stored, embedded piece of content.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"vector,omitempty"`
}

// Match is a search hit with its similarity score.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Store is the interface all vector stores implement.
type Store interface {
	// Add upserts documents by ID. Every document needs a vector.
	Add(ctx context.Context, docs []Document) error

	// Get returns the document with the given ID.
	Get(ctx context.Context, id string) (Document, error)

	// Search returns the topK documents most similar to vector,
	// ordered by descending score.
	Search(ctx context.Context, vector []float32, topK int, opts ...SearchOption) ([]Match, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// Clearable is an optional interface for stores that can drop all data.
// Use a type assertion to check support:
//
//	if c, ok := store.(Clearable); ok { c.Clear(ctx) }
type Clearable interface {
	Clear(ctx context.Context) error
}

// Lister is an optional interface for stores that can enumerate
// document IDs with pagination.
type Lister interface {
	ListIDs(ctx context.Context, limit, offset int) ([]string, error)
}

// KeywordSearcher is an optional interface for stores that support a
// text-match fallback when no query vector is available.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, topK int) ([]Match, error)
}

// SearchOption narrows a search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	minScore float64
	filters  map[string]string
}

// WithMinScore drops matches scoring below min.
func WithMinScore(min float64) SearchOption {
	return func(o *searchOptions) {
		o.minScore = min
	}
}

// WithFilter keeps only documents whose metadata[key] equals value.
// Multiple filters must all match.
func WithFilter(key, value string) SearchOption {
	return func(o *searchOptions) {
		if o.filters == nil {
			o.filters = make(map[string]string)
		}
		o.filters[key] = value
	}
}

func applyOptions(opts []SearchOption) searchOptions {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o searchOptions) matches(doc Document) bool {
	for key, want := range o.filters {
		if doc.Metadata[key] != want {
			return false
		}
	}
	return true
}
