package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentloom/agentloom/internal/jsonfile"
	"github.com/agentloom/agentloom/internal/textsim"
)

// Entry is one taxonomy row: an activity verb, the category it belongs
// to, and a short description used for matching.
type Entry struct {
	Verb        string `json:"verb"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Label is a scored classification result.
type Label struct {
	Verb     string  `json:"verb"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Embedder is the subset of the embeddings API the classifier needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// batchEmbedder is detected by type assertion so entry vectors can be
// computed in one request when the backend supports it.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Taxonomy classifies text against a static list of activity entries.
// With an embedder configured it ranks by cosine similarity; without
// one it falls back to keyword overlap.
type Taxonomy struct {
	entries  []Entry
	embedder Embedder

	mu      sync.Mutex
	vectors [][]float32 // entry embeddings, computed lazily
}

// TaxonomyOption configures a Taxonomy.
type TaxonomyOption func(*Taxonomy)

// WithEmbedder sets the embedder used for similarity scoring.
func WithEmbedder(e Embedder) TaxonomyOption {
	return func(t *Taxonomy) {
		t.embedder = e
	}
}

// NewTaxonomy builds a taxonomy from entries.
func NewTaxonomy(entries []Entry, opts ...TaxonomyOption) *Taxonomy {
	t := &Taxonomy{entries: append([]Entry(nil), entries...)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LoadTaxonomy reads a JSON entry list from path.
func LoadTaxonomy(path string, opts ...TaxonomyOption) (*Taxonomy, error) {
	var entries []Entry
	if err := jsonfile.Load(path, &entries); err != nil {
		return nil, fmt.Errorf("load taxonomy %s: %w", path, err)
	}
	return NewTaxonomy(entries, opts...), nil
}

// Entries returns a copy of the taxonomy rows.
func (t *Taxonomy) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Taxonomy) Len() int {
	return len(t.entries)
}

// Categories returns the distinct categories, sorted.
func (t *Taxonomy) Categories() []string {
	seen := make(map[string]bool)
	var categories []string
	for _, entry := range t.entries {
		if !seen[entry.Category] {
			seen[entry.Category] = true
			categories = append(categories, entry.Category)
		}
	}
	sort.Strings(categories)
	return categories
}

// ByVerb returns the entry for a verb, matched case-insensitively.
func (t *Taxonomy) ByVerb(verb string) (Entry, bool) {
	for _, entry := range t.entries {
		if strings.EqualFold(entry.Verb, verb) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Classify scores text against every entry and returns the top k
// labels, best first. k <= 0 returns all entries.
func (t *Taxonomy) Classify(ctx context.Context, text string, k int) ([]Label, error) {
	if len(t.entries) == 0 {
		return nil, nil
	}

	var scores []float64
	var err error
	if t.embedder != nil {
		scores, err = t.scoreByEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
	} else {
		scores = t.scoreByKeywords(text)
	}

	labels := make([]Label, len(t.entries))
	for i, entry := range t.entries {
		labels[i] = Label{Verb: entry.Verb, Category: entry.Category, Score: scores[i]}
	}

	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Score != labels[j].Score {
			return labels[i].Score > labels[j].Score
		}
		return labels[i].Verb < labels[j].Verb
	})

	if k > 0 && len(labels) > k {
		labels = labels[:k]
	}
	return labels, nil
}

func (t *Taxonomy) scoreByEmbedding(ctx context.Context, text string) ([]float64, error) {
	query, err := t.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := t.entryVectors(ctx)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(vectors))
	for i, vec := range vectors {
		scores[i] = textsim.CosineF32(query, vec)
	}
	return scores, nil
}

func (t *Taxonomy) scoreByKeywords(text string) []float64 {
	scores := make([]float64, len(t.entries))
	for i, entry := range t.entries {
		scores[i] = textsim.Jaccard(text, entry.Verb+" "+entry.Description)
	}
	return scores
}

// entryVectors embeds each entry's verb and description once and
// caches the result. Failed attempts are retried on the next call.
func (t *Taxonomy) entryVectors(ctx context.Context) ([][]float32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.vectors != nil {
		return t.vectors, nil
	}

	texts := make([]string, len(t.entries))
	for i, entry := range t.entries {
		texts[i] = entry.Verb + ": " + entry.Description
	}

	var vectors [][]float32
	if batch, ok := t.embedder.(batchEmbedder); ok {
		var err error
		vectors, err = batch.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed taxonomy entries: %w", err)
		}
	} else {
		vectors = make([][]float32, len(texts))
		for i, text := range texts {
			vec, err := t.embedder.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed taxonomy entry %q: %w", t.entries[i].Verb, err)
			}
			vectors[i] = vec
		}
	}

	if len(vectors) != len(t.entries) {
		return nil, fmt.Errorf("embed taxonomy entries: got %d vectors for %d entries", len(vectors), len(t.entries))
	}

	t.vectors = vectors
	return vectors, nil
}
