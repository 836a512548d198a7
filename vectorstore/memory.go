package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentloom/agentloom/internal/textsim"
)

// Memory is an in-memory vector store guarded by a RWMutex.
// Suitable for tests, demos and small corpora.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

// Add upserts documents by ID.
func (s *Memory) Add(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingVector, doc.ID)
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// Get returns the document with the given ID.
func (s *Memory) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// Search scans all documents and returns the topK by cosine similarity.
func (s *Memory) Search(ctx context.Context, vector []float32, topK int, opts ...SearchOption) ([]Match, error) {
	o := applyOptions(opts)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.docs))
	for _, doc := range s.docs {
		if !o.matches(doc) {
			continue
		}
		score := textsim.CosineF32(vector, doc.Vector)
		if score < o.minScore {
			continue
		}
		matches = append(matches, Match{Document: doc, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// SearchKeyword scores documents by the fraction of query terms they contain.
func (s *Memory) SearchKeyword(ctx context.Context, query string, topK int) ([]Match, error) {
	terms := textsim.TokenSet(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, doc := range s.docs {
		docTerms := textsim.TokenSet(doc.Content)
		hits := 0
		for term := range terms {
			if docTerms[term] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, Match{
			Document: doc,
			Score:    float64(hits) / float64(len(terms)),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes documents by ID.
func (s *Memory) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Memory) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Clear removes all documents.
func (s *Memory) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]Document)
	return nil
}

// ListIDs returns document IDs in stable order with pagination.
func (s *Memory) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
