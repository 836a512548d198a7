package knowledge

import (
	"fmt"
	"os"
	"sync"

	"github.com/agentloom/agentloom/internal/jsonfile"
)

// Store persists a graph as one JSON document and serializes
// read-modify-write cycles against it. Every mutation rewrites the
// whole file atomically.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the graph from disk. A missing file yields an empty
// graph so first use needs no setup step.
func (s *Store) Load() (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Graph, error) {
	var doc Document
	if err := jsonfile.Load(s.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return NewGraph(), nil
		}
		return nil, fmt.Errorf("load graph %s: %w", s.path, err)
	}

	graph, err := FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", s.path, err)
	}
	return graph, nil
}

// Save writes the graph to disk, replacing the previous document.
func (s *Store) Save(graph *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(graph)
}

func (s *Store) saveLocked(graph *Graph) error {
	if err := jsonfile.Save(s.path, graph.Snapshot()); err != nil {
		return fmt.Errorf("save graph %s: %w", s.path, err)
	}
	return nil
}

// Mutate loads the graph, applies fn, and writes the result back. The
// file is not touched when fn fails. This is the path every CLI and
// tool mutation goes through.
func (s *Store) Mutate(fn func(*Graph) error) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if err := fn(graph); err != nil {
		return nil, err
	}
	if err := s.saveLocked(graph); err != nil {
		return nil, err
	}
	return graph, nil
}
