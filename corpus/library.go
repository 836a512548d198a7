package corpus

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/agentloom/agentloom/internal/jsonfile"
)

// ErrDocumentNotFound is returned when a document ID is unknown.
var ErrDocumentNotFound = errors.New("agentloom: document not found")

// libraryFile is the on-disk form of the catalog.
type libraryFile struct {
	Documents map[string]Document `json:"documents"`
}

// Library is the JSON-backed catalog of ingested documents. Every
// mutation rewrites the whole file atomically.
type Library struct {
	mu   sync.RWMutex
	path string
	docs map[string]Document
}

// OpenLibrary loads the catalog at path, starting empty when the
// file does not exist yet.
func OpenLibrary(path string) (*Library, error) {
	lib := &Library{path: path, docs: make(map[string]Document)}

	var file libraryFile
	if err := jsonfile.Load(path, &file); err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, fmt.Errorf("open library %s: %w", path, err)
	}
	if file.Documents != nil {
		lib.docs = file.Documents
	}
	return lib, nil
}

// Path returns the backing file path.
func (l *Library) Path() string {
	return l.path
}

// Put upserts a document and persists the catalog.
func (l *Library) Put(doc Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[doc.ID] = doc
	return l.saveLocked()
}

// Get returns a document by ID.
func (l *Library) Get(id string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[id]
	return doc, ok
}

// GetByPath returns the document ingested from path.
func (l *Library) GetByPath(path string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, doc := range l.docs {
		if doc.Path == path {
			return doc, true
		}
	}
	return Document{}, false
}

// List returns all documents ordered by path.
func (l *Library) List() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()

	docs := make([]Document, 0, len(l.docs))
	for _, doc := range l.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

// Active returns the documents not superseded by a consolidation,
// ordered by path.
func (l *Library) Active() []Document {
	var active []Document
	for _, doc := range l.List() {
		if !doc.Superseded() {
			active = append(active, doc)
		}
	}
	return active
}

// Len returns the number of cataloged documents.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

// Remove deletes a document from the catalog.
func (l *Library) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	delete(l.docs, id)
	return l.saveLocked()
}

// MarkSuperseded records that doc id has been replaced by the file at
// byPath.
func (l *Library) MarkSuperseded(id, byPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, ok := l.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	doc.SupersededBy = byPath
	l.docs[id] = doc
	return l.saveLocked()
}

func (l *Library) saveLocked() error {
	if err := jsonfile.Save(l.path, libraryFile{Documents: l.docs}); err != nil {
		return fmt.Errorf("save library %s: %w", l.path, err)
	}
	return nil
}
