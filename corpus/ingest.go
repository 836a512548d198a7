package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/agentloom/agentloom/vectorstore"
)

// Embedder is the subset of the embeddings API the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestReport lists what an ingestion run did.
type IngestReport struct {
	Ingested []string `json:"ingested"`
	Skipped  []string `json:"skipped"`
}

// Ingestor walks documentation roots, chunks and embeds files, and
// records them in the vector store and the library. Unchanged files
// (by checksum) are skipped.
type Ingestor struct {
	library     *Library
	store       vectorstore.Store
	embedder    Embedder
	chunker     *Chunker
	extensions  map[string]bool
	concurrency int
	debounce    time.Duration
	logger      *slog.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) IngestorOption {
	return func(in *Ingestor) { in.chunker = c }
}

// WithExtensions sets the file extensions ingested from directories.
func WithExtensions(exts ...string) IngestorOption {
	return func(in *Ingestor) {
		in.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			in.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithConcurrency bounds how many files are processed in parallel.
func WithConcurrency(n int) IngestorOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.concurrency = n
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(logger *slog.Logger) IngestorOption {
	return func(in *Ingestor) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithDebounce sets how long Watch waits for file events to settle
// before re-ingesting.
func WithDebounce(d time.Duration) IngestorOption {
	return func(in *Ingestor) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewIngestor builds an ingestor over the given library, vector store
// and embedder.
func NewIngestor(library *Library, store vectorstore.Store, embedder Embedder, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		library:     library,
		store:       store,
		embedder:    embedder,
		chunker:     NewChunker(DefaultChunkerConfig(), nil),
		extensions:  map[string]bool{".md": true, ".txt": true},
		concurrency: 4,
		debounce:    500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest processes the given files and directories. Directories are
// walked recursively for matching extensions. Files are processed
// with bounded parallelism; the first failure cancels the run.
func (in *Ingestor) Ingest(ctx context.Context, paths ...string) (*IngestReport, error) {
	files, err := in.collectFiles(paths)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for _, file := range files {
		g.Go(func() error {
			ingested, err := in.ingestFile(gctx, file)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", file, err)
			}
			mu.Lock()
			if ingested {
				report.Ingested = append(report.Ingested, file)
			} else {
				report.Skipped = append(report.Skipped, file)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.Ingested)
	sort.Strings(report.Skipped)
	in.logger.Info("ingestion complete",
		"ingested", len(report.Ingested),
		"skipped", len(report.Skipped))
	return report, nil
}

func (in *Ingestor) collectFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			// Explicit files bypass the extension filter.
			add(path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && in.matchesExtension(p) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func (in *Ingestor) matchesExtension(path string) bool {
	return in.extensions[strings.ToLower(filepath.Ext(path))]
}

// ingestFile reads, chunks, embeds and stores one file. It returns
// false when the file's checksum is unchanged since the last run.
func (in *Ingestor) ingestFile(ctx context.Context, path string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	checksum := Checksum(content)
	previous, known := in.library.GetByPath(path)
	if known && previous.Checksum == checksum {
		in.logger.Debug("unchanged, skipping", "path", path)
		return false, nil
	}

	doc := NewDocument(path, content)
	if known {
		// Keep the document identity stable across re-ingestion.
		doc.ID = previous.ID
		doc.Metadata = previous.Metadata
	}
	doc.Chunks = in.chunker.Split(doc.ID, doc.Content)

	if len(doc.Chunks) > 0 {
		texts := make([]string, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			texts[i] = chunk.Content
		}
		vectors, err := in.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return false, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(doc.Chunks) {
			return false, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(doc.Chunks))
		}
		for i := range doc.Chunks {
			doc.Chunks[i].Vector = vectors[i]
		}
	}

	// Drop the previous version's vectors first so a shrinking
	// document leaves no stale chunks behind.
	if known && len(previous.Chunks) > 0 {
		stale := make([]string, len(previous.Chunks))
		for i, chunk := range previous.Chunks {
			stale[i] = chunk.ID
		}
		if err := in.store.Delete(ctx, stale); err != nil {
			return false, fmt.Errorf("remove stale chunks: %w", err)
		}
	}

	if len(doc.Chunks) > 0 {
		vdocs := make([]vectorstore.Document, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			vdocs[i] = vectorstore.Document{
				ID:      chunk.ID,
				Content: chunk.Content,
				Metadata: map[string]string{
					"document_id": doc.ID,
					"path":        doc.Path,
					"title":       doc.Title,
					"chunk_index": strconv.Itoa(chunk.Index),
				},
				Vector: chunk.Vector,
			}
		}
		if err := in.store.Add(ctx, vdocs); err != nil {
			return false, fmt.Errorf("store chunks: %w", err)
		}
	}

	if err := in.library.Put(doc); err != nil {
		return false, err
	}

	in.logger.Info("ingested document",
		"path", path,
		"chunks", len(doc.Chunks),
		"reingested", known)
	return true, nil
}

// Watch re-ingests files under roots when they are written or
// created, batching rapid events behind a debounce window. It blocks
// until ctx is done.
func (in *Ingestor) Watch(ctx context.Context, roots ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range roots {
		if err := in.watchTree(watcher, root); err != nil {
			return err
		}
	}
	in.logger.Info("watching for changes", "roots", roots)

	pending := make(map[string]time.Time)
	settle := time.NewTicker(100 * time.Millisecond)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := in.watchTree(watcher, event.Name); err != nil {
					in.logger.Warn("watch new directory failed", "path", event.Name, "error", err)
				}
				continue
			}
			if in.matchesExtension(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("watcher error", "error", err)

		case <-settle.C:
			now := time.Now()
			var ready []string
			for path, last := range pending {
				if now.Sub(last) < in.debounce {
					continue
				}
				delete(pending, path)
				// The file may be gone again by the time it settles.
				if _, err := os.Stat(path); err == nil {
					ready = append(ready, path)
				}
			}
			if len(ready) == 0 {
				continue
			}
			sort.Strings(ready)
			if _, err := in.Ingest(ctx, ready...); err != nil {
				in.logger.Error("re-ingestion failed", "error", err)
			}
		}
	}
}

func (in *Ingestor) watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
		}
		return nil
	})
}
