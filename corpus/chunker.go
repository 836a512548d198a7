package corpus

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkStrategy selects how documents are split.
type ChunkStrategy string

const (
	// ChunkFixed splits on a character budget estimated from the
	// token size.
	ChunkFixed ChunkStrategy = "fixed"

	// ChunkRecursive splits on paragraph, line, sentence and word
	// boundaries in that order, keeping pieces under the token size.
	ChunkRecursive ChunkStrategy = "recursive"
)

// ChunkerConfig configures a Chunker. Sizes are in tokens.
type ChunkerConfig struct {
	Strategy     ChunkStrategy `json:"strategy" yaml:"strategy"`
	ChunkSize    int           `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int           `json:"chunk_overlap" yaml:"chunk_overlap"`
	MinChunkSize int           `json:"min_chunk_size" yaml:"min_chunk_size"`
}

// DefaultChunkerConfig returns the recursive strategy with a 512
// token budget and 64 token overlap.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Strategy:     ChunkRecursive,
		ChunkSize:    512,
		ChunkOverlap: 64,
		MinChunkSize: 16,
	}
}

// TokenCounter reports the token length of a text.
type TokenCounter interface {
	Count(text string) int
}

// Chunker splits document content into token-bounded chunks.
type Chunker struct {
	cfg     ChunkerConfig
	counter TokenCounter
}

// NewChunker builds a chunker. A nil counter falls back to a
// character estimate.
func NewChunker(cfg ChunkerConfig, counter TokenCounter) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkerConfig().ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Chunker{cfg: cfg, counter: counter}
}

// Split cuts content into chunks attributed to docID. Chunk IDs are
// stable across re-ingestion of the same document.
func (c *Chunker) Split(docID, content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var pieces []string
	switch c.cfg.Strategy {
	case ChunkFixed:
		pieces = c.fixedSplit(content)
	default:
		pieces = c.recursiveSplit(content, recursiveSeparators)
	}
	pieces = c.applyOverlap(pieces)

	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         chunkID(docID, len(chunks)),
			DocumentID: docID,
			Index:      len(chunks),
			Content:    piece,
			TokenCount: c.counter.Count(piece),
		})
	}
	return chunks
}

// Separator priority: paragraphs, lines, sentences, words.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

func (c *Chunker) recursiveSplit(text string, separators []string) []string {
	if c.counter.Count(text) <= c.cfg.ChunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return c.fixedSplit(text)
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return c.recursiveSplit(text, separators[1:])
	}
	// Keep the separator attached to the preceding part so joins
	// reproduce the original text.
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += sep
	}

	var pieces []string
	var current strings.Builder
	for _, part := range parts {
		if c.counter.Count(part) > c.cfg.ChunkSize {
			if current.Len() > 0 {
				pieces = append(pieces, current.String())
				current.Reset()
			}
			pieces = append(pieces, c.recursiveSplit(part, separators[1:])...)
			continue
		}
		if current.Len() > 0 && c.counter.Count(current.String()+part) > c.cfg.ChunkSize {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		current.WriteString(part)
	}
	if current.Len() > 0 {
		piece := current.String()
		if c.counter.Count(piece) >= c.cfg.MinChunkSize && len(pieces) > 0 {
			pieces = append(pieces, piece)
		} else if len(pieces) == 0 {
			pieces = append(pieces, piece)
		} else {
			// Too small to stand alone: fold into the previous piece.
			pieces[len(pieces)-1] += piece
		}
	}
	return pieces
}

// fixedSplit cuts on a character budget of roughly four characters
// per token.
func (c *Chunker) fixedSplit(text string) []string {
	runes := []rune(text)
	budget := c.cfg.ChunkSize * 4

	var pieces []string
	for start := 0; start < len(runes); start += budget {
		end := start + budget
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// applyOverlap prefixes each piece after the first with the tail of
// its predecessor, cut at a word boundary.
func (c *Chunker) applyOverlap(pieces []string) []string {
	if c.cfg.ChunkOverlap <= 0 || len(pieces) < 2 {
		return pieces
	}

	budget := c.cfg.ChunkOverlap * 4
	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		prev := []rune(pieces[i-1])
		start := len(prev) - budget
		if start < 0 {
			start = 0
		}
		tail := string(prev[start:])
		if idx := strings.IndexAny(tail, " \n"); idx >= 0 && idx < len(tail)-1 {
			tail = tail[idx+1:]
		}
		out[i] = tail + pieces[i]
	}
	return out
}

// EstimateCounter approximates tokens at four characters each.
type EstimateCounter struct{}

// Count implements TokenCounter.
func (EstimateCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// TiktokenCounter counts tokens with a tiktoken encoding, falling
// back to the character estimate when the encoding cannot be loaded
// (tiktoken may fetch encoding data on first use).
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// modelEncodings maps model name prefixes to tiktoken encodings, most
// specific prefix first.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
	{"text-embedding-3", "cl100k_base"},
}

// NewTokenCounter returns a counter for the given model, resolving
// the encoding lazily. Unknown models use cl100k_base.
func NewTokenCounter(model string) *TiktokenCounter {
	encoding := "cl100k_base"
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			encoding = m.encoding
			break
		}
	}
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count implements TokenCounter.
func (t *TiktokenCounter) Count(text string) int {
	if err := t.init(); err != nil {
		return EstimateCounter{}.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
