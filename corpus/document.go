// Package corpus implements the documentation pipeline: ingesting
// files into a vector store and a JSON-backed catalog, detecting
// redundant documents, and drafting consolidations with an LLM.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is one ingested file and its derived chunks.
type Document struct {
	ID           string            `json:"id"`
	Path         string            `json:"path"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Checksum     string            `json:"checksum"`
	Chunks       []Chunk           `json:"chunks,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SupersededBy string            `json:"superseded_by,omitempty"`
	IngestedAt   time.Time         `json:"ingested_at"`
}

// Chunk is a contiguous slice of a document, embedded and indexed
// individually.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Vector     []float32 `json:"vector,omitempty"`
}

// Superseded reports whether the document has been replaced by a
// consolidation.
func (d Document) Superseded() bool {
	return d.SupersededBy != ""
}

// MeanVector averages the chunk vectors into one document-level
// vector, or returns nil when any chunk is missing its vector.
func (d Document) MeanVector() []float32 {
	if len(d.Chunks) == 0 {
		return nil
	}
	dims := len(d.Chunks[0].Vector)
	if dims == 0 {
		return nil
	}

	mean := make([]float32, dims)
	for _, chunk := range d.Chunks {
		if len(chunk.Vector) != dims {
			return nil
		}
		for i, v := range chunk.Vector {
			mean[i] += v
		}
	}
	n := float32(len(d.Chunks))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// NewDocument builds a document for a file, deriving the title from
// the first markdown heading or the file name.
func NewDocument(path string, content []byte) Document {
	return Document{
		ID:         uuid.NewString(),
		Path:       path,
		Title:      deriveTitle(path, string(content)),
		Content:    string(content),
		Checksum:   Checksum(content),
		IngestedAt: time.Now().UTC(),
	}
}

func deriveTitle(path, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
		if line != "" {
			break
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// chunkID derives a stable chunk ID so re-ingesting a document
// overwrites its previous vectors instead of accumulating duplicates.
func chunkID(docID string, index int) string {
	return fmt.Sprintf("%s:%04d", docID, index)
}
