package embeddings

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/agentloom/agentloom/internal/textsim"
)

// DefaultHashDimensions is the vector width when none is configured.
const DefaultHashDimensions = 256

// Hash is a deterministic embedder that projects a bag of tokens into a
// fixed-width vector by hashing. Two texts that share vocabulary land near
// each other, which is enough for tests, demos and offline development.
// It is not a substitute for a learned embedding model.
type Hash struct {
	dims int
}

// NewHash creates a hash embedder with the given vector width.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &Hash{dims: dims}
}

// Embed produces the deterministic embedding for text.
func (e *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	for _, token := range textsim.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()

		bucket := int(sum % uint32(e.dims))
		// The next hash bit decides the sign so frequent tokens don't
		// all push in the same direction.
		if sum&(1<<31) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	normalize(vec)
	return vec, nil
}

// EmbedBatch produces deterministic embeddings for all texts.
func (e *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the configured vector width.
func (e *Hash) Dimensions() int {
	return e.dims
}

// Name returns the embedder name.
func (e *Hash) Name() string {
	return "hash"
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
