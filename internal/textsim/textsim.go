// Package textsim implements the text similarity measures shared by the
// taxonomy classifier, the redundancy detector and the vector stores:
// token-set Jaccard, TF-IDF cosine over a document corpus, and vector cosine.
package textsim

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on non-letter, non-digit runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the set of distinct tokens in text.
func TokenSet(text string) map[string]bool {
	words := Tokenize(text)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Jaccard computes token-set Jaccard similarity between two texts.
// Two empty texts are considered identical.
func Jaccard(text1, text2 string) float64 {
	words1 := TokenSet(text1)
	words2 := TokenSet(text2)

	if len(words1) == 0 && len(words2) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range words1 {
		if words2[w] {
			intersection++
		}
	}

	union := len(words1) + len(words2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// Cosine computes cosine similarity between two float64 vectors.
// Mismatched lengths or zero vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineF32 computes cosine similarity between two float32 vectors,
// the element type embedding providers return.
func CosineF32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Corpus accumulates documents and scores pairwise TF-IDF cosine similarity.
// Add all documents before calling Similarity; document frequencies are
// computed over everything added so far.
type Corpus struct {
	docs []map[string]float64 // term -> raw frequency per document
	df   map[string]int       // term -> number of documents containing it
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{df: make(map[string]int)}
}

// Add tokenizes text and appends it as the next document.
// Returns the document's index within the corpus.
func (c *Corpus) Add(text string) int {
	tf := make(map[string]float64)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}
	for term := range tf {
		c.df[term]++
	}
	c.docs = append(c.docs, tf)
	return len(c.docs) - 1
}

// Len returns the number of documents added.
func (c *Corpus) Len() int {
	return len(c.docs)
}

// Similarity computes TF-IDF cosine similarity between documents i and j.
func (c *Corpus) Similarity(i, j int) float64 {
	if i < 0 || j < 0 || i >= len(c.docs) || j >= len(c.docs) {
		return 0.0
	}

	vi := c.vector(i)
	vj := c.vector(j)

	var dot, normI, normJ float64
	for term, wi := range vi {
		normI += wi * wi
		if wj, ok := vj[term]; ok {
			dot += wi * wj
		}
	}
	for _, wj := range vj {
		normJ += wj * wj
	}

	if normI == 0 || normJ == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normI) * math.Sqrt(normJ))
}

// SharedTerms returns up to max terms that appear in both documents,
// ordered by combined TF-IDF weight.
func (c *Corpus) SharedTerms(i, j, max int) []string {
	if i < 0 || j < 0 || i >= len(c.docs) || j >= len(c.docs) {
		return nil
	}

	vi := c.vector(i)
	vj := c.vector(j)

	type weighted struct {
		term   string
		weight float64
	}
	var shared []weighted
	for term, wi := range vi {
		if wj, ok := vj[term]; ok {
			shared = append(shared, weighted{term, wi + wj})
		}
	}

	sort.Slice(shared, func(a, b int) bool {
		if shared[a].weight != shared[b].weight {
			return shared[a].weight > shared[b].weight
		}
		return shared[a].term < shared[b].term
	})

	if max > 0 && len(shared) > max {
		shared = shared[:max]
	}
	terms := make([]string, len(shared))
	for idx, s := range shared {
		terms[idx] = s.term
	}
	return terms
}

func (c *Corpus) vector(i int) map[string]float64 {
	tf := c.docs[i]
	n := float64(len(c.docs))
	vec := make(map[string]float64, len(tf))
	for term, freq := range tf {
		idf := math.Log(n/float64(c.df[term])) + 1
		vec[term] = freq * idf
	}
	return vec
}
