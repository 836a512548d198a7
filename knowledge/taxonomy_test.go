package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	return []Entry{
		{Verb: "document", Category: "authoring", Description: "write new documentation pages"},
		{Verb: "review", Category: "quality", Description: "review documentation for accuracy"},
		{Verb: "consolidate", Category: "maintenance", Description: "merge redundant documentation pages"},
	}
}

// axisEmbedder maps each known phrase to a fixed axis so similarity
// scores in tests are exact.
type axisEmbedder struct {
	axes map[string]int
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	if axis, ok := e.axes[text]; ok {
		vec[axis] = 1
	} else {
		vec[3] = 1
	}
	return vec, nil
}

func TestClassifyKeywordFallback(t *testing.T) {
	tax := NewTaxonomy(testEntries())

	labels, err := tax.Classify(context.Background(), "please review the documentation", 2)
	require.NoError(t, err)
	require.Len(t, labels, 2)

	assert.Equal(t, "review", labels[0].Verb)
	assert.Equal(t, "quality", labels[0].Category)
	assert.Greater(t, labels[0].Score, labels[1].Score)
}

func TestClassifyWithEmbedder(t *testing.T) {
	embedder := &axisEmbedder{axes: map[string]int{
		"document: write new documentation pages":          0,
		"review: review documentation for accuracy":        1,
		"consolidate: merge redundant documentation pages": 2,
		"merge these two overlapping pages":                2,
	}}
	tax := NewTaxonomy(testEntries(), WithEmbedder(embedder))

	labels, err := tax.Classify(context.Background(), "merge these two overlapping pages", 1)
	require.NoError(t, err)
	require.Len(t, labels, 1)

	assert.Equal(t, "consolidate", labels[0].Verb)
	assert.InDelta(t, 1.0, labels[0].Score, 1e-6)
}

func TestClassifyReturnsAllWhenKNonPositive(t *testing.T) {
	tax := NewTaxonomy(testEntries())

	labels, err := tax.Classify(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Len(t, labels, 3)
}

func TestClassifyEmptyTaxonomy(t *testing.T) {
	tax := NewTaxonomy(nil)

	labels, err := tax.Classify(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Nil(t, labels)
}

func TestLoadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.json")
	data := `[
		{"verb": "document", "category": "authoring", "description": "write new documentation pages"},
		{"verb": "review", "category": "quality", "description": "review documentation for accuracy"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tax.Len())

	_, err = LoadTaxonomy(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCategoriesAndByVerb(t *testing.T) {
	tax := NewTaxonomy(testEntries())

	assert.Equal(t, []string{"authoring", "maintenance", "quality"}, tax.Categories())

	entry, ok := tax.ByVerb("REVIEW")
	require.True(t, ok)
	assert.Equal(t, "quality", entry.Category)

	_, ok = tax.ByVerb("unknown")
	assert.False(t, ok)
}
