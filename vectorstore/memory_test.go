package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocs() []Document {
	return []Document{
		{
			ID:       "doc-1",
			Content:  "handoff registry persists agent task transfers",
			Metadata: map[string]string{"kind": "guide"},
			Vector:   []float32{1, 0, 0},
		},
		{
			ID:       "doc-2",
			Content:  "knowledge graph nodes and edges stored as json",
			Metadata: map[string]string{"kind": "guide"},
			Vector:   []float32{0, 1, 0},
		},
		{
			ID:       "doc-3",
			Content:  "taxonomy verbs classify documentation activity",
			Metadata: map[string]string{"kind": "reference"},
			Vector:   []float32{0.9, 0.1, 0},
		},
	}
}

func TestMemoryAddAndGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, seedDocs()))

	doc, err := store.Get(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", doc.ID)
	assert.Equal(t, "guide", doc.Metadata["kind"])

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryGetNotFound(t *testing.T) {
	store := NewMemory()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAddRejectsMissingVector(t *testing.T) {
	store := NewMemory()

	err := store.Add(context.Background(), []Document{{ID: "bad", Content: "no vector"}})
	assert.ErrorIs(t, err, ErrMissingVector)
}

func TestMemoryAddUpserts(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, seedDocs()))
	require.NoError(t, store.Add(ctx, []Document{{
		ID:      "doc-1",
		Content: "updated content",
		Vector:  []float32{0, 0, 1},
	}}))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "updated content", doc.Content)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemorySearchRanksByCosine(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, seedDocs()))

	matches, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "doc-1", matches[0].Document.ID)
	assert.Equal(t, "doc-3", matches[1].Document.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemorySearchMinScore(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, seedDocs()))

	matches, err := store.Search(ctx, []float32{1, 0, 0}, 10, WithMinScore(0.5))
	require.NoError(t, err)

	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, 0.5)
	}
	assert.Len(t, matches, 2) // doc-2 is orthogonal to the query
}

func TestMemorySearchMetadataFilter(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, seedDocs()))

	matches, err := store.Search(ctx, []float32{1, 0, 0}, 10,
		WithFilter("kind", "reference"))
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "doc-3", matches[0].Document.ID)
}

func TestMemorySearchKeyword(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, seedDocs()))

	matches, err := store.SearchKeyword(ctx, "knowledge graph", 10)
	require.NoError(t, err)

	require.NotEmpty(t, matches)
	assert.Equal(t, "doc-2", matches[0].Document.ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestMemoryDelete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, seedDocs()))

	// Unknown IDs are ignored.
	require.NoError(t, store.Delete(ctx, []string{"doc-1", "nope"}))

	_, err := store.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryClearAndList(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, seedDocs()))

	ids, err := store.ListIDs(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, ids)

	ids, err = store.ListIDs(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-3"}, ids)

	require.NoError(t, store.Clear(ctx))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
