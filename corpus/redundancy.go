package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/agentloom/agentloom/internal/textsim"
)

// RedundancyGroup is a cluster of documents that cover substantially
// the same material.
type RedundancyGroup struct {
	// Documents holds member document IDs, ordered by path.
	Documents []string `json:"documents"`

	// Score is the mean similarity of the pairs that formed the
	// cluster.
	Score float64 `json:"score"`

	// Overlap lists terms the members share, most significant first.
	Overlap []string `json:"overlap,omitempty"`
}

// Detector finds redundant documents in a library by pairwise
// similarity. Documents with embeddings are compared by cosine over
// their mean chunk vectors; otherwise TF-IDF cosine over the corpus,
// or plain token overlap when the corpus is too small for useful
// document frequencies.
type Detector struct {
	library *Library
	logger  *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDetectorLogger sets the logger.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector builds a detector over the library.
func NewDetector(library *Library, opts ...DetectorOption) *Detector {
	d := &Detector{library: library, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// maxOverlapTerms caps how many shared terms a group reports.
const maxOverlapTerms = 8

// FindRedundant clusters active documents whose pairwise similarity
// reaches threshold. Groups are returned best-scoring first.
func (d *Detector) FindRedundant(ctx context.Context, threshold float64) ([]RedundancyGroup, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("agentloom: redundancy threshold must be in (0, 1], got %v", threshold)
	}

	docs := d.library.Active()
	if len(docs) < 2 {
		return nil, nil
	}

	vectors := make([][]float32, len(docs))
	terms := textsim.NewCorpus()
	for i, doc := range docs {
		vectors[i] = doc.MeanVector()
		terms.Add(doc.Content)
	}

	uf := newUnionFind(len(docs))
	type pairScore struct {
		a, b  int
		score float64
	}
	var pairs []pairScore

	for i := 0; i < len(docs); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(docs); j++ {
			score := d.similarity(vectors, terms, i, j, docs)
			if score >= threshold {
				uf.union(i, j)
				pairs = append(pairs, pairScore{a: i, b: j, score: score})
			}
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	type cluster struct {
		members  map[int]bool
		scoreSum float64
		pairs    int
		overlap  map[string]bool
	}
	clusters := make(map[int]*cluster)
	for _, p := range pairs {
		root := uf.find(p.a)
		c, ok := clusters[root]
		if !ok {
			c = &cluster{members: make(map[int]bool), overlap: make(map[string]bool)}
			clusters[root] = c
		}
		c.members[p.a] = true
		c.members[p.b] = true
		c.scoreSum += p.score
		c.pairs++
		for _, term := range terms.SharedTerms(p.a, p.b, maxOverlapTerms) {
			c.overlap[term] = true
		}
	}

	groups := make([]RedundancyGroup, 0, len(clusters))
	for _, c := range clusters {
		group := RedundancyGroup{Score: c.scoreSum / float64(c.pairs)}
		for idx := range c.members {
			group.Documents = append(group.Documents, docs[idx].ID)
		}
		sort.Slice(group.Documents, func(a, b int) bool {
			da, _ := d.library.Get(group.Documents[a])
			db, _ := d.library.Get(group.Documents[b])
			return da.Path < db.Path
		})
		for term := range c.overlap {
			group.Overlap = append(group.Overlap, term)
		}
		sort.Strings(group.Overlap)
		if len(group.Overlap) > maxOverlapTerms {
			group.Overlap = group.Overlap[:maxOverlapTerms]
		}
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].Documents[0] < groups[j].Documents[0]
	})

	d.logger.Info("redundancy scan complete",
		"documents", len(docs),
		"groups", len(groups),
		"threshold", threshold)
	return groups, nil
}

// similarity picks the best available signal for a document pair.
func (d *Detector) similarity(vectors [][]float32, terms *textsim.Corpus, i, j int, docs []Document) float64 {
	if vectors[i] != nil && vectors[j] != nil && len(vectors[i]) == len(vectors[j]) {
		return textsim.CosineF32(vectors[i], vectors[j])
	}
	// TF-IDF weights degenerate with fewer than three documents.
	if terms.Len() >= 3 {
		return terms.Similarity(i, j)
	}
	return textsim.Jaccard(docs[i].Content, docs[j].Content)
}

// unionFind is a classic disjoint-set with path compression.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
