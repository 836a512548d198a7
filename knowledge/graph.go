// Package knowledge implements the JSON-backed knowledge graph and the
// activity taxonomy used to tag documentation. The graph is a single
// document of node and edge dictionaries rewritten whole on every
// mutation, not a graph database; traversal is in-memory.
package knowledge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNodeNotFound is returned when a node ID does not exist.
	ErrNodeNotFound = errors.New("agentloom: node not found")

	// ErrEdgeNotFound is returned when an edge ID does not exist.
	ErrEdgeNotFound = errors.New("agentloom: edge not found")

	// ErrMissingEndpoint is returned when an edge references a node
	// that is not in the graph.
	ErrMissingEndpoint = errors.New("agentloom: edge endpoint missing")

	// ErrNodeExists is returned when adding a node whose ID is taken.
	ErrNodeExists = errors.New("agentloom: node already exists")
)

// Node is a vertex in the knowledge graph.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a directed, typed relation between two nodes.
type Edge struct {
	ID         string         `json:"id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Weight     float64        `json:"weight,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Triple is the subject-predicate-object view of an edge, using node
// labels where present and IDs otherwise.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Stats summarizes graph contents.
type Stats struct {
	Nodes     int            `json:"nodes"`
	Edges     int            `json:"edges"`
	NodeTypes map[string]int `json:"node_types"`
	EdgeTypes map[string]int `json:"edge_types"`
}

// Document is the on-disk JSON form of a graph.
type Document struct {
	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

// Graph is an in-memory knowledge graph safe for concurrent use.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]Node
	edges    map[string]Edge
	outEdges map[string][]string // node ID -> edge IDs
	inEdges  map[string][]string // node ID -> edge IDs
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		edges:    make(map[string]Edge),
		outEdges: make(map[string][]string),
		inEdges:  make(map[string][]string),
	}
}

// FromDocument builds a graph from its on-disk form, rebuilding the
// adjacency indexes and rejecting edges with missing endpoints.
func FromDocument(doc Document) (*Graph, error) {
	g := NewGraph()
	for id, node := range doc.Nodes {
		if node.ID == "" {
			node.ID = id
		}
		g.nodes[node.ID] = node
	}
	for id, edge := range doc.Edges {
		if edge.ID == "" {
			edge.ID = id
		}
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("%w: edge %s from %s", ErrMissingEndpoint, edge.ID, edge.From)
		}
		if _, ok := g.nodes[edge.To]; !ok {
			return nil, fmt.Errorf("%w: edge %s to %s", ErrMissingEndpoint, edge.ID, edge.To)
		}
		g.edges[edge.ID] = edge
		g.outEdges[edge.From] = append(g.outEdges[edge.From], edge.ID)
		g.inEdges[edge.To] = append(g.inEdges[edge.To], edge.ID)
	}
	return g, nil
}

// Snapshot returns the graph as a document suitable for persistence.
func (g *Graph) Snapshot() Document {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := Document{
		Nodes: make(map[string]Node, len(g.nodes)),
		Edges: make(map[string]Edge, len(g.edges)),
	}
	for id, node := range g.nodes {
		doc.Nodes[id] = node
	}
	for id, edge := range g.edges {
		doc.Edges[id] = edge
	}
	return doc
}

// AddNode inserts a node. Empty IDs are assigned a UUID; adding an ID
// that already exists fails so callers must use UpdateNode to change
// an existing node.
func (g *Graph) AddNode(node Node) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if _, ok := g.nodes[node.ID]; ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeExists, node.ID)
	}

	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	g.nodes[node.ID] = node
	return node, nil
}

// GetNode returns the node with the given ID.
func (g *Graph) GetNode(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	return node, ok
}

// UpdateNode replaces the stored node's type, label, properties and
// embedding, preserving CreatedAt and stamping UpdatedAt.
func (g *Graph) UpdateNode(node Node) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[node.ID]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, node.ID)
	}

	node.CreatedAt = existing.CreatedAt
	node.UpdatedAt = time.Now().UTC()
	g.nodes[node.ID] = node
	return node, nil
}

// RemoveNode deletes a node and every edge incident to it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	for _, edgeID := range append(append([]string(nil), g.outEdges[id]...), g.inEdges[id]...) {
		g.removeEdgeLocked(edgeID)
	}

	delete(g.nodes, id)
	delete(g.outEdges, id)
	delete(g.inEdges, id)
	return nil
}

// AddEdge inserts an edge after checking both endpoints exist. Empty
// IDs are assigned a UUID.
func (g *Graph) AddEdge(edge Edge) (Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[edge.From]; !ok {
		return Edge{}, fmt.Errorf("%w: %s", ErrMissingEndpoint, edge.From)
	}
	if _, ok := g.nodes[edge.To]; !ok {
		return Edge{}, fmt.Errorf("%w: %s", ErrMissingEndpoint, edge.To)
	}

	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	g.edges[edge.ID] = edge
	g.outEdges[edge.From] = append(g.outEdges[edge.From], edge.ID)
	g.inEdges[edge.To] = append(g.inEdges[edge.To], edge.ID)
	return edge, nil
}

// GetEdge returns the edge with the given ID.
func (g *Graph) GetEdge(id string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edge, ok := g.edges[id]
	return edge, ok
}

// RemoveEdge deletes an edge.
func (g *Graph) RemoveEdge(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	g.removeEdgeLocked(id)
	return nil
}

func (g *Graph) removeEdgeLocked(id string) {
	edge, ok := g.edges[id]
	if !ok {
		return
	}
	g.outEdges[edge.From] = removeID(g.outEdges[edge.From], id)
	g.inEdges[edge.To] = removeID(g.inEdges[edge.To], id)
	delete(g.edges, id)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Neighbors returns nodes reachable from id within depth hops,
// following edges in both directions, in breadth-first order. The
// start node is excluded.
func (g *Graph) Neighbors(id string, depth int) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok || depth <= 0 {
		return nil
	}

	type frame struct {
		id    string
		depth int
	}

	visited := map[string]bool{id: true}
	queue := []frame{{id: id}}
	var results []Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		for _, next := range g.adjacentLocked(cur.id) {
			if visited[next] {
				continue
			}
			visited[next] = true
			results = append(results, g.nodes[next])
			queue = append(queue, frame{id: next, depth: cur.depth + 1})
		}
	}
	return results
}

// adjacentLocked returns the IDs one hop away in either direction, in
// edge insertion order so traversal is deterministic.
func (g *Graph) adjacentLocked(id string) []string {
	var out []string
	for _, edgeID := range g.outEdges[id] {
		out = append(out, g.edges[edgeID].To)
	}
	for _, edgeID := range g.inEdges[id] {
		out = append(out, g.edges[edgeID].From)
	}
	return out
}

// NodesByType returns all nodes of the given type, ordered by ID.
func (g *Graph) NodesByType(nodeType string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []Node
	for _, node := range g.nodes {
		if node.Type == nodeType {
			results = append(results, node)
		}
	}
	sortNodes(results)
	return results
}

// FindNodes returns nodes whose label contains the query,
// case-insensitively, ordered by ID. An empty query matches nothing.
func (g *Graph) FindNodes(query string) []Node {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []Node
	for _, node := range g.nodes {
		if strings.Contains(strings.ToLower(node.Label), query) {
			results = append(results, node)
		}
	}
	sortNodes(results)
	return results
}

// Triples returns every edge as a subject-predicate-object triple,
// sorted for stable output.
func (g *Graph) Triples() []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	triples := make([]Triple, 0, len(g.edges))
	for _, edge := range g.edges {
		triples = append(triples, Triple{
			Subject:   g.displayNameLocked(edge.From),
			Predicate: edge.Type,
			Object:    g.displayNameLocked(edge.To),
		})
	}
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].Subject != triples[j].Subject {
			return triples[i].Subject < triples[j].Subject
		}
		if triples[i].Predicate != triples[j].Predicate {
			return triples[i].Predicate < triples[j].Predicate
		}
		return triples[i].Object < triples[j].Object
	})
	return triples
}

func (g *Graph) displayNameLocked(id string) string {
	if node, ok := g.nodes[id]; ok && node.Label != "" {
		return node.Label
	}
	return id
}

// Stats returns node and edge counts broken down by type.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{
		Nodes:     len(g.nodes),
		Edges:     len(g.edges),
		NodeTypes: make(map[string]int),
		EdgeTypes: make(map[string]int),
	}
	for _, node := range g.nodes {
		stats.NodeTypes[node.Type]++
	}
	for _, edge := range g.edges {
		stats.EdgeTypes[edge.Type]++
	}
	return stats
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
