// Package mcpserver exposes the knowledge graph, the documentation
// corpus and the activity taxonomy as MCP tools, so MCP-capable
// clients (editors, coding agents) operate on the same state the loom
// CLI manages.
//
// This is the composition root for the MCP surface: it receives
// already-built dependencies and registers one tool handler per
// operation. No business logic lives here.
package mcpserver

import (
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/agentloom/agentloom/corpus"
	"github.com/agentloom/agentloom/embeddings"
	"github.com/agentloom/agentloom/knowledge"
	"github.com/agentloom/agentloom/vectorstore"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ErrNoGraphStore is returned when New is called without a graph store.
var ErrNoGraphStore = errors.New("agentloom: mcp server requires a graph store")

// Config carries the dependencies the MCP tools operate on. GraphStore
// is required; tools whose dependencies are missing are skipped so a
// partially configured server still serves the rest.
type Config struct {
	// GraphStore persists the knowledge graph the graph_* tools mutate.
	GraphStore *knowledge.Store

	// VectorStore holds embedded document chunks for corpus_search.
	VectorStore vectorstore.Store

	// Embedder embeds corpus_search queries. It must match the embedder
	// the chunks were ingested with or scores are meaningless.
	Embedder embeddings.Embedder

	// Ingestor runs corpus_ingest.
	Ingestor *corpus.Ingestor

	// Taxonomy backs taxonomy_classify.
	Taxonomy *knowledge.Taxonomy

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New creates and configures the MCP server with every tool the config
// can support registered.
func New(cfg Config) (*server.MCPServer, error) {
	if cfg.GraphStore == nil {
		return nil, ErrNoGraphStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		"agentloom",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Graph tools ---

	addNode := NewGraphAddNodeTool(cfg.GraphStore)
	s.AddTool(addNode.Definition(), addNode.Handle)

	addEdge := NewGraphAddEdgeTool(cfg.GraphStore)
	s.AddTool(addEdge.Definition(), addEdge.Handle)

	query := NewGraphQueryTool(cfg.GraphStore)
	s.AddTool(query.Definition(), query.Handle)

	removeNode := NewGraphRemoveNodeTool(cfg.GraphStore)
	s.AddTool(removeNode.Definition(), removeNode.Handle)

	// --- Corpus tools ---
	//
	// The corpus is an independent subsystem: the graph tools keep
	// working when no vector store or embedder is configured.

	if cfg.VectorStore != nil && cfg.Embedder != nil {
		search := NewCorpusSearchTool(cfg.VectorStore, cfg.Embedder)
		s.AddTool(search.Definition(), search.Handle)
	} else {
		logger.Warn("corpus_search disabled: vector store or embedder not configured")
	}

	if cfg.Ingestor != nil {
		ingest := NewCorpusIngestTool(cfg.Ingestor)
		s.AddTool(ingest.Definition(), ingest.Handle)
	} else {
		logger.Warn("corpus_ingest disabled: ingestor not configured")
	}

	// --- Taxonomy tool ---

	if cfg.Taxonomy != nil {
		classify := NewTaxonomyClassifyTool(cfg.Taxonomy)
		s.AddTool(classify.Definition(), classify.Handle)
	} else {
		logger.Warn("taxonomy_classify disabled: taxonomy not configured")
	}

	return s, nil
}

// serverInstructions tells the client how to use the tools together.
func serverInstructions() string {
	return `You have access to agentloom, a knowledge graph and documentation corpus server.

## Knowledge graph

The graph holds typed nodes (concepts, documents, tools, agents) connected by
typed, directed edges. Use it to record and retrieve structured knowledge that
should survive the current session.

- graph_add_node: add a node. Give it a clear type and a short human label.
  Pass structured detail in the 'properties' JSON object, not in the label.
- graph_add_edge: connect two existing nodes with a typed relation such as
  depends_on, documents, produced_by or relates_to. Add a weight when the
  strength of the relation matters.
- graph_query: read the graph. Exactly one mode per call:
  - neighbors: nodes reachable from an ID within 'depth' hops
  - type: all nodes of one type
  - find: nodes whose label contains a substring
- graph_remove_node: delete a node and every edge touching it. This is not
  reversible; query first if unsure.

Prefer small, well-typed nodes over large free-text ones: the graph is for
structure, the corpus is for prose.

## Documentation corpus

The corpus is a set of ingested documentation files, chunked and embedded for
semantic search.

- corpus_ingest: ingest a file or directory. Unchanged files are skipped by
  checksum, so re-ingesting a whole directory is cheap.
- corpus_search: semantic search over ingested chunks. Results include the
  source path and chunk index so you can open the original file.

## Activity taxonomy

- taxonomy_classify: rank activity verbs (e.g. install, configure, debug)
  against a piece of text. Use it to tag documentation or user requests with
  the activity they describe.`
}
