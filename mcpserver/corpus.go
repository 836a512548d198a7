package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentloom/agentloom/corpus"
	"github.com/agentloom/agentloom/embeddings"
	"github.com/agentloom/agentloom/vectorstore"
)

// Result list bounds for corpus_search.
const (
	defaultSearchTopK = 5
	maxSearchTopK     = 20
	snippetLength     = 300
)

// CorpusSearchTool handles the corpus_search MCP tool.
type CorpusSearchTool struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
}

// NewCorpusSearchTool creates a CorpusSearchTool.
func NewCorpusSearchTool(store vectorstore.Store, embedder embeddings.Embedder) *CorpusSearchTool {
	return &CorpusSearchTool{store: store, embedder: embedder}
}

// Definition returns the MCP tool definition for corpus_search.
func (t *CorpusSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_search",
		mcp.WithDescription(
			"Semantic search over the ingested documentation corpus. "+
				"Results include the source path and chunk index.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, natural language or keywords"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Max results (default: 5, max: 20)"),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Drop matches scoring below this cosine similarity"),
		),
	)
}

// Handle processes the corpus_search tool call.
func (t *CorpusSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	topK := int(req.GetFloat("top_k", defaultSearchTopK))
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}

	vector, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("embed query failed: %v", err)), nil
	}

	var opts []vectorstore.SearchOption
	if min := req.GetFloat("min_score", 0); min > 0 {
		opts = append(opts, vectorstore.WithMinScore(min))
	}

	matches, err := t.store.Search(ctx, vector, topK, opts...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(matches) == 0 {
		return mcp.NewToolResultText("No matches found in the corpus."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d match(es):\n\n", len(matches))
	for i, match := range matches {
		doc := match.Document
		source := doc.Metadata["path"]
		if source == "" {
			source = doc.ID
		}
		if idx := doc.Metadata["chunk_index"]; idx != "" {
			source += "#" + idx
		}
		fmt.Fprintf(&b, "[%d] %.3f %s\n    %s\n\n",
			i+1, match.Score, source, truncate(doc.Content, snippetLength))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// CorpusIngestTool handles the corpus_ingest MCP tool.
type CorpusIngestTool struct {
	ingestor *corpus.Ingestor
}

// NewCorpusIngestTool creates a CorpusIngestTool.
func NewCorpusIngestTool(ingestor *corpus.Ingestor) *CorpusIngestTool {
	return &CorpusIngestTool{ingestor: ingestor}
}

// Definition returns the MCP tool definition for corpus_ingest.
func (t *CorpusIngestTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_ingest",
		mcp.WithDescription(
			"Ingest a documentation file or directory into the corpus: "+
				"chunk, embed and index it for corpus_search. Unchanged files "+
				"are skipped by checksum.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File or directory to ingest; directories are walked recursively"),
		),
	)
}

// Handle processes the corpus_ingest tool call.
func (t *CorpusIngestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	report, err := t.ingestor.Ingest(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ingested %d file(s), skipped %d unchanged.\n",
		len(report.Ingested), len(report.Skipped))
	for _, file := range report.Ingested {
		fmt.Fprintf(&b, "- %s\n", file)
	}
	return mcp.NewToolResultText(b.String()), nil
}
