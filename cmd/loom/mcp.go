// MCP transport commands. "loom mcp serve" exposes the graph, corpus
// and taxonomy tools to MCP clients over stdio.
package main

import (
	"errors"
	"io/fs"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentloom/agentloom/corpus"
	"github.com/agentloom/agentloom/knowledge"
	"github.com/agentloom/agentloom/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve graph, corpus and taxonomy tools over stdio",
	Long: `Serve the MCP tool surface on stdio. Add to an MCP client config:

  {
    "mcpServers": {
      "loom": {
        "command": "loom",
        "args": ["mcp", "serve"]
      }
    }
  }

Logs go to stderr so they never interfere with the stdio transport.
Subsystems that fail to initialize are skipped with a warning; only
the knowledge graph is mandatory.`,
	RunE: runMCPServe,
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	mcpserver.Version = version

	serverCfg := mcpserver.Config{
		GraphStore: knowledge.NewStore(cfg.Graph.Path),
		Logger:     logger,
	}

	embedder, err := buildEmbedder(cfg.Embeddings)
	if err != nil {
		logger.Warn("embeddings unavailable, corpus tools disabled", "error", err)
	} else {
		store, closeStore, err := openVectorStore(cfg.Corpus)
		if err != nil {
			logger.Warn("vector store unavailable, corpus tools disabled", "error", err)
		} else {
			defer closeStore()
			serverCfg.VectorStore = store
			serverCfg.Embedder = embedder

			library, err := corpus.OpenLibrary(cfg.Corpus.LibraryPath)
			if err != nil {
				logger.Warn("library unavailable, corpus_ingest disabled", "error", err)
			} else {
				serverCfg.Ingestor = buildIngestor(cfg, library, store, embedder)
			}
		}
	}

	var taxOpts []knowledge.TaxonomyOption
	if embedder != nil {
		taxOpts = append(taxOpts, knowledge.WithEmbedder(embedder))
	}
	taxonomy, err := knowledge.LoadTaxonomy(cfg.Taxonomy.Path, taxOpts...)
	switch {
	case err == nil:
		serverCfg.Taxonomy = taxonomy
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no taxonomy file, taxonomy_classify disabled", "path", cfg.Taxonomy.Path)
	default:
		logger.Warn("taxonomy unavailable, taxonomy_classify disabled", "error", err)
	}

	s, err := mcpserver.New(serverCfg)
	if err != nil {
		return err
	}

	logger.Info("mcp server listening on stdio",
		"version", version,
		"graph", cfg.Graph.Path)
	return server.ServeStdio(s)
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
}
