package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom"
	"github.com/agentloom/agentloom/internal/config"
	"github.com/agentloom/agentloom/knowledge"
)

// testConfig points all state files at a temp directory, silences
// logging and resets flag globals when the test finishes.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	c := config.DefaultConfig()
	c.Graph.Path = filepath.Join(dir, "graph.json")
	c.Registry.Path = filepath.Join(dir, "handoffs.json")
	c.Corpus.LibraryPath = filepath.Join(dir, "library.json")
	c.Corpus.Store = "memory"
	c.Embeddings.Provider = "hash"
	c.Embeddings.Dimensions = 64
	c.Provider.Name = "mock"

	cfg = c
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(resetFlags)
	return c
}

func resetFlags() {
	configPath, graphFile, logLevel, jsonOut = "loom.yaml", "", "", false
	nodeID, nodeType, nodeLabel, nodeProps = "", "", "", nil
	edgeFrom, edgeTo, edgeType, edgeWeight = "", "", "", 0
	removeID = ""
	queryNeighbors, queryDepth, queryType, queryFind = "", 1, "", ""
	ingestWatch = false
	dedupeThreshold = 0
	consolidateGroup, consolidateApply = 0, false
	consolidateStrategy, consolidateOut, consolidateThreshold = "merge", "consolidated.md", 0
	handoffStatus, handoffAgent = "", ""
}

// captureStdout captures stdout output from fn.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// seedGraph puts nodes and edges in the configured graph file.
func seedGraph(t *testing.T, nodes []knowledge.Node, edges []knowledge.Edge) {
	t.Helper()
	store := knowledge.NewStore(cfg.Graph.Path)
	_, err := store.Mutate(func(g *knowledge.Graph) error {
		for _, n := range nodes {
			if _, err := g.AddNode(n); err != nil {
				return err
			}
		}
		for _, e := range edges {
			if _, err := g.AddEdge(e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func loadGraph(t *testing.T) *knowledge.Graph {
	t.Helper()
	g, err := knowledge.NewStore(cfg.Graph.Path).Load()
	require.NoError(t, err)
	return g
}

func TestParseProps(t *testing.T) {
	props, err := parseProps([]string{"source=docs/a.md", "note=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "docs/a.md", "note": "x=y"}, props)

	props, err = parseProps(nil)
	require.NoError(t, err)
	assert.Nil(t, props)

	_, err = parseProps([]string{"noequals"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = parseProps([]string{"=value"})
	require.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"merge", "supersede", "outline"} {
		s, err := parseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(s))
	}

	_, err := parseStrategy("squash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestBuildLogger(t *testing.T) {
	ctx := context.Background()

	l := buildLogger(config.LogConfig{Level: "debug", Format: "json"})
	assert.True(t, l.Enabled(ctx, slog.LevelDebug))

	l = buildLogger(config.LogConfig{Level: "warn", Format: "text"})
	assert.False(t, l.Enabled(ctx, slog.LevelInfo))
	assert.True(t, l.Enabled(ctx, slog.LevelWarn))

	l = buildLogger(config.LogConfig{})
	assert.True(t, l.Enabled(ctx, slog.LevelInfo))
	assert.False(t, l.Enabled(ctx, slog.LevelDebug))
}

func TestInitRuntime(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(resetFlags)

	yaml := []byte("graph:\n  path: from-file.json\nlog:\n  level: warn\n")
	configPath = filepath.Join(dir, "loom.yaml")
	require.NoError(t, os.WriteFile(configPath, yaml, 0o644))

	require.NoError(t, initRuntime(rootCmd, nil))
	assert.Equal(t, "from-file.json", cfg.Graph.Path)
	assert.Equal(t, "warn", cfg.Log.Level)

	// Flags beat the file.
	graphFile = filepath.Join(dir, "override.json")
	logLevel = "debug"
	require.NoError(t, initRuntime(rootCmd, nil))
	assert.Equal(t, graphFile, cfg.Graph.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	// A missing config file means defaults.
	configPath = filepath.Join(dir, "absent.yaml")
	graphFile, logLevel = "", ""
	require.NoError(t, initRuntime(rootCmd, nil))
	assert.Equal(t, config.DefaultConfig().Graph.Path, cfg.Graph.Path)
}

func TestCommandTree(t *testing.T) {
	wantSub := map[string][]string{
		"graph":    {"add-node", "add-edge", "remove-node", "query", "stats"},
		"corpus":   {"ingest", "dedupe", "consolidate"},
		"handoffs": {"list"},
		"mcp":      {"serve"},
		"version":  nil,
	}
	for name, subs := range wantSub {
		parent := findCommand(t, rootCmd.Commands(), name)
		for _, sub := range subs {
			findCommand(t, parent.Commands(), sub)
		}
	}

	for _, flag := range []string{"config", "graph", "log-level", "json"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "persistent flag %s", flag)
	}
}

func findCommand(t *testing.T, cmds []*cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range cmds {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %s not registered", name)
	return nil
}

func TestRunGraphAddNode(t *testing.T) {
	t.Run("AddsAndPersists", func(t *testing.T) {
		testConfig(t)
		nodeType, nodeLabel = "concept", "Vector search"
		nodeProps = []string{"source=docs/search.md"}

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphAddNode(graphAddNodeCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Added node [concept] Vector search")

		nodes := loadGraph(t).FindNodes("vector")
		require.Len(t, nodes, 1)
		assert.Equal(t, "docs/search.md", nodes[0].Properties["source"])
	})

	t.Run("DuplicateID", func(t *testing.T) {
		testConfig(t)
		nodeID, nodeType, nodeLabel = "n1", "concept", "First"
		captureStdout(t, func() { require.NoError(t, runGraphAddNode(graphAddNodeCmd, nil)) })

		err := runGraphAddNode(graphAddNodeCmd, nil)
		require.ErrorIs(t, err, knowledge.ErrNodeExists)
	})

	t.Run("InvalidProps", func(t *testing.T) {
		testConfig(t)
		nodeType, nodeLabel = "concept", "Broken"
		nodeProps = []string{"malformed"}

		err := runGraphAddNode(graphAddNodeCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key=value")
	})

	t.Run("JSONOutput", func(t *testing.T) {
		testConfig(t)
		nodeType, nodeLabel, jsonOut = "concept", "Machine readable", true

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphAddNode(graphAddNodeCmd, nil) })
		require.NoError(t, runErr)

		var node knowledge.Node
		require.NoError(t, json.Unmarshal([]byte(out), &node))
		assert.Equal(t, "Machine readable", node.Label)
		assert.NotEmpty(t, node.ID)
	})
}

func TestRunGraphAddEdge(t *testing.T) {
	t.Run("AddsEdge", func(t *testing.T) {
		testConfig(t)
		seedGraph(t, []knowledge.Node{
			{ID: "n1", Type: "concept", Label: "Chunks"},
			{ID: "n2", Type: "concept", Label: "Embeddings"},
		}, nil)
		edgeFrom, edgeTo, edgeType = "n1", "n2", "depends_on"

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphAddEdge(graphAddEdgeCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "n1 -[depends_on]-> n2")

		assert.Equal(t, 1, loadGraph(t).Stats().Edges)
	})

	t.Run("MissingEndpoint", func(t *testing.T) {
		testConfig(t)
		seedGraph(t, []knowledge.Node{{ID: "n1", Type: "concept", Label: "Chunks"}}, nil)
		edgeFrom, edgeTo, edgeType = "n1", "ghost", "depends_on"

		err := runGraphAddEdge(graphAddEdgeCmd, nil)
		require.ErrorIs(t, err, knowledge.ErrMissingEndpoint)
	})
}

func TestRunGraphRemoveNode(t *testing.T) {
	t.Run("RemovesNodeAndEdges", func(t *testing.T) {
		testConfig(t)
		seedGraph(t, []knowledge.Node{
			{ID: "n1", Type: "concept", Label: "Chunks"},
			{ID: "n2", Type: "concept", Label: "Embeddings"},
		}, []knowledge.Edge{{From: "n1", To: "n2", Type: "depends_on"}})
		removeID = "n1"

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphRemoveNode(graphRemoveNodeCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Removed node n1")

		stats := loadGraph(t).Stats()
		assert.Equal(t, 1, stats.Nodes)
		assert.Equal(t, 0, stats.Edges)
	})

	t.Run("NotFound", func(t *testing.T) {
		testConfig(t)
		removeID = "ghost"

		err := runGraphRemoveNode(graphRemoveNodeCmd, nil)
		require.ErrorIs(t, err, knowledge.ErrNodeNotFound)
	})
}

func TestRunGraphQuery(t *testing.T) {
	seed := func(t *testing.T) {
		testConfig(t)
		seedGraph(t, []knowledge.Node{
			{ID: "a", Type: "concept", Label: "Graph basics"},
			{ID: "b", Type: "concept", Label: "Advanced graphs"},
			{ID: "c", Type: "document", Label: "API reference", Properties: map[string]any{"source": "docs/api.md"}},
		}, []knowledge.Edge{{From: "a", To: "b", Type: "related_to"}})
	}

	t.Run("RequiresExactlyOneMode", func(t *testing.T) {
		seed(t)
		err := runGraphQuery(graphQueryCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one")

		queryType, queryFind = "concept", "graph"
		err = runGraphQuery(graphQueryCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one")
	})

	t.Run("Neighbors", func(t *testing.T) {
		seed(t)
		queryNeighbors = "a"

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphQuery(graphQueryCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Advanced graphs")
		assert.NotContains(t, out, "API reference")
	})

	t.Run("NeighborsUnknownNode", func(t *testing.T) {
		seed(t)
		queryNeighbors = "ghost"

		err := runGraphQuery(graphQueryCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node not found")
	})

	t.Run("ByType", func(t *testing.T) {
		seed(t)
		queryType = "concept"

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphQuery(graphQueryCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Found 2 node(s)")
	})

	t.Run("FindShowsProperties", func(t *testing.T) {
		seed(t)
		queryFind = "api"

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphQuery(graphQueryCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Found 1 node(s)")
		assert.Contains(t, out, "source: docs/api.md")
	})

	t.Run("NoMatches", func(t *testing.T) {
		seed(t)
		queryFind = "zzz"

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphQuery(graphQueryCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "No matching nodes.")
	})

	t.Run("JSONOutput", func(t *testing.T) {
		seed(t)
		queryType, jsonOut = "concept", true

		var runErr error
		out := captureStdout(t, func() { runErr = runGraphQuery(graphQueryCmd, nil) })
		require.NoError(t, runErr)

		var nodes []knowledge.Node
		require.NoError(t, json.Unmarshal([]byte(out), &nodes))
		assert.Len(t, nodes, 2)
	})
}

func TestRunGraphStats(t *testing.T) {
	testConfig(t)
	seedGraph(t, []knowledge.Node{
		{ID: "a", Type: "concept", Label: "Graph basics"},
		{ID: "b", Type: "concept", Label: "Advanced graphs"},
		{ID: "c", Type: "document", Label: "API reference"},
	}, []knowledge.Edge{{From: "a", To: "b", Type: "related_to"}})

	var runErr error
	out := captureStdout(t, func() { runErr = runGraphStats(graphStatsCmd, nil) })
	require.NoError(t, runErr)
	assert.Contains(t, out, "Nodes: 3")
	assert.Contains(t, out, "concept: 2")
	assert.Contains(t, out, "Edges: 1")

	jsonOut = true
	out = captureStdout(t, func() { runErr = runGraphStats(graphStatsCmd, nil) })
	require.NoError(t, runErr)

	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.Nodes)
}

func TestRunHandoffsList(t *testing.T) {
	seed := func(t *testing.T) {
		testConfig(t)
		registry, err := agentloom.NewHandoffRegistry(cfg.Registry.Path)
		require.NoError(t, err)
		_, err = registry.Create("planner", "builder", "Draft the schema", agentloom.HandoffContext{})
		require.NoError(t, err)
		h, err := registry.Create("researcher", "writer", "Summarize findings", agentloom.HandoffContext{})
		require.NoError(t, err)
		require.NoError(t, registry.Begin(h.ID))
	}

	t.Run("ListsAll", func(t *testing.T) {
		seed(t)
		var runErr error
		out := captureStdout(t, func() { runErr = runHandoffsList(handoffsListCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Draft the schema")
		assert.Contains(t, out, "Summarize findings")
		assert.Contains(t, out, "planner -> builder")
	})

	t.Run("FiltersByStatus", func(t *testing.T) {
		seed(t)
		handoffStatus = "in_progress"

		var runErr error
		out := captureStdout(t, func() { runErr = runHandoffsList(handoffsListCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Summarize findings")
		assert.NotContains(t, out, "Draft the schema")
	})

	t.Run("JSONOutput", func(t *testing.T) {
		seed(t)
		jsonOut = true

		var runErr error
		out := captureStdout(t, func() { runErr = runHandoffsList(handoffsListCmd, nil) })
		require.NoError(t, runErr)

		var records []agentloom.Handoff
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		assert.Len(t, records, 2)
	})

	t.Run("Empty", func(t *testing.T) {
		testConfig(t)
		var runErr error
		out := captureStdout(t, func() { runErr = runHandoffsList(handoffsListCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "No handoff records.")
	})
}

func TestRunCorpusIngest(t *testing.T) {
	writeDocs := func(t *testing.T) string {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "install.md"),
			[]byte("# Install\n\nRun the installer and follow the prompts."), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "configure.md"),
			[]byte("# Configure\n\nEdit loom.yaml to point at your stores."), 0o644))
		return dir
	}

	t.Run("IngestsAndSkipsUnchanged", func(t *testing.T) {
		testConfig(t)
		dir := writeDocs(t)

		var runErr error
		out := captureStdout(t, func() { runErr = runCorpusIngest(corpusIngestCmd, []string{dir}) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Ingested 2 file(s), skipped 0 unchanged")

		out = captureStdout(t, func() { runErr = runCorpusIngest(corpusIngestCmd, []string{dir}) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Ingested 0 file(s), skipped 2 unchanged")
	})

	t.Run("UnknownPath", func(t *testing.T) {
		testConfig(t)
		err := runCorpusIngest(corpusIngestCmd, []string{filepath.Join(t.TempDir(), "absent")})
		require.Error(t, err)
	})
}

func TestRunCorpusDedupe(t *testing.T) {
	t.Run("FindsIdenticalDocuments", func(t *testing.T) {
		testConfig(t)
		dir := t.TempDir()
		content := []byte("Chunking splits documents into token bounded pieces for embedding.")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chunking.md"), content, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chunking-copy.md"), content, 0o644))

		var runErr error
		captureStdout(t, func() { runErr = runCorpusIngest(corpusIngestCmd, []string{dir}) })
		require.NoError(t, runErr)

		out := captureStdout(t, func() { runErr = runCorpusDedupe(corpusDedupeCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "Group 1")
		assert.Contains(t, out, "chunking.md")
		assert.Contains(t, out, "chunking-copy.md")
	})

	t.Run("EmptyLibrary", func(t *testing.T) {
		testConfig(t)
		var runErr error
		out := captureStdout(t, func() { runErr = runCorpusDedupe(corpusDedupeCmd, nil) })
		require.NoError(t, runErr)
		assert.Contains(t, out, "No redundant documents found.")
	})
}

func TestRunCorpusConsolidate(t *testing.T) {
	t.Run("UnknownStrategy", func(t *testing.T) {
		testConfig(t)
		consolidateStrategy, consolidateGroup = "squash", 1

		err := runCorpusConsolidate(corpusConsolidateCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown strategy")
	})

	t.Run("GroupOutOfRange", func(t *testing.T) {
		testConfig(t)
		consolidateGroup = 3

		err := runCorpusConsolidate(corpusConsolidateCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})
}
