// Loom is the agentloom command line tool.
//
// It manages the JSON-backed knowledge graph, runs the documentation
// pipeline (ingest, dedupe, consolidate), inspects handoff records and
// serves the MCP surface over stdio.
//
// Usage:
//
//	loom graph add-node --type concept --label "Vector search"
//	loom corpus ingest docs/ --watch
//	loom handoffs list --status pending
//	loom mcp serve
//
// Configuration is read from a YAML file (default loom.yaml, missing
// file means defaults) and LOOM_-prefixed environment variables.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentloom/agentloom/internal/config"
)

// version is stamped at build time via ldflags.
var version = "dev"

// Global flags, bound in init.
var (
	configPath string
	graphFile  string
	logLevel   string
	jsonOut    bool
)

// Runtime state resolved by initRuntime before any command runs.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Knowledge graph, documentation pipeline and MCP server for agentloom",
	Long: `loom manages the shared state agentloom agents work against: the
knowledge graph, the documentation corpus and the handoff registry.
It can also serve all of them to MCP clients over stdio.

Configuration comes from a YAML file (--config, default loom.yaml)
overridden by LOOM_-prefixed environment variables. A missing config
file means built-in defaults.`,
	PersistentPreRunE: initRuntime,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the loom version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loom %s\n", version)
	},
}

// initRuntime loads configuration and builds the logger. It runs
// before every command via PersistentPreRunE.
func initRuntime(cmd *cobra.Command, args []string) error {
	loaded, err := config.NewLoader().
		WithConfigPath(configPath).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		return err
	}

	// Flags beat file and environment.
	if graphFile != "" {
		loaded.Graph.Path = graphFile
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	cfg = loaded
	logger = buildLogger(cfg.Log)
	slog.SetDefault(logger)
	return nil
}

// buildLogger maps the config's level and format names onto a slog
// logger writing to stderr, keeping stdout clean for command output.
func buildLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// printJSON writes v to stdout as indented JSON. Commands honor the
// --json flag by routing their result through here.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "loom.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&graphFile, "graph", "", "Knowledge graph file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of human-readable output")

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(handoffsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
