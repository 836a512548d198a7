// Documentation pipeline commands: ingest files into the library and
// vector store, find redundant documents, and consolidate them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentloom/agentloom/corpus"
)

var (
	ingestWatch bool

	dedupeThreshold float64

	consolidateGroup     int
	consolidateApply     bool
	consolidateStrategy  string
	consolidateOut       string
	consolidateThreshold float64
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the documentation corpus",
	Long: `Manage the documentation corpus.

Subcommands:
  ingest       - Chunk, embed and index files or directories
  dedupe       - Find groups of redundant documents
  consolidate  - Draft (and optionally apply) a consolidation for a group`,
}

var corpusIngestCmd = &cobra.Command{
	Use:   "ingest <paths...>",
	Short: "Chunk, embed and index files or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCorpusIngest,
}

var corpusDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find groups of redundant documents",
	RunE:  runCorpusDedupe,
}

var corpusConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Draft a consolidation for a redundancy group",
	Long: `Draft a consolidation for one of the groups reported by dedupe.
Groups are numbered from 1 in dedupe order. Without --apply the draft
is only printed; with --apply it is written out and superseded members
are retired in the library.`,
	RunE: runCorpusConsolidate,
}

func runCorpusIngest(cmd *cobra.Command, args []string) error {
	library, err := corpus.OpenLibrary(cfg.Corpus.LibraryPath)
	if err != nil {
		return err
	}
	store, closeStore, err := openVectorStore(cfg.Corpus)
	if err != nil {
		return err
	}
	defer closeStore()
	embedder, err := buildEmbedder(cfg.Embeddings)
	if err != nil {
		return err
	}

	ingestor := buildIngestor(cfg, library, store, embedder)

	ctx, cancel := signalContext()
	defer cancel()

	report, err := ingestor.Ingest(ctx, args...)
	if err != nil {
		return err
	}
	if jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("Ingested %d file(s), skipped %d unchanged\n", len(report.Ingested), len(report.Skipped))
		for _, path := range report.Ingested {
			fmt.Printf("  %s\n", path)
		}
	}

	if !ingestWatch {
		return nil
	}

	logger.Info("watching for changes", "paths", strings.Join(args, ", "))
	if err := ingestor.Watch(ctx, args...); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runCorpusDedupe(cmd *cobra.Command, args []string) error {
	library, err := corpus.OpenLibrary(cfg.Corpus.LibraryPath)
	if err != nil {
		return err
	}

	threshold := dedupeThreshold
	if threshold == 0 {
		threshold = cfg.Corpus.RedundancyThreshold
	}

	ctx, cancel := signalContext()
	defer cancel()

	detector := corpus.NewDetector(library, corpus.WithDetectorLogger(logger))
	groups, err := detector.FindRedundant(ctx, threshold)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(groups)
	}
	if len(groups) == 0 {
		fmt.Println("No redundant documents found.")
		return nil
	}
	for i, group := range groups {
		fmt.Printf("Group %d (score %.2f):\n", i+1, group.Score)
		for _, id := range group.Documents {
			if doc, ok := library.Get(id); ok {
				fmt.Printf("  %s\n", doc.Path)
			} else {
				fmt.Printf("  %s\n", id)
			}
		}
		if len(group.Overlap) > 0 {
			fmt.Printf("  shared terms: %s\n", strings.Join(group.Overlap, ", "))
		}
	}
	return nil
}

func runCorpusConsolidate(cmd *cobra.Command, args []string) error {
	strategy, err := parseStrategy(consolidateStrategy)
	if err != nil {
		return err
	}

	library, err := corpus.OpenLibrary(cfg.Corpus.LibraryPath)
	if err != nil {
		return err
	}

	threshold := consolidateThreshold
	if threshold == 0 {
		threshold = cfg.Corpus.RedundancyThreshold
	}

	ctx, cancel := signalContext()
	defer cancel()
	if cfg.Provider.Timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, cfg.Provider.Timeout)
		defer tcancel()
	}

	detector := corpus.NewDetector(library, corpus.WithDetectorLogger(logger))
	groups, err := detector.FindRedundant(ctx, threshold)
	if err != nil {
		return err
	}
	if consolidateGroup < 1 || consolidateGroup > len(groups) {
		return fmt.Errorf("group %d out of range, dedupe reported %d group(s)", consolidateGroup, len(groups))
	}
	group := groups[consolidateGroup-1]

	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		return err
	}
	consolidator := corpus.NewConsolidator(library, provider,
		corpus.WithModel(cfg.Provider.Model),
		corpus.WithConsolidatorLogger(logger))

	plan, err := consolidator.Consolidate(ctx, group, strategy)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(plan); err != nil {
			return err
		}
	} else {
		fmt.Printf("Strategy: %s\nTitle: %s\n", plan.Strategy, plan.Title)
		if plan.Rationale != "" {
			fmt.Printf("Rationale: %s\n", plan.Rationale)
		}
		fmt.Printf("\n%s\n", plan.Draft)
	}

	if !consolidateApply {
		return nil
	}
	if err := consolidator.Apply(plan, consolidateOut); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Applied %s consolidation\n", plan.Strategy)
	return nil
}

// parseStrategy maps the flag value onto a consolidation strategy.
func parseStrategy(name string) (corpus.Strategy, error) {
	switch corpus.Strategy(name) {
	case corpus.StrategyMerge, corpus.StrategySupersede, corpus.StrategyOutline:
		return corpus.Strategy(name), nil
	default:
		return "", fmt.Errorf("unknown strategy %q, want merge, supersede or outline", name)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func init() {
	corpusIngestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep watching the paths and re-ingest on change")

	corpusDedupeCmd.Flags().Float64Var(&dedupeThreshold, "threshold", 0, "Similarity threshold in (0,1] (default from config)")

	corpusConsolidateCmd.Flags().IntVar(&consolidateGroup, "group", 0, "Group number from dedupe output (required)")
	corpusConsolidateCmd.Flags().BoolVar(&consolidateApply, "apply", false, "Write the draft and retire superseded documents")
	corpusConsolidateCmd.Flags().StringVar(&consolidateStrategy, "strategy", "merge", "Consolidation strategy: merge, supersede or outline")
	corpusConsolidateCmd.Flags().StringVar(&consolidateOut, "out", "consolidated.md", "Output path for merge and outline drafts")
	corpusConsolidateCmd.Flags().Float64Var(&consolidateThreshold, "threshold", 0, "Similarity threshold in (0,1] (default from config)")
	_ = corpusConsolidateCmd.MarkFlagRequired("group")

	corpusCmd.AddCommand(corpusIngestCmd)
	corpusCmd.AddCommand(corpusDedupeCmd)
	corpusCmd.AddCommand(corpusConsolidateCmd)
}
