package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentloom/agentloom/providers"
)

// Strategy selects how a redundancy group is consolidated.
type Strategy string

const (
	// StrategyMerge drafts one document replacing every member.
	StrategyMerge Strategy = "merge"

	// StrategySupersede rewrites the most complete member to absorb
	// the others.
	StrategySupersede Strategy = "supersede"

	// StrategyOutline drafts an index document linking the members
	// without replacing them.
	StrategyOutline Strategy = "outline"
)

// ConsolidationPlan is an LLM-drafted proposal for resolving one
// redundancy group. Nothing is written until Apply.
type ConsolidationPlan struct {
	Strategy  Strategy `json:"strategy"`
	Title     string   `json:"title"`
	Draft     string   `json:"draft"`
	Rationale string   `json:"rationale"`

	// Sources holds the member document IDs; for the supersede
	// strategy Primary names the one whose file receives the draft.
	Sources []string `json:"sources"`
	Primary string   `json:"primary,omitempty"`
}

// Consolidator drafts and applies consolidations for redundant
// documentation using an LLM provider.
type Consolidator struct {
	library  *Library
	provider providers.Provider
	model    string
	logger   *slog.Logger
}

// ConsolidatorOption configures a Consolidator.
type ConsolidatorOption func(*Consolidator)

// WithModel sets the model used for drafting.
func WithModel(model string) ConsolidatorOption {
	return func(c *Consolidator) { c.model = model }
}

// WithConsolidatorLogger sets the logger.
func WithConsolidatorLogger(logger *slog.Logger) ConsolidatorOption {
	return func(c *Consolidator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsolidator builds a consolidator over the library.
func NewConsolidator(library *Library, provider providers.Provider, opts ...ConsolidatorOption) *Consolidator {
	c := &Consolidator{
		library:  library,
		provider: provider,
		model:    "gpt-4o-mini",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const consolidateSystemPrompt = `You are a documentation editor. You receive several documents that cover overlapping material and produce a consolidation.

Respond with a JSON object only, no surrounding prose:
{"title": "...", "draft": "...", "rationale": "..."}

"draft" is the full markdown body of the consolidated document. "rationale" explains in two or three sentences what was merged, kept, or dropped.`

var strategyInstructions = map[Strategy]string{
	StrategyMerge:     "Write a single document that fully replaces every input. Preserve all unique information, remove repetition, and organize under one coherent structure.",
	StrategySupersede: "The first document is the primary one. Rewrite it so it absorbs everything of value from the others; the others will be retired.",
	StrategyOutline:   "Do not merge the documents. Write a short index document that names each input, summarizes it in one or two sentences, and states how the documents relate.",
}

// Consolidate asks the provider to draft a consolidation for group.
// The group's documents are looked up in the library.
func (c *Consolidator) Consolidate(ctx context.Context, group RedundancyGroup, strategy Strategy) (*ConsolidationPlan, error) {
	instruction, ok := strategyInstructions[strategy]
	if !ok {
		return nil, fmt.Errorf("agentloom: unknown consolidation strategy %q", strategy)
	}
	if len(group.Documents) < 2 {
		return nil, fmt.Errorf("agentloom: consolidation needs at least 2 documents, got %d", len(group.Documents))
	}

	docs := make([]Document, 0, len(group.Documents))
	for _, id := range group.Documents {
		doc, ok := c.library.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		docs = append(docs, doc)
	}

	// The supersede strategy treats the longest member as primary on
	// the assumption that it is the most complete.
	var primary string
	if strategy == StrategySupersede {
		best := 0
		for i, doc := range docs {
			if len(doc.Content) > len(docs[best].Content) {
				best = i
			}
		}
		docs[0], docs[best] = docs[best], docs[0]
		primary = docs[0].ID
	}

	resp, err := c.provider.Complete(ctx, providers.CompletionRequest{
		Model:        c.model,
		SystemPrompt: consolidateSystemPrompt,
		Messages: []providers.Message{{
			Role:    providers.RoleUser,
			Content: buildConsolidationPrompt(docs, instruction, group.Overlap),
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("draft consolidation: %w", err)
	}

	plan := parseConsolidationDraft(resp.Content)
	plan.Strategy = strategy
	plan.Primary = primary
	for _, doc := range docs {
		plan.Sources = append(plan.Sources, doc.ID)
	}

	c.logger.Info("consolidation drafted",
		"strategy", string(strategy),
		"sources", len(plan.Sources),
		"draft_bytes", len(plan.Draft))
	return plan, nil
}

func buildConsolidationPrompt(docs []Document, instruction string, overlap []string) string {
	var b strings.Builder
	b.WriteString(instruction)
	if len(overlap) > 0 {
		b.WriteString("\n\nShared topics detected: ")
		b.WriteString(strings.Join(overlap, ", "))
	}
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n\n--- Document %d: %s (%s) ---\n", i+1, doc.Title, doc.Path)
		b.WriteString(doc.Content)
	}
	return b.String()
}

// parseConsolidationDraft reads the model's JSON reply, tolerating
// markdown code fences. A reply that is not valid JSON becomes the
// draft verbatim.
func parseConsolidationDraft(content string) *ConsolidationPlan {
	trimmed := strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = after
	} else if after, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	var parsed struct {
		Title     string `json:"title"`
		Draft     string `json:"draft"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Draft != "" {
		return &ConsolidationPlan{
			Title:     parsed.Title,
			Draft:     parsed.Draft,
			Rationale: parsed.Rationale,
		}
	}
	return &ConsolidationPlan{Draft: content}
}

// Apply writes the plan's draft and records superseded members in the
// library. For merge the draft goes to outPath and every source is
// retired; for supersede it overwrites the primary document's file and
// retires the rest; for outline it goes to outPath and nothing is
// retired.
func (c *Consolidator) Apply(plan *ConsolidationPlan, outPath string) error {
	if plan == nil || plan.Draft == "" {
		return fmt.Errorf("agentloom: empty consolidation plan")
	}

	target := outPath
	supersede := plan.Sources
	switch plan.Strategy {
	case StrategySupersede:
		primaryDoc, ok := c.library.Get(plan.Primary)
		if !ok {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, plan.Primary)
		}
		target = primaryDoc.Path
		supersede = nil
		for _, id := range plan.Sources {
			if id != plan.Primary {
				supersede = append(supersede, id)
			}
		}
	case StrategyOutline:
		supersede = nil
	}
	if target == "" {
		return fmt.Errorf("agentloom: consolidation output path required for %s", plan.Strategy)
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(target, []byte(plan.Draft), 0o644); err != nil {
		return fmt.Errorf("write consolidated draft: %w", err)
	}

	for _, id := range supersede {
		if err := c.library.MarkSuperseded(id, target); err != nil {
			return err
		}
	}

	c.logger.Info("consolidation applied",
		"strategy", string(plan.Strategy),
		"target", target,
		"superseded", len(supersede))
	return nil
}
