package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentloom/agentloom/knowledge"
)

const defaultClassifyTopK = 3

// TaxonomyClassifyTool handles the taxonomy_classify MCP tool.
type TaxonomyClassifyTool struct {
	taxonomy *knowledge.Taxonomy
}

// NewTaxonomyClassifyTool creates a TaxonomyClassifyTool.
func NewTaxonomyClassifyTool(taxonomy *knowledge.Taxonomy) *TaxonomyClassifyTool {
	return &TaxonomyClassifyTool{taxonomy: taxonomy}
}

// Definition returns the MCP tool definition for taxonomy_classify.
func (t *TaxonomyClassifyTool) Definition() mcp.Tool {
	return mcp.NewTool("taxonomy_classify",
		mcp.WithDescription(
			"Rank activity verbs (e.g. install, configure, debug) against a piece "+
				"of text. Use it to tag documentation or requests with the activity "+
				"they describe.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to classify"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of labels to return (default: 3)"),
		),
	)
}

// Handle processes the taxonomy_classify tool call.
func (t *TaxonomyClassifyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	topK := int(req.GetFloat("top_k", defaultClassifyTopK))
	if topK <= 0 {
		topK = defaultClassifyTopK
	}

	labels, err := t.taxonomy.Classify(ctx, text, topK)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("classify failed: %v", err)), nil
	}

	if len(labels) == 0 {
		return mcp.NewToolResultText("No taxonomy entries configured."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d activities:\n\n", len(labels))
	for i, label := range labels {
		fmt.Fprintf(&b, "%d. %s (%s) score %.3f\n", i+1, label.Verb, label.Category, label.Score)
	}
	return mcp.NewToolResultText(b.String()), nil
}
