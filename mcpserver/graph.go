package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentloom/agentloom/knowledge"
)

// GraphAddNodeTool handles the graph_add_node MCP tool.
type GraphAddNodeTool struct {
	store *knowledge.Store
}

// NewGraphAddNodeTool creates a GraphAddNodeTool.
func NewGraphAddNodeTool(store *knowledge.Store) *GraphAddNodeTool {
	return &GraphAddNodeTool{store: store}
}

// Definition returns the MCP tool definition for graph_add_node.
func (t *GraphAddNodeTool) Definition() mcp.Tool {
	return mcp.NewTool("graph_add_node",
		mcp.WithDescription(
			"Add a node to the knowledge graph. Nodes represent concepts, documents, "+
				"tools or agents; connect them with graph_add_edge.",
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Node type, e.g. concept, document, tool, agent"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Short human-readable label"),
		),
		mcp.WithString("id",
			mcp.Description("Node ID; generated when omitted"),
		),
		mcp.WithString("properties",
			mcp.Description("Optional JSON object of node properties, e.g. {\"source\": \"docs/install.md\"}"),
		),
	)
}

// Handle processes the graph_add_node tool call.
func (t *GraphAddNodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeType := req.GetString("type", "")
	if nodeType == "" {
		return mcp.NewToolResultError("'type' is required"), nil
	}
	label := req.GetString("label", "")
	if label == "" {
		return mcp.NewToolResultError("'label' is required"), nil
	}

	props, err := jsonObjectArg(req, "properties")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'properties' must be a JSON object: %v", err)), nil
	}

	var node knowledge.Node
	_, err = t.store.Mutate(func(g *knowledge.Graph) error {
		var addErr error
		node, addErr = g.AddNode(knowledge.Node{
			ID:         req.GetString("id", ""),
			Type:       nodeType,
			Label:      label,
			Properties: props,
		})
		return addErr
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add node failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Node added: [%s] %s (ID: %s)", node.Type, node.Label, node.ID)), nil
}

// GraphAddEdgeTool handles the graph_add_edge MCP tool.
type GraphAddEdgeTool struct {
	store *knowledge.Store
}

// NewGraphAddEdgeTool creates a GraphAddEdgeTool.
func NewGraphAddEdgeTool(store *knowledge.Store) *GraphAddEdgeTool {
	return &GraphAddEdgeTool{store: store}
}

// Definition returns the MCP tool definition for graph_add_edge.
func (t *GraphAddEdgeTool) Definition() mcp.Tool {
	return mcp.NewTool("graph_add_edge",
		mcp.WithDescription(
			"Connect two existing nodes with a typed, directed edge. "+
				"Both endpoints must already be in the graph.",
		),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Source node ID"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Target node ID"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Relation type, e.g. depends_on, documents, relates_to"),
		),
		mcp.WithNumber("weight",
			mcp.Description("Optional relation strength"),
		),
	)
}

// Handle processes the graph_add_edge tool call.
func (t *GraphAddEdgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	if from == "" {
		return mcp.NewToolResultError("'from' is required"), nil
	}
	to := req.GetString("to", "")
	if to == "" {
		return mcp.NewToolResultError("'to' is required"), nil
	}
	edgeType := req.GetString("type", "")
	if edgeType == "" {
		return mcp.NewToolResultError("'type' is required"), nil
	}

	var edge knowledge.Edge
	_, err := t.store.Mutate(func(g *knowledge.Graph) error {
		var addErr error
		edge, addErr = g.AddEdge(knowledge.Edge{
			From:   from,
			To:     to,
			Type:   edgeType,
			Weight: req.GetFloat("weight", 0),
		})
		return addErr
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add edge failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Edge added: %s -[%s]-> %s (ID: %s)", edge.From, edge.Type, edge.To, edge.ID)), nil
}

// GraphQueryTool handles the graph_query MCP tool.
type GraphQueryTool struct {
	store *knowledge.Store
}

// NewGraphQueryTool creates a GraphQueryTool.
func NewGraphQueryTool(store *knowledge.Store) *GraphQueryTool {
	return &GraphQueryTool{store: store}
}

// Definition returns the MCP tool definition for graph_query.
func (t *GraphQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("graph_query",
		mcp.WithDescription(
			"Query the knowledge graph. Use exactly one mode per call: "+
				"'neighbors' (traversal from a node), 'type' (all nodes of a type) "+
				"or 'find' (label substring search).",
		),
		mcp.WithString("neighbors",
			mcp.Description("Node ID to traverse from"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Traversal depth for neighbors mode (default: 1)"),
		),
		mcp.WithString("type",
			mcp.Description("Node type to list"),
		),
		mcp.WithString("find",
			mcp.Description("Label substring to search for, case-insensitive"),
		),
	)
}

// Handle processes the graph_query tool call.
func (t *GraphQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	neighborsOf := req.GetString("neighbors", "")
	nodeType := req.GetString("type", "")
	find := req.GetString("find", "")

	modes := 0
	for _, v := range []string{neighborsOf, nodeType, find} {
		if v != "" {
			modes++
		}
	}
	if modes != 1 {
		return mcp.NewToolResultError("provide exactly one of 'neighbors', 'type' or 'find'"), nil
	}

	graph, err := t.store.Load()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load graph failed: %v", err)), nil
	}

	var nodes []knowledge.Node
	switch {
	case neighborsOf != "":
		if _, ok := graph.GetNode(neighborsOf); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("node not found: %s", neighborsOf)), nil
		}
		depth := int(req.GetFloat("depth", 1))
		nodes = graph.Neighbors(neighborsOf, depth)
	case nodeType != "":
		nodes = graph.NodesByType(nodeType)
	default:
		nodes = graph.FindNodes(find)
	}

	if len(nodes) == 0 {
		return mcp.NewToolResultText("No matching nodes."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d node(s):\n\n", len(nodes))
	for _, node := range nodes {
		fmt.Fprintf(&b, "- [%s] %s (ID: %s)\n", node.Type, node.Label, node.ID)
		if len(node.Properties) > 0 {
			fmt.Fprintf(&b, "  properties: %s\n", formatProperties(node.Properties))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// GraphRemoveNodeTool handles the graph_remove_node MCP tool.
type GraphRemoveNodeTool struct {
	store *knowledge.Store
}

// NewGraphRemoveNodeTool creates a GraphRemoveNodeTool.
func NewGraphRemoveNodeTool(store *knowledge.Store) *GraphRemoveNodeTool {
	return &GraphRemoveNodeTool{store: store}
}

// Definition returns the MCP tool definition for graph_remove_node.
func (t *GraphRemoveNodeTool) Definition() mcp.Tool {
	return mcp.NewTool("graph_remove_node",
		mcp.WithDescription(
			"Remove a node and every edge touching it. This is not reversible.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Node ID to remove"),
		),
	)
}

// Handle processes the graph_remove_node tool call.
func (t *GraphRemoveNodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	_, err := t.store.Mutate(func(g *knowledge.Graph) error {
		return g.RemoveNode(id)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("remove node failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Node removed: %s (incident edges deleted)", id)), nil
}
