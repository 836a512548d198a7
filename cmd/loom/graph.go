// Knowledge graph commands: add nodes and edges, remove nodes, query
// by neighborhood, type or label, and print summary statistics.
package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentloom/agentloom/knowledge"
)

var (
	nodeID    string
	nodeType  string
	nodeLabel string
	nodeProps []string

	edgeFrom   string
	edgeTo     string
	edgeType   string
	edgeWeight float64

	removeID string

	queryNeighbors string
	queryDepth     int
	queryType      string
	queryFind      string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage the knowledge graph",
	Long: `Manage the JSON-backed knowledge graph.

Subcommands:
  add-node     - Add a node
  add-edge     - Add a directed edge between existing nodes
  remove-node  - Remove a node and its incident edges
  query        - Query by neighborhood, type or label substring
  stats        - Print node and edge counts by type`,
}

var graphAddNodeCmd = &cobra.Command{
	Use:   "add-node",
	Short: "Add a node to the graph",
	RunE:  runGraphAddNode,
}

var graphAddEdgeCmd = &cobra.Command{
	Use:   "add-edge",
	Short: "Add a directed edge between existing nodes",
	RunE:  runGraphAddEdge,
}

var graphRemoveNodeCmd = &cobra.Command{
	Use:   "remove-node",
	Short: "Remove a node and its incident edges",
	RunE:  runGraphRemoveNode,
}

var graphQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the graph",
	Long: `Query the graph in exactly one mode:

  --neighbors <id> [--depth n]  - Nodes within n hops of a node
  --type <t>                    - Nodes of a type
  --find <s>                    - Nodes whose label contains s`,
	RunE: runGraphQuery,
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print node and edge counts by type",
	RunE:  runGraphStats,
}

func runGraphAddNode(cmd *cobra.Command, args []string) error {
	props, err := parseProps(nodeProps)
	if err != nil {
		return err
	}

	store := knowledge.NewStore(cfg.Graph.Path)
	var node knowledge.Node
	if _, err := store.Mutate(func(g *knowledge.Graph) error {
		var err error
		node, err = g.AddNode(knowledge.Node{
			ID:         nodeID,
			Type:       nodeType,
			Label:      nodeLabel,
			Properties: props,
		})
		return err
	}); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(node)
	}
	fmt.Printf("Added node [%s] %s (%s)\n", node.Type, node.Label, node.ID)
	return nil
}

func runGraphAddEdge(cmd *cobra.Command, args []string) error {
	store := knowledge.NewStore(cfg.Graph.Path)
	var edge knowledge.Edge
	if _, err := store.Mutate(func(g *knowledge.Graph) error {
		var err error
		edge, err = g.AddEdge(knowledge.Edge{
			From:   edgeFrom,
			To:     edgeTo,
			Type:   edgeType,
			Weight: edgeWeight,
		})
		return err
	}); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(edge)
	}
	fmt.Printf("Added edge %s -[%s]-> %s (%s)\n", edge.From, edge.Type, edge.To, edge.ID)
	return nil
}

func runGraphRemoveNode(cmd *cobra.Command, args []string) error {
	store := knowledge.NewStore(cfg.Graph.Path)
	if _, err := store.Mutate(func(g *knowledge.Graph) error {
		return g.RemoveNode(removeID)
	}); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]string{"removed": removeID})
	}
	fmt.Printf("Removed node %s and its incident edges\n", removeID)
	return nil
}

func runGraphQuery(cmd *cobra.Command, args []string) error {
	modes := 0
	for _, set := range []bool{queryNeighbors != "", queryType != "", queryFind != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return fmt.Errorf("provide exactly one of --neighbors, --type or --find")
	}

	graph, err := knowledge.NewStore(cfg.Graph.Path).Load()
	if err != nil {
		return err
	}

	var nodes []knowledge.Node
	switch {
	case queryNeighbors != "":
		if _, ok := graph.GetNode(queryNeighbors); !ok {
			return fmt.Errorf("node not found: %s", queryNeighbors)
		}
		nodes = graph.Neighbors(queryNeighbors, queryDepth)
	case queryType != "":
		nodes = graph.NodesByType(queryType)
	default:
		nodes = graph.FindNodes(queryFind)
	}

	if jsonOut {
		return printJSON(nodes)
	}
	if len(nodes) == 0 {
		fmt.Println("No matching nodes.")
		return nil
	}
	fmt.Printf("Found %d node(s):\n", len(nodes))
	for _, n := range nodes {
		fmt.Printf("  [%s] %s (%s)\n", n.Type, n.Label, n.ID)
		if len(n.Properties) > 0 {
			keys := make([]string, 0, len(n.Properties))
			for k := range n.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("      %s: %v\n", k, n.Properties[k])
			}
		}
	}
	return nil
}

func runGraphStats(cmd *cobra.Command, args []string) error {
	graph, err := knowledge.NewStore(cfg.Graph.Path).Load()
	if err != nil {
		return err
	}
	stats := graph.Stats()

	if jsonOut {
		return printJSON(stats)
	}
	fmt.Printf("Nodes: %d\n", stats.Nodes)
	for _, t := range sortedKeys(stats.NodeTypes) {
		fmt.Printf("  %s: %d\n", t, stats.NodeTypes[t])
	}
	fmt.Printf("Edges: %d\n", stats.Edges)
	for _, t := range sortedKeys(stats.EdgeTypes) {
		fmt.Printf("  %s: %d\n", t, stats.EdgeTypes[t])
	}
	return nil
}

// parseProps turns key=value pairs into a property map.
func parseProps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", pair)
		}
		props[key] = value
	}
	return props, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	graphAddNodeCmd.Flags().StringVar(&nodeID, "id", "", "Node ID (generated when empty)")
	graphAddNodeCmd.Flags().StringVar(&nodeType, "type", "", "Node type (required)")
	graphAddNodeCmd.Flags().StringVar(&nodeLabel, "label", "", "Node label (required)")
	graphAddNodeCmd.Flags().StringSliceVar(&nodeProps, "props", nil, "Node properties as key=value pairs")
	_ = graphAddNodeCmd.MarkFlagRequired("type")
	_ = graphAddNodeCmd.MarkFlagRequired("label")

	graphAddEdgeCmd.Flags().StringVar(&edgeFrom, "from", "", "Source node ID (required)")
	graphAddEdgeCmd.Flags().StringVar(&edgeTo, "to", "", "Target node ID (required)")
	graphAddEdgeCmd.Flags().StringVar(&edgeType, "type", "", "Edge type (required)")
	graphAddEdgeCmd.Flags().Float64Var(&edgeWeight, "weight", 0, "Edge weight")
	_ = graphAddEdgeCmd.MarkFlagRequired("from")
	_ = graphAddEdgeCmd.MarkFlagRequired("to")
	_ = graphAddEdgeCmd.MarkFlagRequired("type")

	graphRemoveNodeCmd.Flags().StringVar(&removeID, "id", "", "Node ID (required)")
	_ = graphRemoveNodeCmd.MarkFlagRequired("id")

	graphQueryCmd.Flags().StringVar(&queryNeighbors, "neighbors", "", "Node ID whose neighborhood to list")
	graphQueryCmd.Flags().IntVar(&queryDepth, "depth", 1, "Neighborhood depth in hops")
	graphQueryCmd.Flags().StringVar(&queryType, "type", "", "Node type to list")
	graphQueryCmd.Flags().StringVar(&queryFind, "find", "", "Label substring to search for")

	graphCmd.AddCommand(graphAddNodeCmd)
	graphCmd.AddCommand(graphAddEdgeCmd)
	graphCmd.AddCommand(graphRemoveNodeCmd)
	graphCmd.AddCommand(graphQueryCmd)
	graphCmd.AddCommand(graphStatsCmd)
}
