// Handoff registry commands.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentloom/agentloom"
)

var (
	handoffStatus string
	handoffAgent  string
)

var handoffsCmd = &cobra.Command{
	Use:   "handoffs",
	Short: "Inspect the handoff registry",
}

var handoffsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List handoff records, optionally filtered by status or agent",
	RunE:  runHandoffsList,
}

func runHandoffsList(cmd *cobra.Command, args []string) error {
	registry, err := agentloom.NewHandoffRegistry(cfg.Registry.Path)
	if err != nil {
		return err
	}

	filter := agentloom.HandoffFilter{
		Status: agentloom.HandoffStatus(handoffStatus),
		Agent:  handoffAgent,
	}
	records := registry.List(filter)

	if jsonOut {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No handoff records.")
		return nil
	}
	for _, h := range records {
		fmt.Printf("%s  %-11s  %s -> %s  %s\n",
			h.CreatedAt.Format("2006-01-02 15:04"), h.Status, h.From, h.To, h.Task)
		if h.Error != "" {
			fmt.Printf("    error: %s\n", h.Error)
		}
	}
	return nil
}

func init() {
	handoffsListCmd.Flags().StringVar(&handoffStatus, "status", "", "Filter by status: pending, in_progress, completed, failed")
	handoffsListCmd.Flags().StringVar(&handoffAgent, "agent", "", "Filter by sender or recipient agent name")

	handoffsCmd.AddCommand(handoffsListCmd)
}
