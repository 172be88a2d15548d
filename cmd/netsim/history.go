package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packetlab/netsim/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <history.db>",
	Short: "List recent simulation run summaries from a history store",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(args[0])
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.Runs(historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	for _, r := range runs {
		fmt.Printf("#%d  %s  nodes=%d links=%d sim=%.1fs\n", r.ID, r.TopologyPath, r.NodeCount, r.LinkCount, r.SimSeconds)
	}
	return nil
}
