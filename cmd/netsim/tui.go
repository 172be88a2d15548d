package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/topology"
	"github.com/packetlab/netsim/pkg/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui <topology.yaml>",
	Short: "Open an interactive terminal inspector over a running topology",
	Args:  cobra.ExactArgs(1),
	RunE:  runTui,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTui(cmd *cobra.Command, args []string) error {
	doc, err := topology.Load(args[0])
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	net := network.New()
	result, err := doc.Build(net)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}

	return tui.Run(net, result)
}
