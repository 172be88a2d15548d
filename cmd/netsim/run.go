package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packetlab/netsim/pkg/history"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/simlog"
	"github.com/packetlab/netsim/pkg/topology"
)

var (
	runDuration float64
	runHistory  string
	noColor     bool
)

var runCmd = &cobra.Command{
	Use:   "run <topology.yaml>",
	Short: "Load a topology document and run it for a span of virtual time",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Float64Var(&runDuration, "duration", 60, "virtual seconds to advance the scheduler")
	runCmd.Flags().StringVar(&runHistory, "history", "", "path to a BoltDB run-history file (skip to disable)")
	runCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	simlog.InitColors(!noColor)
	path := args[0]

	doc, err := topology.Load(path)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	net := network.New()
	result, err := doc.Build(net)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}

	startedAt := net.Scheduler().Now()
	net.Scheduler().Advance(net.Scheduler().Delay(runDuration))
	simlog.Successf("advanced %.1fs of virtual time (from %v)", runDuration, startedAt)

	var rootBridges []string
	for name, svc := range result.Stp {
		root := svc.IsRoot()
		simlog.Eventf(nil, simlog.ProtocolSTP, name, 0, "root=%v bridge=%v", root, svc.BridgeId())
		if root {
			rootBridges = append(rootBridges, name)
		}
	}
	routeCounts := make(map[string]int, len(result.Routers))
	for name, rtr := range result.Routers {
		routes := rtr.Table().Routes()
		routeCounts[name] = len(routes)
		simlog.Eventf(nil, simlog.ProtocolIP, name, 0, "%d installed route(s)", len(routes))
		for _, r := range routes {
			fmt.Printf("  %v/%d via %v metric %d\n", r.Network, r.Mask.Cidr(), r.NextHop, r.Metric)
		}
	}

	if runHistory != "" {
		store, err := history.Open(runHistory)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer store.Close()
		summary := history.RunSummary{
			TopologyPath:   path,
			SimSeconds:     runDuration,
			NodeCount:      len(net.Nodes()),
			LinkCount:      len(net.Links()),
			StpRootBridges: rootBridges,
			RouteCounts:    routeCounts,
		}
		if err := store.RecordRun(summary); err != nil {
			return fmt.Errorf("record run summary: %w", err)
		}
	}

	return nil
}
