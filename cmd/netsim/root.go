package main

import (
	"github.com/spf13/cobra"
)

var version = "v0.1.0"

var rootCmd = &cobra.Command{
	Use:     "netsim",
	Short:   "A discrete-event packet-level network simulator",
	Long:    `netsim builds a virtual network from a YAML topology document and runs it on a deterministic virtual-time scheduler: Ethernet/802.1Q switching, spanning tree, IP routing, and RIP/OSPF/BGP/HSRP/DHCP/ARP.`,
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate("netsim {{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
