// Package topology parses the YAML topology documents described in
// SPEC_FULL.md §3: a static description of nodes, links, VLANs, routes,
// and per-node protocol configuration, built into a pkg/network.Network
// arena. This is the only on-disk format the core defines, and it is
// never a simulation-state snapshot (the "no persistence of simulation
// state" non-goal). Grounded on the teacher's pkg/config/config.go YAML
// loading path, generalized from a flat device list to the nested
// node/interface/link/protocol shape this simulator needs.
package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/dhcp"
	"github.com/packetlab/netsim/pkg/hsrp"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/l2switch"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/rip"
	"github.com/packetlab/netsim/pkg/router"
	"github.com/packetlab/netsim/pkg/simerr"
	"github.com/packetlab/netsim/pkg/stp"
)

// Document is the root of a topology YAML file.
type Document struct {
	Nodes []NodeDoc `yaml:"nodes"`
	Links []LinkDoc `yaml:"links"`
}

// NodeDoc describes one node and its interfaces/services.
type NodeDoc struct {
	Name       string          `yaml:"name"`
	Kind       string          `yaml:"kind"` // host | switch | router | server
	Interfaces []InterfaceDoc  `yaml:"interfaces"`
	Routes     []RouteDoc      `yaml:"routes,omitempty"`
	Stp        *StpDoc         `yaml:"stp,omitempty"`
	Rip        *RipDoc         `yaml:"rip,omitempty"`
	Dhcp       *DhcpServerDoc  `yaml:"dhcp,omitempty"`
	Hsrp       []HsrpGroupDoc  `yaml:"hsrp,omitempty"`
}

// InterfaceDoc describes one hardware/network interface.
type InterfaceDoc struct {
	Name         string   `yaml:"name"`
	Mac          string   `yaml:"mac,omitempty"`
	Ip           string   `yaml:"ip,omitempty"`
	Mask         int      `yaml:"mask_cidr,omitempty"`
	Up           bool     `yaml:"up"`
	VlanMode     string   `yaml:"vlan_mode,omitempty"` // access | trunk
	AllowedVlans []int    `yaml:"allowed_vlans,omitempty"`
	NativeVlan   int      `yaml:"native_vlan,omitempty"`
}

// LinkDoc connects two "node.interface" endpoints.
type LinkDoc struct {
	A             string `yaml:"a"`
	B             string `yaml:"b"`
	PropagationMs int    `yaml:"propagation_ms"`
}

// RouteDoc is one static route to install.
type RouteDoc struct {
	Network string `yaml:"network"`
	MaskCidr int   `yaml:"mask_cidr"`
	Gateway  string `yaml:"gateway"`
}

// StpDoc configures the Spanning Tree mode/priority for a switch.
type StpDoc struct {
	Mode     string `yaml:"mode"` // none | stp | rstp | pvst
	Priority uint16 `yaml:"priority"`
}

// RipDoc configures RIP on a router, enabling it on a set of interfaces.
type RipDoc struct {
	Interfaces     []string `yaml:"interfaces"`
	UpdateInterval float64  `yaml:"update_interval,omitempty"`
	InvalidAfter   float64  `yaml:"invalid_after,omitempty"`
	FlushAfter     float64  `yaml:"flush_after,omitempty"`
	SplitHorizon   *bool    `yaml:"split_horizon,omitempty"`
	PoisonReverse  *bool    `yaml:"poison_reverse,omitempty"`
}

// DhcpServerDoc configures a DHCP server bound to one interface.
type DhcpServerDoc struct {
	Interface    string `yaml:"interface"`
	PoolStart    string `yaml:"pool_start"`
	PoolEnd      string `yaml:"pool_end"`
	Router       string `yaml:"router,omitempty"`
	MaskCidr     int    `yaml:"mask_cidr"`
	LeaseSeconds float64 `yaml:"lease_seconds,omitempty"`
}

// HsrpGroupDoc configures one HSRP group on one interface.
type HsrpGroupDoc struct {
	Interface string  `yaml:"interface"`
	Group     int     `yaml:"group"`
	Priority  uint8   `yaml:"priority"`
	VirtualIp string  `yaml:"virtual_ip"`
	Hello     float64 `yaml:"hello_seconds,omitempty"`
	Hold      float64 `yaml:"hold_seconds,omitempty"`
}

// Load reads and parses a topology document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing topology %s: %w", path, err)
	}
	return &doc, nil
}

func kindFromString(s string) (node.Kind, error) {
	switch s {
	case "host", "":
		return node.KindHost, nil
	case "switch":
		return node.KindSwitch, nil
	case "router":
		return node.KindRouter, nil
	case "server":
		return node.KindServer, nil
	default:
		return 0, simerr.New(simerr.KindInvalidAddress, "kind", fmt.Sprintf("unknown node kind %q", s))
	}
}

// Result bundles the protocol services a topology document instantiated,
// keyed by node name, so callers (cmd/netsim, pkg/api) can inspect or
// drive them after Build returns without re-walking the document.
type Result struct {
	Routers  map[string]*router.Router
	Switches map[string]*l2switch.Switch
	Stp      map[string]*stp.Service
}

// Build materializes the document into net, wiring every node, interface,
// link, and declared protocol service. Nodes are built before links so
// that every interface referenced by a link already exists.
func (d *Document) Build(net *network.Network) (*Result, error) {
	routers := make(map[string]*router.Router)
	switches := make(map[string]*l2switch.Switch)
	stpSvcs := make(map[string]*stp.Service)
	result := &Result{Routers: routers, Switches: switches, Stp: stpSvcs}

	for _, nd := range d.Nodes {
		kind, err := kindFromString(nd.Kind)
		if err != nil {
			return nil, err
		}
		n, err := net.AddNode(nd.Name, kind)
		if err != nil {
			return nil, err
		}

		var rtr *router.Router
		if kind == node.KindRouter {
			rtr = router.Attach(n, net.Scheduler())
			routers[nd.Name] = rtr
		}

		byName := make(map[string]*iface.NetworkInterface)
		for _, ifd := range nd.Interfaces {
			var hw *iface.HardwareInterface
			var ni *iface.NetworkInterface
			if rtr != nil {
				ni = rtr.AddInterface(ifd.Name)
				hw = ni.HardwareInterface
			} else {
				hw = n.AddInterface(ifd.Name)
			}
			if err := applyInterfaceDoc(hw, ifd); err != nil {
				return nil, fmt.Errorf("node %s interface %s: %w", nd.Name, ifd.Name, err)
			}
			if ni != nil {
				if ifd.Ip != "" {
					ip, err := addr.ParseIp(ifd.Ip)
					if err != nil {
						return nil, err
					}
					ni.SetIp(ip)
				}
				if ifd.Mask != 0 {
					mask, err := addr.MaskFromCidr(ifd.Mask)
					if err != nil {
						return nil, err
					}
					ni.SetMask(mask)
				}
				byName[ifd.Name] = ni
			}
		}

		if kind == node.KindSwitch {
			var query l2switch.StpQuery = l2switch.PassAll{}
			if nd.Stp != nil && nd.Stp.Mode != "none" && nd.Stp.Mode != "" {
				mode, err := stpModeFromString(nd.Stp.Mode)
				if err != nil {
					return nil, err
				}
				svc := stp.Attach(n, net.Scheduler(), mode, nd.Stp.Priority)
				stpSvcs[nd.Name] = svc
				query = svc
			}
			switches[nd.Name] = l2switch.Attach(n, net.Scheduler(), query)
		}

		if rtr != nil {
			for _, rd := range nd.Routes {
				network_, err := addr.ParseIp(rd.Network)
				if err != nil {
					return nil, err
				}
				mask, err := addr.MaskFromCidr(rd.MaskCidr)
				if err != nil {
					return nil, err
				}
				gw, err := addr.ParseIp(rd.Gateway)
				if err != nil {
					return nil, err
				}
				if err := rtr.AddRoute(network_, mask, gw); err != nil {
					return nil, err
				}
			}
			if nd.Rip != nil {
				opts := rip.DefaultOptions()
				if nd.Rip.UpdateInterval > 0 {
					opts.UpdateInterval = nd.Rip.UpdateInterval
				}
				if nd.Rip.InvalidAfter > 0 {
					opts.InvalidAfter = nd.Rip.InvalidAfter
				}
				if nd.Rip.FlushAfter > 0 {
					opts.FlushAfter = nd.Rip.FlushAfter
				}
				if nd.Rip.SplitHorizon != nil {
					opts.SplitHorizon = *nd.Rip.SplitHorizon
				}
				if nd.Rip.PoisonReverse != nil {
					opts.PoisonReverse = *nd.Rip.PoisonReverse
				}
				ripSvc := rip.Attach(n, net.Scheduler(), rtr, opts)
				for _, ifName := range nd.Rip.Interfaces {
					ni, ok := byName[ifName]
					if !ok {
						return nil, simerr.New(simerr.KindUnknownIface, "interface", "rip: unknown interface "+ifName)
					}
					ripSvc.EnableInterface(ni)
				}
			}
			for _, hd := range nd.Hsrp {
				ni, ok := byName[hd.Interface]
				if !ok {
					return nil, simerr.New(simerr.KindUnknownIface, "interface", "hsrp: unknown interface "+hd.Interface)
				}
				vip, err := addr.ParseIp(hd.VirtualIp)
				if err != nil {
					return nil, err
				}
				hsrpSvc := hsrp.Attach(n, net.Scheduler())
				hsrpSvc.EnableGroup(ni, hd.Group, hd.Priority, vip, hd.Hello, hd.Hold)
			}
		}

		if nd.Dhcp != nil {
			ni, ok := byName[nd.Dhcp.Interface]
			if !ok {
				return nil, simerr.New(simerr.KindUnknownIface, "interface", "dhcp: unknown interface "+nd.Dhcp.Interface)
			}
			start, err := addr.ParseIp(nd.Dhcp.PoolStart)
			if err != nil {
				return nil, err
			}
			end, err := addr.ParseIp(nd.Dhcp.PoolEnd)
			if err != nil {
				return nil, err
			}
			var gw addr.Ip
			if nd.Dhcp.Router != "" {
				gw, err = addr.ParseIp(nd.Dhcp.Router)
				if err != nil {
					return nil, err
				}
			}
			mask, err := addr.MaskFromCidr(nd.Dhcp.MaskCidr)
			if err != nil {
				return nil, err
			}
			dhcp.AttachServer(n, net.Scheduler(), ni, dhcp.ServerConfig{
				Pool: dhcp.Pool{Start: start, End: end}, Router: gw, Mask: mask,
				LeaseSeconds: nd.Dhcp.LeaseSeconds,
			})
		}
	}

	for _, ld := range d.Links {
		aNode, aIf, err := splitEndpoint(ld.A)
		if err != nil {
			return nil, err
		}
		bNode, bIf, err := splitEndpoint(ld.B)
		if err != nil {
			return nil, err
		}
		if _, err := net.Link(aNode, aIf, bNode, bIf, ld.PropagationMs); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func splitEndpoint(s string) (nodeName, ifaceName string, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", simerr.New(simerr.KindInvalidAddress, "link", fmt.Sprintf("endpoint %q must be node.interface", s))
}

func applyInterfaceDoc(hw *iface.HardwareInterface, ifd InterfaceDoc) error {
	if ifd.Mac != "" {
		mac, err := addr.ParseMac(ifd.Mac)
		if err != nil {
			return err
		}
		hw.SetMac(mac)
	}
	switch ifd.VlanMode {
	case "trunk":
		hw.SetVlanMode(iface.ModeTrunk)
	case "access", "":
	default:
		return simerr.New(simerr.KindInvalidVlanId, "vlan_mode", "vlan_mode must be access or trunk")
	}
	for _, v := range ifd.AllowedVlans {
		if err := hw.AddVlan(v); err != nil {
			return err
		}
	}
	if ifd.NativeVlan != 0 {
		if err := hw.SetNativeVlan(ifd.NativeVlan); err != nil {
			return err
		}
	}
	if ifd.Up {
		hw.Up()
	}
	return nil
}

func stpModeFromString(s string) (stp.Mode, error) {
	switch s {
	case "stp":
		return stp.ModeSTP, nil
	case "rstp":
		return stp.ModeRSTP, nil
	case "pvst":
		return stp.ModePVST, nil
	default:
		return 0, simerr.NotImplemented(s)
	}
}
