package iface

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/sched"
)

// ArpEntry is a learned IP->MAC binding with the virtual time it was last
// observed.
type ArpEntry struct {
	Mac      addr.Mac
	LastSeen sched.Time
}

// NetworkInterface pairs a hardware interface with IP-layer configuration:
// address, mask, and an opportunistically-learned ARP cache (§4.10). The
// eviction policy for stale entries is left unspecified by the source per
// the spec's open question; this implementation never evicts on a timer,
// only ever overwrites on a fresher observation, which is the one behavior
// the spec text requires ("arp_table.get(ip) reflects the most recently
// observed binding").
type NetworkInterface struct {
	*HardwareInterface

	ip   addr.Ip
	mask addr.Mask
	arp  map[addr.Ip]ArpEntry
}

// NewNetworkInterface wraps an existing hardware interface with IP state.
func NewNetworkInterface(hw *HardwareInterface) *NetworkInterface {
	return &NetworkInterface{HardwareInterface: hw, arp: make(map[addr.Ip]ArpEntry)}
}

// Ip returns the configured IPv4 address.
func (n *NetworkInterface) Ip() addr.Ip { return n.ip }

// SetIp assigns the interface's IPv4 address.
func (n *NetworkInterface) SetIp(ip addr.Ip) { n.ip = ip }

// Mask returns the configured subnet mask.
func (n *NetworkInterface) Mask() addr.Mask { return n.mask }

// SetMask assigns the interface's subnet mask.
func (n *NetworkInterface) SetMask(mask addr.Mask) { n.mask = mask }

// HasIp reports whether ip is this interface's own address.
func (n *NetworkInterface) HasIp(ip addr.Ip) bool { return n.ip == ip }

// OnSameSubnet reports whether ip shares this interface's network.
func (n *NetworkInterface) OnSameSubnet(ip addr.Ip) bool {
	return n.ip.SameNetwork(n.mask, ip)
}

// LearnArp records or refreshes an IP->MAC binding, always taking the most
// recent observation regardless of what was cached before.
func (n *NetworkInterface) LearnArp(ip addr.Ip, mac addr.Mac, now sched.Time) {
	n.arp[ip] = ArpEntry{Mac: mac, LastSeen: now}
}

// LookupArp returns the cached binding for ip, if any.
func (n *NetworkInterface) LookupArp(ip addr.Ip) (addr.Mac, bool) {
	e, ok := n.arp[ip]
	return e.Mac, ok
}

// ArpEntries returns a snapshot of the cache, for inspection/tests.
func (n *NetworkInterface) ArpEntries() map[addr.Ip]ArpEntry {
	out := make(map[addr.Ip]ArpEntry, len(n.arp))
	for k, v := range n.arp {
		out[k] = v
	}
	return out
}
