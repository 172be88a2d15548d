// Package l2switch implements the switch data plane from §4.4: MAC
// learning with aging, VLAN-aware flood/forward, and STP-gated
// transmit/receive. It is grounded on the teacher's device-table frame
// handling in pkg/protocols/stack.go (receive -> learn -> forward), reworked
// from raw byte frames to the in-memory message hierarchy and from a fixed
// dispatch function to a listener registered on the node's frame chain.
package l2switch

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
)

// AgingTimeoutSeconds is how long a MAC-table entry survives without a
// refresh (§3: "Aging removes entries older than 300 s").
const AgingTimeoutSeconds = 300

// SweepIntervalSeconds is how often the aging sweep runs (§3: "a periodic
// sweep runs every 10 s of virtual time").
const SweepIntervalSeconds = 10

// StpQuery is the minimal view the switch data plane needs of the Spanning
// Tree state machine: per-port, per-VLAN state and role, plus a sink for
// BPDUs. pkg/stp implements this; l2switch never imports pkg/stp, so there
// is no cycle. A PassAll implementation (below) is used for switches that
// don't run STP at all.
type StpQuery interface {
	State(p *iface.HardwareInterface, vlan int) message.PortState
	Role(p *iface.HardwareInterface, vlan int) message.PortRole
	Handle(p *iface.HardwareInterface, frame iface.Frame)
}

// PassAll is the trivial StpQuery for a switch running no Spanning Tree
// instance: every port is always Forwarding/Designated and BPDUs (there
// won't be any from this switch, but a neighbor might still send one) are
// silently discarded.
type PassAll struct{}

func (PassAll) State(*iface.HardwareInterface, int) message.PortState { return message.StateForwarding }
func (PassAll) Role(*iface.HardwareInterface, int) message.PortRole   { return message.PortRoleDesignated }
func (PassAll) Handle(*iface.HardwareInterface, iface.Frame)          {}

type macEntry struct {
	Iface    *iface.HardwareInterface
	LastSeen sched.Time
}

// Switch is the learning-bridge data plane attached to a node.
type Switch struct {
	node  *node.Node
	sched *sched.Scheduler
	stp   StpQuery

	mac        map[addr.Mac]macEntry
	knownVlans map[int]string
	sweep      *sched.Subscription
}

// Attach wires a Switch's frame handling onto n's listener chain and starts
// its aging sweep. stp may be PassAll{} if the node runs no STP instance.
func Attach(n *node.Node, s *sched.Scheduler, stp StpQuery) *Switch {
	sw := &Switch{
		node:       n,
		sched:      s,
		stp:        stp,
		mac:        make(map[addr.Mac]macEntry),
		knownVlans: map[int]string{1: "default"},
	}
	n.AddListener(sw.onFrame)
	sw.sweep = s.Repeat(s.Delay(SweepIntervalSeconds), sw.ageSweep)
	return sw
}

// Detach stops the aging sweep (e.g. the node is being removed).
func (sw *Switch) Detach() { sw.sweep.Cancel() }

// KnownVlans returns the VLAN id -> name mapping.
func (sw *Switch) KnownVlans() map[int]string {
	out := make(map[int]string, len(sw.knownVlans))
	for k, v := range sw.knownVlans {
		out[k] = v
	}
	return out
}

// AddVlan registers a human name for a VLAN id.
func (sw *Switch) AddVlan(id int, name string) { sw.knownVlans[id] = name }

// MacTable returns a snapshot of the learned MAC table, for tests and
// inspection tooling.
func (sw *Switch) MacTable() map[addr.Mac]macEntry {
	out := make(map[addr.Mac]macEntry, len(sw.mac))
	for k, v := range sw.mac {
		out[k] = v
	}
	return out
}

func (sw *Switch) ageSweep() {
	cutoff := sw.sched.Now() - sw.sched.Delay(AgingTimeoutSeconds)
	for mac, ent := range sw.mac {
		if ent.LastSeen < cutoff {
			delete(sw.mac, mac)
		}
	}
}

// onFrame implements §4.4 steps 1-7.
func (sw *Switch) onFrame(e node.FrameEvent) listener.Disposition {
	p := e.In

	var base message.Ethernet
	var tagged bool
	var vlan int
	switch f := e.Frame.(type) {
	case message.Dot1Q:
		base, tagged, vlan = f.Ethernet, true, f.VlanId
	case message.Ethernet:
		base, tagged, vlan = f, false, p.FirstAllowedVlan()
	default:
		return listener.Continue
	}

	// Step 2 (decoded ahead of step 1): BPDUs are handed to the Spanning
	// Tree service unconditionally, bypassing the forwarding-state gate
	// below. A Blocking/Blocked port must keep receiving and processing
	// BPDUs indefinitely -- that is how it detects a topology change or a
	// dead upstream and reconverges (§4.5's per-port aging timer is
	// cancelled and restarted from exactly this call). BPDUs are never
	// learned from or forwarded either way.
	if isBpdu(base.Payload) {
		sw.stp.Handle(p, e.Frame)
		return listener.Stop
	}

	// Step 1: STP state/role gate for data frames, keyed by the frame's
	// real VLAN (not a guess) so a PVST trunk port gates using the
	// instance that actually owns this frame's VLAN.
	state := sw.stp.State(p, vlan)
	if state == message.StateBlocking {
		return listener.Stop
	}
	switch sw.stp.Role(p, vlan) {
	case message.PortRoleAlternate, message.PortRoleBackup, message.PortRoleBlocked:
		return listener.Stop
	}

	// Step 3: learn (replace-or-insert).
	sw.mac[base.SrcMac] = macEntry{Iface: p, LastSeen: sw.sched.Now()}

	// Step 4.
	if state == message.StateListening {
		return listener.Stop
	}
	if state == message.StateLearning {
		return listener.Handled
	}

	// Steps 5-6: egress selection.
	var egress []*iface.HardwareInterface
	if base.DstMac.IsBroadcast() {
		egress = sw.floodTargets(p, vlan)
	} else if ent, ok := sw.mac[base.DstMac]; ok {
		if ent.Iface != p && ent.Iface.AllowsVlan(vlan) {
			egress = []*iface.HardwareInterface{ent.Iface}
		}
	} else {
		egress = sw.floodTargets(p, vlan)
	}

	// Step 7: per-egress STP gate and tag rewrite.
	for _, q := range egress {
		if sw.stp.State(q, vlan) != message.StateForwarding {
			continue
		}
		switch sw.stp.Role(q, vlan) {
		case message.PortRoleAlternate, message.PortRoleBackup, message.PortRoleBlocked:
			continue
		}
		sw.transmit(q, base, vlan)
	}
	_ = tagged
	return listener.Handled
}

func (sw *Switch) floodTargets(in *iface.HardwareInterface, vlan int) []*iface.HardwareInterface {
	var out []*iface.HardwareInterface
	for _, q := range sw.node.Interfaces() {
		if q == in {
			continue
		}
		if q.AllowsVlan(vlan) {
			out = append(out, q)
		}
	}
	return out
}

func (sw *Switch) transmit(q *iface.HardwareInterface, base message.Ethernet, vlan int) {
	var out iface.Frame
	if q.VlanMode() == iface.ModeTrunk {
		out = message.Retag(base, vlan)
	} else {
		out = base
	}
	_ = q.Send(out)
}

func isBpdu(payload interface{}) bool {
	switch payload.(type) {
	case message.STPBpdu, message.RSTPBpdu, message.PVSTBpdu:
		return true
	default:
		return false
	}
}
