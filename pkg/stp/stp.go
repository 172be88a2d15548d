// Package stp implements the Spanning Tree state machine (§4.5 STP/802.1D),
// its RSTP extension (§4.6: edge detection, proposal/agreement), and PVST
// (§4.7: one instance per VLAN). It implements pkg/l2switch.StpQuery so the
// switch data plane can gate forwarding on it without either package
// importing the other.
//
// Grounded on the teacher's pkg/protocols/stp.go for the bridge/port field
// names and BPDU constants; the state machine itself (root election,
// port-role assignment, forward-delay timers) is new, since the teacher's
// version runs against captured real BPDUs on a fixed wall-clock timer
// rather than a virtual scheduler.
package stp

import (
	"hash/fnv"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
)

// Default timer constants from §3.
const (
	DefaultHelloTime    = 2
	DefaultForwardDelay = 15
	DefaultMaxAge       = 20
	DefaultLinkCost     = 10
	EdgeDetectSeconds   = 3
)

// InfiniteCost is the "no BPDU seen" sentinel.
const InfiniteCost = ^uint32(0)

// Mode selects which variant of the algorithm a Service runs.
type Mode int

const (
	ModeSTP Mode = iota
	ModeRSTP
	ModePVST
)

const (
	linkTypeP2P    = "point-to-point"
	linkTypeShared = "shared"
)

// stpMulticastMac is the real 802.1D Spanning Tree group multicast address,
// used as the destination of every BPDU this package sends.
var stpMulticastMac = addr.Mac{0x01, 0x80, 0xC2, 0x00, 0x00, 0x00}

type candidate struct {
	Cost     uint32
	BridgeId message.BridgeId
	PortId   uint16
}

func better(x, y candidate) bool {
	if x.Cost != y.Cost {
		return x.Cost < y.Cost
	}
	if !x.BridgeId.Equal(y.BridgeId) {
		return x.BridgeId.Less(y.BridgeId)
	}
	return x.PortId < y.PortId
}

// normBpdu is a canonical view over STPBpdu/RSTPBpdu/PVSTBpdu so the state
// machine doesn't need three parallel code paths.
type normBpdu struct {
	RootId       message.BridgeId
	RootPathCost uint32
	BridgeId     message.BridgeId
	PortId       uint16
	MessageAge   sched.Time
	MaxAge       sched.Time
	Proposal     bool
	Agreement    bool
	Vlan         int
}

func normalize(payload interface{}) (normBpdu, bool) {
	switch b := payload.(type) {
	case message.PVSTBpdu:
		n := normalizeRstp(b.RSTPBpdu)
		n.Vlan = b.VlanId
		return n, true
	case message.RSTPBpdu:
		return normalizeRstp(b), true
	case message.STPBpdu:
		return normBpdu{
			RootId: b.RootId, RootPathCost: b.RootPathCost, BridgeId: b.BridgeId,
			PortId: b.PortId, MessageAge: b.MessageAge, MaxAge: b.MaxAge,
		}, true
	default:
		return normBpdu{}, false
	}
}

func normalizeRstp(b message.RSTPBpdu) normBpdu {
	return normBpdu{
		RootId: b.RootId, RootPathCost: b.RootPathCost, BridgeId: b.BridgeId,
		PortId: b.PortId, MessageAge: b.MessageAge, MaxAge: b.MaxAge,
		Proposal: b.Proposal, Agreement: b.Agreement,
	}
}

func payloadOf(frame iface.Frame) interface{} {
	switch f := frame.(type) {
	case message.Dot1Q:
		return f.Payload
	case message.Ethernet:
		return f.Payload
	default:
		return nil
	}
}

func portId(p *iface.HardwareInterface) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.Name))
	return uint16(h.Sum32())
}

func linkTypeFor(p *iface.HardwareInterface) string {
	if p.FullDuplex() {
		return linkTypeP2P
	}
	return linkTypeShared
}

type portState struct {
	Role  message.PortRole
	State message.PortState
	Cost  uint32

	cached *normBpdu

	agingTimer      *sched.Subscription
	transitionTimer *sched.Subscription

	isEdge        bool
	edgeTimer     *sched.Subscription
	proposed      bool
	neighborIsStp bool
	linkType      string
}

// Instance is one Spanning Tree instance: the sole instance for STP/RSTP,
// or one per discovered VLAN for PVST.
type Instance struct {
	vlan     int
	mode     Mode
	svc      *Service
	bridgeId message.BridgeId
	rootId   message.BridgeId
	rootPort *iface.HardwareInterface
	isRoot   bool
	ports    map[*iface.HardwareInterface]*portState
	// order holds the same ports as the map, but in the node's stable
	// interface-creation order (node.Interfaces()), so BPDU
	// send/processing order within a tick follows insertion order per
	// §4.1 rather than Go's randomized map iteration order.
	order    []*iface.HardwareInterface
	helloSub *sched.Subscription
}

// IsRoot reports whether this instance's bridge is currently the root.
func (inst *Instance) IsRoot() bool { return inst.isRoot }

// RootId returns the instance's current root bridge id.
func (inst *Instance) RootId() message.BridgeId { return inst.rootId }

// Service attaches Spanning Tree to a node. Concrete behavior (learning,
// forwarding) lives in pkg/l2switch, which consults this Service through
// the StpQuery interface.
type Service struct {
	node     *node.Node
	sched    *sched.Scheduler
	mode     Mode
	priority uint16

	helloTime, forwardDelay, maxAge sched.Time

	instances   map[int]*Instance
	defaultVlan int
}

// Attach creates a Service for n running mode, with bridge priority
// priority, and brings up its default instance (vlan 1 for PVST, the sole
// instance otherwise) immediately so periodic hellos start right away.
func Attach(n *node.Node, s *sched.Scheduler, mode Mode, priority uint16) *Service {
	svc := &Service{
		node: n, sched: s, mode: mode, priority: priority,
		helloTime:    s.Delay(DefaultHelloTime),
		forwardDelay: s.Delay(DefaultForwardDelay),
		maxAge:       s.Delay(DefaultMaxAge),
		instances:    make(map[int]*Instance),
	}
	if mode == ModePVST {
		svc.defaultVlan = lowestVlan(n)
	}
	svc.instanceFor(0)
	return svc
}

func lowestVlan(n *node.Node) int {
	best, first := 1, true
	for _, p := range n.Interfaces() {
		for _, v := range p.AllowedVlans() {
			if first || v < best {
				best, first = v, false
			}
		}
	}
	return best
}

func (svc *Service) effectiveBridgeId() message.BridgeId {
	var mac addr.Mac
	found := false
	for _, p := range svc.node.Interfaces() {
		if p.Mac().IsZero() {
			continue
		}
		if !found || p.Mac().Less(mac) {
			mac, found = p.Mac(), true
		}
	}
	return message.BridgeId{Priority: svc.priority, Mac: mac}
}

func (svc *Service) keyFor(vlan int) int {
	if svc.mode != ModePVST {
		return 0
	}
	if vlan == 0 {
		return svc.defaultVlan
	}
	return vlan
}

func (svc *Service) instanceFor(vlan int) *Instance {
	key := svc.keyFor(vlan)
	inst, ok := svc.instances[key]
	if !ok {
		inst = svc.newInstance(key)
		svc.instances[key] = inst
	}
	return inst
}

func (svc *Service) newInstance(vlan int) *Instance {
	bridgeId := svc.effectiveBridgeId()
	inst := &Instance{
		vlan: vlan, mode: svc.mode, svc: svc,
		bridgeId: bridgeId, rootId: bridgeId, isRoot: true,
		ports: make(map[*iface.HardwareInterface]*portState),
	}
	for _, p := range svc.node.Interfaces() {
		ps := &portState{}
		inst.ports[p] = ps
		inst.order = append(inst.order, p)
		if svc.mode != ModeSTP {
			ps.linkType = linkTypeFor(p)
			svc.armEdgeTimer(inst, p, ps)
		}
		svc.setRole(inst, p, ps, message.PortRoleDesignated)
	}
	inst.helloSub = svc.sched.Repeat(svc.helloTime, func() { svc.sendHellos(inst) })
	return inst
}

func (svc *Service) armEdgeTimer(inst *Instance, p *iface.HardwareInterface, ps *portState) {
	if ps.edgeTimer != nil {
		ps.edgeTimer.Cancel()
	}
	ps.edgeTimer = svc.sched.Once(svc.sched.Delay(EdgeDetectSeconds), func() {
		ps.isEdge = true
		ps.neighborIsStp = false
		if ps.Role == message.PortRoleDesignated {
			if ps.transitionTimer != nil {
				ps.transitionTimer.Cancel()
				ps.transitionTimer = nil
			}
			ps.State = message.StateForwarding
		}
	})
}

// setRole applies a role change, driving the Blocking->Listening->Learning
// ->Forwarding timer chain for newly-forwarding roles, and enforces the
// root-bridge invariant (a root bridge's ports are never
// Root/Alternate/Backup/Blocked).
func (svc *Service) setRole(inst *Instance, p *iface.HardwareInterface, ps *portState, role message.PortRole) {
	if inst.isRoot {
		switch role {
		case message.PortRoleRoot, message.PortRoleAlternate, message.PortRoleBackup, message.PortRoleBlocked:
			return
		}
	}
	if ps.Role == role {
		return
	}
	ps.Role = role
	if ps.transitionTimer != nil {
		ps.transitionTimer.Cancel()
		ps.transitionTimer = nil
	}
	switch role {
	case message.PortRoleDisabled:
		ps.State = message.StateDisabled
		ps.proposed = false
	case message.PortRoleAlternate, message.PortRoleBackup, message.PortRoleBlocked:
		ps.State = message.StateBlocking
		ps.proposed = false
	case message.PortRoleRoot, message.PortRoleDesignated:
		ps.proposed = role == message.PortRoleDesignated && svc.mode != ModeSTP &&
			ps.linkType == linkTypeP2P && ps.neighborIsStp
		if ps.isEdge && role == message.PortRoleDesignated {
			ps.State = message.StateForwarding
			return
		}
		ps.State = message.StateListening
		fd := svc.forwardDelay
		ps.transitionTimer = svc.sched.Once(fd, func() {
			ps.State = message.StateLearning
			ps.transitionTimer = svc.sched.Once(fd, func() {
				ps.State = message.StateForwarding
			})
		})
	}
}

func (inst *Instance) becomeRoot() {
	inst.isRoot = true
	inst.rootId = inst.bridgeId
	inst.rootPort = nil
	for _, p := range inst.order {
		ps := inst.ports[p]
		ps.Cost = 0
		if ps.Role != message.PortRoleDisabled {
			inst.svc.setRole(inst, p, ps, message.PortRoleDesignated)
		}
	}
}

func (inst *Instance) selectRootPort() {
	var best *iface.HardwareInterface
	var bestCand candidate
	first := true
	for _, p := range inst.order {
		ps := inst.ports[p]
		if ps.cached == nil {
			continue
		}
		cand := candidate{Cost: ps.Cost, BridgeId: ps.cached.BridgeId, PortId: ps.cached.PortId}
		if first || better(cand, bestCand) {
			best, bestCand, first = p, cand, false
		}
	}
	if best == nil {
		return
	}
	if inst.rootPort != nil && inst.rootPort != best {
		prev := inst.rootPort
		inst.svc.setRole(inst, prev, inst.ports[prev], message.PortRoleDesignated)
	}
	inst.rootPort = best
	inst.svc.setRole(inst, best, inst.ports[best], message.PortRoleRoot)
}

func (inst *Instance) updateOtherPorts() {
	ownCost := uint32(0)
	if inst.rootPort != nil {
		ownCost = inst.ports[inst.rootPort].Cost
	}
	for _, p := range inst.order {
		ps := inst.ports[p]
		if p == inst.rootPort || ps.Role == message.PortRoleDisabled {
			continue
		}
		if ps.cached == nil {
			inst.svc.setRole(inst, p, ps, message.PortRoleDesignated)
			continue
		}
		own := candidate{Cost: ownCost, BridgeId: inst.bridgeId, PortId: portId(p)}
		recv := candidate{Cost: ps.cached.RootPathCost, BridgeId: ps.cached.BridgeId, PortId: ps.cached.PortId}
		if better(recv, own) {
			role := message.PortRoleBlocked
			if inst.mode != ModeSTP {
				role = message.PortRoleAlternate
			}
			inst.svc.setRole(inst, p, ps, role)
		} else {
			inst.svc.setRole(inst, p, ps, message.PortRoleDesignated)
		}
	}
}

func (inst *Instance) synchronize(except *iface.HardwareInterface) {
	for _, p := range inst.order {
		ps := inst.ports[p]
		if p == except {
			continue
		}
		if ps.Role == message.PortRoleDesignated && !ps.isEdge {
			if ps.transitionTimer != nil {
				ps.transitionTimer.Cancel()
				ps.transitionTimer = nil
			}
			ps.State = message.StateBlocking
		}
	}
}

func (svc *Service) onBpdu(inst *Instance, p *iface.HardwareInterface, n normBpdu) {
	if n.MessageAge >= n.MaxAge || n.BridgeId.Equal(inst.bridgeId) {
		return
	}
	ps := inst.ports[p]
	if ps == nil {
		return
	}

	if svc.mode != ModeSTP {
		ps.neighborIsStp = true
		ps.isEdge = false
		svc.armEdgeTimer(inst, p, ps)
	}

	if ps.agingTimer != nil {
		ps.agingTimer.Cancel()
	}
	ps.agingTimer = svc.sched.Once(svc.maxAge, func() {
		ps.Cost = InfiniteCost
		if inst.rootPort == p {
			inst.becomeRoot()
		}
	})

	if n.RootId.Less(inst.rootId) {
		inst.rootId = n.RootId
		inst.isRoot = inst.rootId.Equal(inst.bridgeId)
		for _, other := range inst.ports {
			other.Cost = 0
			other.cached = nil
		}
	}

	if n.RootId.Equal(inst.rootId) {
		cached := n
		ps.cached = &cached
		ps.Cost = n.RootPathCost + DefaultLinkCost
	}

	if !inst.isRoot {
		inst.selectRootPort()
		inst.updateOtherPorts()
	}

	if svc.mode != ModeSTP {
		if n.Agreement && ps.proposed {
			ps.proposed = false
			if ps.transitionTimer != nil {
				ps.transitionTimer.Cancel()
				ps.transitionTimer = nil
			}
			ps.State = message.StateForwarding
		}
		if n.Proposal && ps.neighborIsStp {
			inst.synchronize(p)
			svc.sendAgreement(inst, p, ps)
		}
	}
}

func (svc *Service) buildBpdu(inst *Instance, p *iface.HardwareInterface, ps *portState) message.RSTPBpdu {
	cost := uint32(0)
	if !inst.isRoot && inst.rootPort != nil {
		cost = inst.ports[inst.rootPort].Cost
	}
	base := message.STPBpdu{
		Type:         message.BpduTypeConfig,
		RootId:       inst.rootId,
		RootPathCost: cost,
		BridgeId:     inst.bridgeId,
		PortId:       portId(p),
		MessageAge:   0,
		MaxAge:       svc.maxAge,
		HelloTime:    svc.helloTime,
		ForwardDelay: svc.forwardDelay,
	}
	return message.RSTPBpdu{
		STPBpdu:    base,
		Forwarding: ps.State == message.StateForwarding,
		Learning:   ps.State == message.StateLearning || ps.State == message.StateForwarding,
		PortRole:   ps.Role,
		Proposal:   svc.mode != ModeSTP && ps.proposed,
	}
}

func (svc *Service) transmitBpdu(inst *Instance, p *iface.HardwareInterface, bpdu message.RSTPBpdu) {
	var payload interface{} = bpdu
	if svc.mode == ModeSTP {
		payload = bpdu.STPBpdu
	} else if svc.mode == ModePVST {
		payload = message.PVSTBpdu{RSTPBpdu: bpdu, VlanId: inst.vlan}
	}
	eth := message.NewEthernet(p.Mac(), stpMulticastMac, payload)
	var frame iface.Frame = eth
	if p.VlanMode() == iface.ModeTrunk {
		frame = message.Retag(eth, inst.vlan)
	}
	_ = p.Send(frame)
}

func (svc *Service) sendAgreement(inst *Instance, p *iface.HardwareInterface, ps *portState) {
	bpdu := svc.buildBpdu(inst, p, ps)
	bpdu.Agreement = true
	bpdu.Proposal = false
	svc.transmitBpdu(inst, p, bpdu)
}

func (svc *Service) sendHellos(inst *Instance) {
	for _, p := range inst.order {
		ps := inst.ports[p]
		if ps.Role != message.PortRoleRoot && ps.Role != message.PortRoleDesignated {
			continue
		}
		if !p.IsUp() || !p.Connected() {
			continue
		}
		svc.transmitBpdu(inst, p, svc.buildBpdu(inst, p, ps))
	}
}

// State implements l2switch.StpQuery.
func (svc *Service) State(p *iface.HardwareInterface, vlan int) message.PortState {
	inst := svc.instanceFor(vlan)
	ps := inst.ports[p]
	if ps == nil {
		return message.StateDisabled
	}
	return ps.State
}

// Role implements l2switch.StpQuery.
func (svc *Service) Role(p *iface.HardwareInterface, vlan int) message.PortRole {
	inst := svc.instanceFor(vlan)
	ps := inst.ports[p]
	if ps == nil {
		return message.PortRoleDisabled
	}
	return ps.Role
}

// Handle implements l2switch.StpQuery: BPDU reception, dispatched to the
// matching PVST instance when running in PVST mode.
func (svc *Service) Handle(p *iface.HardwareInterface, frame iface.Frame) {
	payload := payloadOf(frame)
	n, ok := normalize(payload)
	if !ok {
		return
	}
	inst := svc.instanceFor(n.Vlan)
	svc.onBpdu(inst, p, n)
}

// IsRoot reports whether this bridge is root of at least one instance (for
// STP/RSTP there is exactly one instance; for PVST, per §4.7, true iff root
// of at least one VLAN).
func (svc *Service) IsRoot() bool {
	for _, inst := range svc.instances {
		if inst.isRoot {
			return true
		}
	}
	return false
}

// RootId returns the root bridge id of the given VLAN's instance (or the
// default instance if vlan is 0 / not applicable).
func (svc *Service) RootId(vlan int) message.BridgeId {
	return svc.instanceFor(vlan).rootId
}

// BridgeId returns this switch's own bridge id.
func (svc *Service) BridgeId() message.BridgeId { return svc.effectiveBridgeId() }
