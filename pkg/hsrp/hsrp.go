// Package hsrp implements the First-Hop-Redundancy group state machine
// from §4.14: hello/hold-timer-driven active/standby election over a
// shared virtual IP and virtual MAC, with the active group member
// answering ARP for the virtual address. Grounded on the teacher's
// pkg/protocols/stp.go cancel-then-reschedule per-port timer idiom (here:
// one hold timer per group instead of one BPDU-age timer per port) and
// pkg/arp for how an ARP reply is built and sent back through the same
// listener-chain delivery path as data frames.
package hsrp

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
)

// Default timer constants from §4.14 (RFC 2281 defaults).
const (
	DefaultHelloSeconds = 3
	DefaultHoldSeconds  = 10
)

// State is a group member's position in the §4.14 election state machine.
// Learn is unused here: every group is configured with an explicit virtual
// IP up front, so there is never an "IP not yet known" phase to model.
type State int

const (
	StateInitial State = iota
	StateLearn
	StateListen
	StateSpeak
	StateStandby
	StateActive
)

func (s State) String() string {
	switch s {
	case StateLearn:
		return "learn"
	case StateListen:
		return "listen"
	case StateSpeak:
		return "speak"
	case StateStandby:
		return "standby"
	case StateActive:
		return "active"
	default:
		return "initial"
	}
}

// VirtualMac builds the well-known HSRP virtual MAC for a group id, per
// §4.14: 00:00:0C:07:AC:XX.
func VirtualMac(groupId int) addr.Mac {
	return addr.Mac{0x00, 0x00, 0x0C, 0x07, 0xAC, byte(groupId)}
}

// Group is one HSRP group configured on one network interface.
type Group struct {
	ni       *iface.NetworkInterface
	GroupId  int
	Priority uint8
	VirtualIp addr.Ip
	virtualMac addr.Mac

	state State

	helloSeconds, holdSeconds float64
	bestPeerPriority          int // -1 until a peer is heard from

	electionTimer *sched.Subscription
	holdTimer     *sched.Subscription
	helloTimer    *sched.Subscription

	svc *Service
}

// State returns the group's current position in the election FSM.
func (g *Group) State() State { return g.state }

// VirtualMac returns the MAC the group answers ARP with while Active.
func (g *Group) VirtualMac() addr.Mac { return g.virtualMac }

// IsActive reports whether this member currently owns the virtual address.
func (g *Group) IsActive() bool { return g.state == StateActive }

// Service is a per-router HSRP process: every configured group, keyed by
// the interface and group id a Hello frame arrives on.
type Service struct {
	node  *node.Node
	sched *sched.Scheduler

	groups map[*iface.HardwareInterface]map[int]*Group
}

// Attach wires the HSRP service onto n's frame chain.
func Attach(n *node.Node, s *sched.Scheduler) *Service {
	svc := &Service{node: n, sched: s, groups: make(map[*iface.HardwareInterface]map[int]*Group)}
	n.AddListener(svc.onFrame)
	return svc
}

// EnableGroup configures a new HSRP group on ni and starts its election
// timer. helloSeconds/holdSeconds of 0 take the RFC 2281 defaults.
func (svc *Service) EnableGroup(ni *iface.NetworkInterface, groupId int, priority uint8, virtualIp addr.Ip, helloSeconds, holdSeconds float64) *Group {
	if helloSeconds <= 0 {
		helloSeconds = DefaultHelloSeconds
	}
	if holdSeconds <= 0 {
		holdSeconds = DefaultHoldSeconds
	}
	g := &Group{
		ni: ni, GroupId: groupId, Priority: priority, VirtualIp: virtualIp,
		virtualMac: VirtualMac(groupId), state: StateListen,
		helloSeconds: helloSeconds, holdSeconds: holdSeconds,
		bestPeerPriority: -1, svc: svc,
	}
	if svc.groups[ni.HardwareInterface] == nil {
		svc.groups[ni.HardwareInterface] = make(map[int]*Group)
	}
	svc.groups[ni.HardwareInterface][groupId] = g
	g.armElection()
	return g
}

func (g *Group) armElection() {
	g.electionTimer = g.svc.sched.Once(g.svc.sched.Delay(g.holdSeconds), g.onElectionTimeout)
}

func (g *Group) onElectionTimeout() {
	g.state = StateSpeak
	if int(g.Priority) > g.bestPeerPriority {
		g.becomeActive()
	} else {
		g.becomeStandby()
	}
}

func (g *Group) becomeActive() {
	g.cancelTimers()
	g.state = StateActive
	g.sendHello()
	g.helloTimer = g.svc.sched.Repeat(g.svc.sched.Delay(g.helloSeconds), g.sendHello)
}

func (g *Group) becomeStandby() {
	if g.helloTimer != nil {
		g.helloTimer.Cancel()
		g.helloTimer = nil
	}
	g.state = StateStandby
	g.armHold()
}

func (g *Group) armHold() {
	if g.holdTimer != nil {
		g.holdTimer.Cancel()
	}
	g.holdTimer = g.svc.sched.Once(g.svc.sched.Delay(g.holdSeconds), func() {
		// Failover: the active member has gone silent for a full hold
		// interval. Promote within one hello interval of detecting this.
		g.becomeActive()
	})
}

func (g *Group) cancelTimers() {
	if g.electionTimer != nil {
		g.electionTimer.Cancel()
		g.electionTimer = nil
	}
	if g.holdTimer != nil {
		g.holdTimer.Cancel()
		g.holdTimer = nil
	}
}

func (g *Group) sendHello() {
	hello := message.Hsrp{Group: g.GroupId, Op: message.HsrpHello, Priority: g.Priority, VirtualIp: g.VirtualIp, State: g.state.String()}
	_ = g.ni.Send(message.NewEthernet(g.ni.Mac(), addr.Broadcast, hello))
}

func (svc *Service) onFrame(e node.FrameEvent) listener.Disposition {
	groups, ok := svc.groups[e.In]
	if !ok {
		return listener.Continue
	}
	eth, ok := e.Frame.(message.Ethernet)
	if !ok {
		return listener.Continue
	}

	switch payload := eth.Payload.(type) {
	case message.Hsrp:
		g, ok := groups[payload.Group]
		if !ok {
			return listener.Continue
		}
		g.onHello(payload)
		return listener.Handled

	case message.Arp:
		if payload.Operation != message.ArpRequest {
			return listener.Continue
		}
		for _, g := range groups {
			if g.IsActive() && payload.TargetIp == g.VirtualIp {
				reply := message.Arp{
					Operation: message.ArpReply,
					SenderMac: g.virtualMac, SenderIp: g.VirtualIp,
					TargetMac: payload.SenderMac, TargetIp: payload.SenderIp,
				}
				_ = g.ni.Send(message.NewEthernet(g.virtualMac, payload.SenderMac, reply))
				return listener.Handled
			}
		}
		return listener.Continue
	}
	return listener.Continue
}

func (g *Group) onHello(h message.Hsrp) {
	if int(h.Priority) > g.bestPeerPriority {
		g.bestPeerPriority = int(h.Priority)
	}
	switch g.state {
	case StateActive:
		// Members whose election timers expire together can both become
		// Active; the one that then hears a higher-priority Active peer
		// steps down to Standby. Otherwise there is no preemption once
		// active, and equal priorities are not tie-broken.
		if h.State == StateActive.String() && h.Priority > g.Priority {
			g.becomeStandby()
		}
		return
	case StateListen:
		if h.State == StateActive.String() {
			g.electionTimer.Cancel()
			g.electionTimer = nil
			g.becomeStandby()
		}
	case StateStandby:
		if h.State == StateActive.String() {
			g.armHold()
		}
	case StateSpeak:
		// Transient; the election decision already ran synchronously in
		// onElectionTimeout, nothing to do with a hello seen mid-decision.
	}
}
