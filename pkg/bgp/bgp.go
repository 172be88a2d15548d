// Package bgp implements the §4.12 peer state machine skeleton: Idle ->
// Connect -> OpenSent -> OpenConfirm -> Established, keepalive/hold-timer
// liveness, and a flat advertised table selected by shortest-AS-path,
// explicitly a skeleton per spec.md §2 (no real TCP transport, no full
// decision process). Grounded on pkg/ospf's neighbor-FSM-plus-owned-routes
// wiring into pkg/router.Table, and the teacher's pkg/protocols/stp.go
// cancel-then-reschedule timer idiom for the hold timer.
package bgp

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/router"
	"github.com/packetlab/netsim/pkg/sched"
)

// Default timers from §4.12.
const (
	DefaultKeepaliveInterval = 30
	DefaultHoldTime          = 90
)

// State is a peer's position in the §4.12 session FSM.
type State int

const (
	Idle State = iota
	Connect
	OpenSent
	OpenConfirm
	Established
)

func (s State) String() string {
	switch s {
	case Connect:
		return "connect"
	case OpenSent:
		return "open-sent"
	case OpenConfirm:
		return "open-confirm"
	case Established:
		return "established"
	default:
		return "idle"
	}
}

type routeKey struct {
	Network addr.Ip
	Mask    addr.Mask
}

// Peer is one configured BGP neighbor.
type Peer struct {
	ni       *iface.NetworkInterface
	PeerIp   addr.Ip
	RemoteAs int
	State    State

	keepaliveInterval, holdTime float64
	keepaliveSub                *sched.Subscription
	holdTimer                   *sched.Subscription

	learned map[routeKey]message.BgpRoute

	svc *Service
}

// Service is a per-router BGP process.
type Service struct {
	node     *node.Node
	sched    *sched.Scheduler
	rtr      *router.Router
	RouterId addr.Ip
	LocalAs  int

	peers     []*Peer
	redistrib []message.BgpRoute
	owned     map[routeKey]bool
}

// Attach wires a BGP service onto n, speaking as localAs/routerId.
func Attach(n *node.Node, s *sched.Scheduler, rtr *router.Router, routerId addr.Ip, localAs int) *Service {
	svc := &Service{node: n, sched: s, rtr: rtr, RouterId: routerId, LocalAs: localAs, owned: make(map[routeKey]bool)}
	n.AddListener(svc.onFrame)
	return svc
}

// Redistribute adds a locally-originated network to the table advertised
// to every established peer, taking effect on the next Update.
func (svc *Service) Redistribute(network addr.Ip, mask addr.Mask, nextHop addr.Ip) {
	svc.redistrib = append(svc.redistrib, message.BgpRoute{Network: network, Mask: mask, NextHop: nextHop, AsPath: nil})
}

// AddPeer configures a new peering session over ni. keepalive/hold of 0
// take the §4.12 defaults.
func (svc *Service) AddPeer(ni *iface.NetworkInterface, peerIp addr.Ip, remoteAs int, keepaliveInterval, holdTime float64) *Peer {
	if keepaliveInterval <= 0 {
		keepaliveInterval = DefaultKeepaliveInterval
	}
	if holdTime <= 0 {
		holdTime = DefaultHoldTime
	}
	p := &Peer{
		ni: ni, PeerIp: peerIp, RemoteAs: remoteAs, State: Idle,
		keepaliveInterval: keepaliveInterval, holdTime: holdTime,
		learned: make(map[routeKey]message.BgpRoute), svc: svc,
	}
	svc.peers = append(svc.peers, p)
	return p
}

// Peers returns every configured session, for inspection/tests.
func (svc *Service) Peers() []*Peer { return svc.peers }

// Start begins the session by sending an Open message.
func (p *Peer) Start() {
	p.State = Connect
	p.sendOpen()
	p.State = OpenSent
}

func (p *Peer) sendOpen() {
	open := message.Bgp{Type: message.BgpOpen, AsNumber: p.svc.LocalAs, RouterId: p.svc.RouterId, HoldTime: int(p.holdTime)}
	p.send(open)
}

func (p *Peer) sendKeepalive() {
	p.send(message.Bgp{Type: message.BgpKeepalive, AsNumber: p.svc.LocalAs, RouterId: p.svc.RouterId})
}

func (p *Peer) send(bgp message.Bgp) {
	pkt := message.IPv4{SrcIp: p.ni.Ip(), DstIp: p.PeerIp, Ttl: 64, Payload: bgp}
	mac, ok := p.ni.LookupArp(p.PeerIp)
	if !ok {
		return
	}
	_ = p.ni.Send(message.NewEthernet(p.ni.Mac(), mac, pkt))
}

func (svc *Service) onFrame(e node.FrameEvent) listener.Disposition {
	eth, ok := e.Frame.(message.Ethernet)
	if !ok {
		return listener.Continue
	}
	ip, ok := eth.Payload.(message.IPv4)
	if !ok {
		return listener.Continue
	}
	bgp, ok := ip.Payload.(message.Bgp)
	if !ok {
		return listener.Continue
	}
	p := svc.peerFor(ip.SrcIp)
	if p == nil {
		return listener.Continue
	}
	p.onMessage(bgp)
	return listener.Handled
}

func (svc *Service) peerFor(ip addr.Ip) *Peer {
	for _, p := range svc.peers {
		if p.PeerIp == ip {
			return p
		}
	}
	return nil
}

func (p *Peer) onMessage(bgp message.Bgp) {
	switch bgp.Type {
	case message.BgpOpen:
		switch p.State {
		case Idle:
			p.State = Connect
			p.sendOpen()
			fallthrough
		case Connect, OpenSent:
			p.State = OpenConfirm
			p.sendKeepalive()
		}
	case message.BgpKeepalive:
		switch p.State {
		case OpenConfirm:
			p.establish()
		case Established:
			p.armHold()
		}
	case message.BgpUpdate:
		if p.State != Established {
			return
		}
		for _, w := range bgp.Withdrawn {
			delete(p.learned, routeKey{Network: w.Network, Mask: w.Mask})
		}
		for _, a := range bgp.Announced {
			p.learned[routeKey{Network: a.Network, Mask: a.Mask}] = a
		}
		p.armHold()
		p.svc.recomputeBestPaths()
	case message.BgpNotification:
		p.teardown()
	}
}

func (p *Peer) establish() {
	p.State = Established
	p.armHold()
	p.keepaliveSub = p.svc.sched.Repeat(p.svc.sched.Delay(p.keepaliveInterval), p.sendKeepalive)
	p.sendUpdate()
	p.svc.recomputeBestPaths()
}

func (p *Peer) sendUpdate() {
	announced := make([]message.BgpRoute, 0, len(p.svc.redistrib))
	for _, r := range p.svc.redistrib {
		announced = append(announced, message.BgpRoute{
			Network: r.Network, Mask: r.Mask, NextHop: p.ni.Ip(),
			AsPath: append([]int{p.svc.LocalAs}, r.AsPath...),
		})
	}
	p.send(message.Bgp{Type: message.BgpUpdate, AsNumber: p.svc.LocalAs, RouterId: p.svc.RouterId, Announced: announced})
}

func (p *Peer) armHold() {
	if p.holdTimer != nil {
		p.holdTimer.Cancel()
	}
	p.holdTimer = p.svc.sched.Once(p.svc.sched.Delay(p.holdTime), p.teardown)
}

func (p *Peer) teardown() {
	if p.keepaliveSub != nil {
		p.keepaliveSub.Cancel()
		p.keepaliveSub = nil
	}
	if p.holdTimer != nil {
		p.holdTimer.Cancel()
		p.holdTimer = nil
	}
	p.State = Idle
	p.learned = make(map[routeKey]message.BgpRoute)
	p.svc.recomputeBestPaths()
}

// recomputeBestPaths applies shortest-AS-path-wins across every peer's
// learned routes and installs the winners into the shared routing table.
func (svc *Service) recomputeBestPaths() {
	best := make(map[routeKey]message.BgpRoute)
	for _, p := range svc.peers {
		for key, r := range p.learned {
			cur, ok := best[key]
			if !ok || len(r.AsPath) < len(cur.AsPath) {
				best[key] = r
			}
		}
	}
	for key := range svc.owned {
		_ = svc.rtr.Table().DeleteRoute(key.Network, key.Mask)
	}
	svc.owned = make(map[routeKey]bool)
	for key, r := range best {
		route := router.Route{Network: key.Network, Mask: key.Mask, NextHop: r.NextHop, Metric: len(r.AsPath), LastUpdate: svc.sched.Now()}
		if err := svc.rtr.Table().AddRoute(route); err == nil {
			svc.owned[key] = true
		}
	}
}
