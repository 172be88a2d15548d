// Package ospf implements the §4.11 neighbor state machine and a minimal
// link-state database/SPF recomputation, explicitly a skeleton per
// spec.md §2 ("no real LSA flooding reliability mechanics"). Grounded on
// the teacher's pkg/protocols/stp.go for the per-timer cancel-and-reschedule
// idiom (here: per-neighbor dead timer instead of per-port BPDU aging) and
// pkg/rip for the "mirror a learned table into pkg/router.Table" wiring
// pattern.
package ospf

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/router"
	"github.com/packetlab/netsim/pkg/sched"
)

// Default timers from §4.11.
const (
	DefaultHelloInterval = 10
	DefaultDeadInterval  = 40
	DefaultLinkCost      = 10
)

// AllSpfRoutersIp stands in for the real 224.0.0.5 multicast group; the
// simulator has no IP multicast layer, so Hello/LSA PDUs are sent as
// ordinary broadcast frames, same as RIP's BroadcastIp.
var AllSpfRoutersIp = addr.Ip(0xFFFFFFFE)

// NeighborState is a neighbor's position in the §4.11 adjacency FSM.
type NeighborState int

const (
	Down NeighborState = iota
	Init
	TwoWay
	ExStart
	Exchange
	Loading
	Full
)

func (s NeighborState) String() string {
	switch s {
	case Init:
		return "init"
	case TwoWay:
		return "two-way"
	case ExStart:
		return "ex-start"
	case Exchange:
		return "exchange"
	case Loading:
		return "loading"
	case Full:
		return "full"
	default:
		return "down"
	}
}

// Neighbor is one adjacency tracked on one interface.
type Neighbor struct {
	RouterId   addr.Ip
	NeighborIp addr.Ip
	State      NeighborState

	deadTimer *sched.Subscription
}

type routeKey struct {
	Network addr.Ip
	Mask    addr.Mask
}

type enabledIface struct {
	ni            *iface.NetworkInterface
	areaId        int
	cost          int
	helloInterval float64
	deadInterval  float64
	neighbors     map[addr.Ip]*Neighbor
	helloSub      *sched.Subscription
}

// Service is a per-router OSPF process.
type Service struct {
	node     *node.Node
	sched    *sched.Scheduler
	rtr      *router.Router
	RouterId addr.Ip

	ifaces map[*iface.HardwareInterface]*enabledIface
	lsdb   map[addr.Ip]message.OspfLsa
	owned  map[routeKey]bool
}

// Attach wires an OSPF service onto n, identified by routerId (typically
// the router's lowest configured interface IP, chosen by the caller).
func Attach(n *node.Node, s *sched.Scheduler, rtr *router.Router, routerId addr.Ip) *Service {
	svc := &Service{
		node: n, sched: s, rtr: rtr, RouterId: routerId,
		ifaces: make(map[*iface.HardwareInterface]*enabledIface),
		lsdb:   make(map[addr.Ip]message.OspfLsa),
		owned:  make(map[routeKey]bool),
	}
	n.AddListener(svc.onFrame)
	return svc
}

// EnableInterface starts periodic Hello advertisement on ni and adds its
// directly-connected subnet as a stub link in this router's own LSA.
// hello/dead of 0 take the §4.11 defaults; cost of 0 takes DefaultLinkCost.
func (svc *Service) EnableInterface(ni *iface.NetworkInterface, areaId int, cost int, helloInterval, deadInterval float64) {
	if _, ok := svc.ifaces[ni.HardwareInterface]; ok {
		return
	}
	if cost <= 0 {
		cost = DefaultLinkCost
	}
	if helloInterval <= 0 {
		helloInterval = DefaultHelloInterval
	}
	if deadInterval <= 0 {
		deadInterval = DefaultDeadInterval
	}
	ei := &enabledIface{
		ni: ni, areaId: areaId, cost: cost,
		helloInterval: helloInterval, deadInterval: deadInterval,
		neighbors: make(map[addr.Ip]*Neighbor),
	}
	svc.ifaces[ni.HardwareInterface] = ei
	svc.rebuildOwnLsa()
	ei.helloSub = svc.sched.Repeat(svc.sched.Delay(helloInterval), func() { svc.sendHello(ei) })
}

// Neighbors returns a snapshot of every tracked adjacency on ni.
func (svc *Service) Neighbors(ni *iface.NetworkInterface) []Neighbor {
	ei, ok := svc.ifaces[ni.HardwareInterface]
	if !ok {
		return nil
	}
	out := make([]Neighbor, 0, len(ei.neighbors))
	for _, nb := range ei.neighbors {
		out = append(out, *nb)
	}
	return out
}

// Lsdb returns a snapshot of the link-state database.
func (svc *Service) Lsdb() map[addr.Ip]message.OspfLsa {
	out := make(map[addr.Ip]message.OspfLsa, len(svc.lsdb))
	for k, v := range svc.lsdb {
		out[k] = v
	}
	return out
}

func (svc *Service) sendHello(ei *enabledIface) {
	seen := make([]addr.Ip, 0, len(ei.neighbors))
	for id := range ei.neighbors {
		seen = append(seen, id)
	}
	hello := message.OspfHello{RouterId: svc.RouterId, AreaId: ei.areaId, Seen: seen}
	pkt := message.IPv4{SrcIp: ei.ni.Ip(), DstIp: AllSpfRoutersIp, Ttl: 1, Payload: hello}
	_ = ei.ni.Send(message.NewEthernet(ei.ni.Mac(), addr.Broadcast, pkt))
}

func (svc *Service) rebuildOwnLsa() {
	lsa := message.OspfLsa{RouterId: svc.RouterId}
	for _, ei := range svc.ifaces {
		link := message.OspfLink{Network: ei.ni.Mask().Network(ei.ni.Ip()), Mask: ei.ni.Mask(), Cost: ei.cost}
		for _, nb := range ei.neighbors {
			if nb.State == Full {
				link.NeighborId = nb.RouterId
				lsa.Links = append(lsa.Links, link)
				link.NeighborId = 0
			}
		}
		lsa.Links = append(lsa.Links, link)
	}
	svc.installLsa(lsa, nil)
}

func (svc *Service) onFrame(e node.FrameEvent) listener.Disposition {
	ei, ok := svc.ifaces[e.In]
	if !ok {
		return listener.Continue
	}
	eth, ok := e.Frame.(message.Ethernet)
	if !ok {
		return listener.Continue
	}
	ip, ok := eth.Payload.(message.IPv4)
	if !ok {
		return listener.Continue
	}

	switch payload := ip.Payload.(type) {
	case message.OspfHello:
		svc.onHello(ei, ip.SrcIp, payload)
		return listener.Handled
	case message.OspfLsa:
		svc.installLsa(payload, ei.ni)
		return listener.Handled
	}
	return listener.Continue
}

func (svc *Service) onHello(ei *enabledIface, senderIp addr.Ip, hello message.OspfHello) {
	if hello.RouterId == svc.RouterId {
		return
	}
	nb, ok := ei.neighbors[hello.RouterId]
	if !ok {
		nb = &Neighbor{RouterId: hello.RouterId}
		ei.neighbors[hello.RouterId] = nb
	}
	nb.NeighborIp = senderIp
	svc.armDead(ei, nb)

	mutual := false
	for _, id := range hello.Seen {
		if id == svc.RouterId {
			mutual = true
			break
		}
	}

	prevState := nb.State
	if mutual {
		// Skeleton: no real DB-exchange negotiation, a two-way hello is
		// enough to walk straight through to Full.
		nb.State = Full
	} else if nb.State < TwoWay {
		nb.State = Init
	}
	if prevState != nb.State {
		svc.rebuildOwnLsa()
	}
}

func (svc *Service) armDead(ei *enabledIface, nb *Neighbor) {
	if nb.deadTimer != nil {
		nb.deadTimer.Cancel()
	}
	nb.deadTimer = svc.sched.Once(svc.sched.Delay(ei.deadInterval), func() {
		delete(ei.neighbors, nb.RouterId)
		svc.rebuildOwnLsa()
	})
}

// installLsa installs lsa if new or changed, re-floods it (out every
// OSPF-enabled interface except the one it arrived on, the simplest
// loop-avoidance a flooding-reliability-free skeleton needs), and
// recomputes the SPF table.
func (svc *Service) installLsa(lsa message.OspfLsa, arrivedOn *iface.NetworkInterface) {
	if existing, ok := svc.lsdb[lsa.RouterId]; ok && sameLsa(existing, lsa) {
		return
	}
	svc.lsdb[lsa.RouterId] = lsa
	svc.flood(lsa, arrivedOn)
	svc.recomputeSpf()
}

func sameLsa(a, b message.OspfLsa) bool {
	if len(a.Links) != len(b.Links) {
		return false
	}
	for i := range a.Links {
		if a.Links[i] != b.Links[i] {
			return false
		}
	}
	return true
}

func (svc *Service) flood(lsa message.OspfLsa, except *iface.NetworkInterface) {
	for _, ei := range svc.ifaces {
		if ei.ni == except {
			continue
		}
		hasFull := false
		for _, nb := range ei.neighbors {
			if nb.State == Full {
				hasFull = true
				break
			}
		}
		if !hasFull {
			continue
		}
		pkt := message.IPv4{SrcIp: ei.ni.Ip(), DstIp: AllSpfRoutersIp, Ttl: 1, Payload: lsa}
		_ = ei.ni.Send(message.NewEthernet(ei.ni.Mac(), addr.Broadcast, pkt))
	}
}

// recomputeSpf runs Dijkstra over the router-adjacency graph embedded in
// the LSDB's NeighborId-tagged links, then installs a route for every
// stub network advertised by a reachable, non-self router.
func (svc *Service) recomputeSpf() {
	dist := map[addr.Ip]int{svc.RouterId: 0}
	prev := map[addr.Ip]addr.Ip{}
	visited := map[addr.Ip]bool{}

	for {
		var u addr.Ip
		found := false
		best := int(^uint(0) >> 1)
		for id := range svc.lsdb {
			if visited[id] {
				continue
			}
			d, ok := dist[id]
			if ok && d < best {
				best, u, found = d, id, true
			}
		}
		if !found {
			break
		}
		visited[u] = true
		for _, link := range svc.lsdb[u].Links {
			if link.NeighborId == addr.Ip(0) {
				continue
			}
			nd := dist[u] + link.Cost
			if existing, ok := dist[link.NeighborId]; !ok || nd < existing {
				dist[link.NeighborId] = nd
				prev[link.NeighborId] = u
			}
		}
	}

	firstHop := func(dst addr.Ip) (addr.Ip, bool) {
		if dst == svc.RouterId {
			return svc.RouterId, true
		}
		cur, ok := dst, true
		for ok {
			p, has := prev[cur]
			if !has {
				return addr.Ip(0), false
			}
			if p == svc.RouterId {
				return cur, true
			}
			cur, ok = p, has
		}
		return addr.Ip(0), false
	}

	desired := make(map[routeKey]router.Route)
	for routerId, lsa := range svc.lsdb {
		if routerId == svc.RouterId {
			continue
		}
		d, reachable := dist[routerId]
		if !reachable {
			continue
		}
		hop, ok := firstHop(routerId)
		if !ok {
			continue
		}
		nbIp, ni, ok := svc.neighborIfaceFor(hop)
		if !ok {
			continue
		}
		_ = nbIp
		for _, link := range lsa.Links {
			if link.NeighborId != addr.Ip(0) {
				continue
			}
			key := routeKey{Network: link.Network, Mask: link.Mask}
			cost := d + link.Cost
			if cur, ok := desired[key]; !ok || cost < cur.Metric {
				desired[key] = router.Route{
					Network: key.Network, Mask: key.Mask, NextHop: nbIp,
					Metric: cost, Iface: ni, LastUpdate: svc.sched.Now(),
				}
			}
		}
	}

	for key := range svc.owned {
		_ = svc.rtr.Table().DeleteRoute(key.Network, key.Mask)
	}
	svc.owned = make(map[routeKey]bool)
	for key, r := range desired {
		if err := svc.rtr.Table().AddRoute(r); err == nil {
			svc.owned[key] = true
		}
	}
}

// neighborIfaceFor finds the interface and IP through which routerId is
// directly adjacent, so SPF's first hop can be turned into a gateway.
func (svc *Service) neighborIfaceFor(routerId addr.Ip) (addr.Ip, *iface.NetworkInterface, bool) {
	for _, ei := range svc.ifaces {
		if nb, ok := ei.neighbors[routerId]; ok {
			return nb.NeighborIp, ei.ni, true
		}
	}
	return 0, nil, false
}
