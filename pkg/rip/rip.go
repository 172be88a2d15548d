// Package rip implements the distance-vector routing protocol from §4.9:
// per-interface periodic advertisement, split-horizon/poison-reverse
// suppression, and age-driven invalidation/flush of learned routes.
// Grounded on the teacher's pkg/protocols/stp.go for the
// timer-driven-per-port-state pattern (here: per-route invalid/flush
// timers instead of per-port BPDU aging) and pkg/router for the routing
// table it installs learned routes into.
package rip

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/router"
	"github.com/packetlab/netsim/pkg/sched"
)

// BroadcastIp is the all-ones destination used for RIP advertisements;
// the simulator has no IP fragmentation/subnet-directed-broadcast layer,
// so this stands in for 255.255.255.255.
var BroadcastIp = addr.Ip(0xFFFFFFFF)

// Options holds the §4.9 configuration table, in seconds unless noted.
type Options struct {
	UpdateInterval float64
	InvalidAfter   float64
	FlushAfter     float64
	DefaultMetric  int
	SplitHorizon   bool
	PoisonReverse  bool
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		UpdateInterval: 30,
		InvalidAfter:   180,
		FlushAfter:     240,
		DefaultMetric:  1,
		SplitHorizon:   true,
		PoisonReverse:  true,
	}
}

type routeKey struct {
	Network addr.Ip
	Mask    addr.Mask
}

// Route is one entry in the RIP-learned (or locally redistributed) table.
type Route struct {
	Network    addr.Ip
	Mask       addr.Mask
	NextHop    addr.Ip
	Metric     int
	Iface      *iface.NetworkInterface
	LastUpdate sched.Time
	Tag        int

	invalidTimer *sched.Subscription
	flushTimer   *sched.Subscription
}

// Service is a per-router RIP process.
type Service struct {
	node  *node.Node
	sched *sched.Scheduler
	rtr   *router.Router
	opts  Options

	routes   map[routeKey]*Route
	enabled  map[*iface.NetworkInterface]*sched.Subscription
}

// Attach wires a RIP service onto n, installing learned/redistributed
// routes into rtr's table and listening for updates on n's frame chain.
func Attach(n *node.Node, s *sched.Scheduler, rtr *router.Router, opts Options) *Service {
	svc := &Service{
		node: n, sched: s, rtr: rtr, opts: opts,
		routes:  make(map[routeKey]*Route),
		enabled: make(map[*iface.NetworkInterface]*sched.Subscription),
	}
	n.AddListener(svc.onFrame)
	return svc
}

// EnableInterface starts periodic advertisement on ni and redistributes
// its directly-connected subnet as a locally-originated route.
func (svc *Service) EnableInterface(ni *iface.NetworkInterface) {
	if _, ok := svc.enabled[ni]; ok {
		return
	}
	key := routeKey{Network: ni.Mask().Network(ni.Ip()), Mask: ni.Mask()}
	svc.routes[key] = &Route{
		Network: key.Network, Mask: key.Mask, NextHop: ni.Ip(),
		Metric: svc.opts.DefaultMetric, LastUpdate: svc.sched.Now(),
	}
	svc.installAll()
	sub := svc.sched.Repeat(svc.sched.Delay(svc.opts.UpdateInterval), func() { svc.broadcastOn(ni) })
	svc.enabled[ni] = sub
}

// DisableInterface stops advertising on ni. Per §4.9, toggling any
// interface clears the whole table, not just routes learned on it.
func (svc *Service) DisableInterface(ni *iface.NetworkInterface) {
	if sub, ok := svc.enabled[ni]; ok {
		sub.Cancel()
		delete(svc.enabled, ni)
	}
	svc.clearAll()
}

// Stop disables the service entirely, clearing all routes.
func (svc *Service) Stop() {
	for _, sub := range svc.enabled {
		sub.Cancel()
	}
	svc.enabled = make(map[*iface.NetworkInterface]*sched.Subscription)
	svc.clearAll()
}

// Routes returns a snapshot of the current RIP table.
func (svc *Service) Routes() []Route {
	out := make([]Route, 0, len(svc.routes))
	for _, r := range svc.routes {
		out = append(out, *r)
	}
	return out
}

func (svc *Service) clearAll() {
	for _, r := range svc.routes {
		if r.invalidTimer != nil {
			r.invalidTimer.Cancel()
		}
		if r.flushTimer != nil {
			r.flushTimer.Cancel()
		}
	}
	svc.routes = make(map[routeKey]*Route)
	svc.rtr.Table().Clear()
}

func (svc *Service) installAll() {
	svc.rtr.Table().Clear()
	for _, r := range svc.routes {
		if r.Metric >= message.RipMetricInfinity {
			continue
		}
		_ = svc.rtr.Table().AddRoute(router.Route{
			Network: r.Network, Mask: r.Mask, NextHop: r.NextHop,
			Metric: r.Metric, LastUpdate: r.LastUpdate, Tag: r.Tag,
		})
	}
}

// broadcastOn emits the current table out ni, applying split-horizon and
// poison-reverse to routes learned on ni itself.
func (svc *Service) broadcastOn(ni *iface.NetworkInterface) {
	var entries []message.RipEntry
	for _, r := range svc.routes {
		metric := r.Metric
		if svc.opts.SplitHorizon && r.Iface == ni {
			if svc.opts.PoisonReverse {
				metric = message.RipMetricInfinity
			} else {
				continue
			}
		}
		entries = append(entries, message.RipEntry{Network: r.Network, Mask: r.Mask, Metric: metric, Tag: r.Tag})
	}
	update := message.RipUpdate{Entries: entries}
	pkt := message.IPv4{SrcIp: ni.Ip(), DstIp: BroadcastIp, Ttl: 1, Payload: update}
	_ = ni.Send(message.NewEthernet(ni.Mac(), addr.Broadcast, pkt))
}

func (svc *Service) onFrame(e node.FrameEvent) listener.Disposition {
	ni, ok := svc.rtr.Interface(e.In)
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
	update, ok := ip.Payload.(message.RipUpdate)
	if !ok {
		return listener.Continue
	}
	if _, enabled := svc.enabled[ni]; !enabled {
		return listener.Continue
	}
	svc.receive(ni, ip.SrcIp, update)
	return listener.Handled
}

func (svc *Service) receive(ni *iface.NetworkInterface, senderIp addr.Ip, update message.RipUpdate) {
	for _, entry := range update.Entries {
		metric := entry.Metric + 1
		if metric > message.RipMetricInfinity {
			metric = message.RipMetricInfinity
		}
		key := routeKey{Network: entry.Network, Mask: entry.Mask}
		existing, ok := svc.routes[key]
		if !ok {
			if metric >= message.RipMetricInfinity {
				continue
			}
			r := &Route{
				Network: entry.Network, Mask: entry.Mask, NextHop: senderIp,
				Metric: metric, Iface: ni, LastUpdate: svc.sched.Now(), Tag: entry.Tag,
			}
			svc.routes[key] = r
			svc.armInvalid(r)
			svc.installAll()
			continue
		}

		sameNextHop := existing.NextHop == senderIp && existing.Iface == ni
		if metric < existing.Metric || sameNextHop {
			existing.Metric = metric
			existing.NextHop = senderIp
			existing.Iface = ni
			existing.LastUpdate = svc.sched.Now()
			existing.Tag = entry.Tag
			if metric >= message.RipMetricInfinity {
				svc.armFlush(existing)
			} else {
				svc.armInvalid(existing)
			}
			svc.installAll()
		}
	}
}

func (svc *Service) armInvalid(r *Route) {
	if r.invalidTimer != nil {
		r.invalidTimer.Cancel()
	}
	if r.flushTimer != nil {
		r.flushTimer.Cancel()
		r.flushTimer = nil
	}
	r.invalidTimer = svc.sched.Once(svc.sched.Delay(svc.opts.InvalidAfter), func() {
		r.Metric = message.RipMetricInfinity
		svc.installAll()
		svc.armFlush(r)
	})
}

func (svc *Service) armFlush(r *Route) {
	if r.flushTimer != nil {
		r.flushTimer.Cancel()
	}
	r.flushTimer = svc.sched.Once(svc.sched.Delay(svc.opts.FlushAfter), func() {
		key := routeKey{Network: r.Network, Mask: r.Mask}
		if svc.routes[key] == r {
			delete(svc.routes, key)
			svc.installAll()
		}
	})
}
