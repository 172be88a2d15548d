// Package arp implements the resolution protocol from §4.15: broadcast
// request/unicast reply, opportunistic cache population, and a bounded
// retry policy for callers awaiting a binding. Grounded on the teacher's
// pkg/protocols/arp.go for the request/reply field shape and on
// pkg/stp's per-port timer-cancel-and-reschedule pattern for the retry
// timer, reworked around the scheduler instead of a real socket.
package arp

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
	"github.com/packetlab/netsim/pkg/simerr"
)

// MaxRetries and RetryInterval implement §4.15's "3-retry / 1s-interval"
// resolution-wait policy, the decision recorded for the open question
// spec.md §9 leaves implementation-defined.
const (
	MaxRetries    = 3
	RetryInterval = 1.0
)

type waiter func(addr.Mac, error)

type pending struct {
	ip      addr.Ip
	retries int
	timer   *sched.Subscription
	waiters []waiter
}

// Service resolves IPs to MACs for a set of registered network
// interfaces, broadcasting requests on a cache miss and answering
// requests addressed to any of its own interfaces.
type Service struct {
	node  *node.Node
	sched *sched.Scheduler

	ifaces  map[*iface.HardwareInterface]*iface.NetworkInterface
	pending map[*iface.NetworkInterface]map[addr.Ip]*pending
}

// Attach wires the ARP service onto n's frame chain.
func Attach(n *node.Node, s *sched.Scheduler) *Service {
	svc := &Service{
		node: n, sched: s,
		ifaces:  make(map[*iface.HardwareInterface]*iface.NetworkInterface),
		pending: make(map[*iface.NetworkInterface]map[addr.Ip]*pending),
	}
	n.AddListener(svc.onFrame)
	return svc
}

// Register makes ni eligible to resolve through and answer requests on.
func (svc *Service) Register(ni *iface.NetworkInterface) {
	svc.ifaces[ni.HardwareInterface] = ni
	svc.pending[ni] = make(map[addr.Ip]*pending)
}

// Resolve returns a cached binding immediately, or triggers a request and
// invokes cb asynchronously (on a future scheduler callback) once the
// binding resolves or the retry budget is exhausted (simerr.ErrArpTimeout).
func (svc *Service) Resolve(ni *iface.NetworkInterface, ip addr.Ip, cb func(addr.Mac, error)) {
	if mac, ok := ni.LookupArp(ip); ok {
		cb(mac, nil)
		return
	}
	byIp, ok := svc.pending[ni]
	if !ok {
		byIp = make(map[addr.Ip]*pending)
		svc.pending[ni] = byIp
	}
	if p, ok := byIp[ip]; ok {
		p.waiters = append(p.waiters, cb)
		return
	}
	p := &pending{ip: ip, waiters: []waiter{cb}}
	byIp[ip] = p
	svc.broadcastRequest(ni, ip)
	svc.armRetry(ni, p)
}

func (svc *Service) armRetry(ni *iface.NetworkInterface, p *pending) {
	p.timer = svc.sched.Once(svc.sched.Delay(RetryInterval), func() {
		if mac, ok := ni.LookupArp(p.ip); ok {
			svc.resolvePending(ni, p, mac, nil)
			return
		}
		p.retries++
		if p.retries >= MaxRetries {
			svc.resolvePending(ni, p, addr.Mac{}, simerr.ErrArpTimeout)
			return
		}
		svc.broadcastRequest(ni, p.ip)
		svc.armRetry(ni, p)
	})
}

func (svc *Service) resolvePending(ni *iface.NetworkInterface, p *pending, mac addr.Mac, err error) {
	if p.timer != nil {
		p.timer.Cancel()
	}
	delete(svc.pending[ni], p.ip)
	for _, w := range p.waiters {
		w(mac, err)
	}
}

func (svc *Service) broadcastRequest(ni *iface.NetworkInterface, target addr.Ip) {
	req := message.Arp{Operation: message.ArpRequest, SenderMac: ni.Mac(), SenderIp: ni.Ip(), TargetIp: target}
	_ = ni.Send(message.NewEthernet(ni.Mac(), addr.Broadcast, req))
}

func (svc *Service) onFrame(e node.FrameEvent) listener.Disposition {
	ni, ok := svc.ifaces[e.In]
	if !ok {
		return listener.Continue
	}
	eth, ok := e.Frame.(message.Ethernet)
	if !ok {
		return listener.Continue
	}
	req, ok := eth.Payload.(message.Arp)
	if !ok {
		return listener.Continue
	}

	ni.LearnArp(req.SenderIp, req.SenderMac, svc.sched.Now())

	switch req.Operation {
	case message.ArpRequest:
		if req.TargetIp == ni.Ip() {
			reply := message.Arp{
				Operation: message.ArpReply,
				SenderMac: ni.Mac(), SenderIp: ni.Ip(),
				TargetMac: req.SenderMac, TargetIp: req.SenderIp,
			}
			_ = ni.Send(message.NewEthernet(ni.Mac(), req.SenderMac, reply))
		}
		return listener.Handled
	case message.ArpReply:
		if p, ok := svc.pending[ni][req.SenderIp]; ok {
			svc.resolvePending(ni, p, req.SenderMac, nil)
		}
		return listener.Handled
	}
	return listener.Continue
}
