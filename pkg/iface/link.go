package iface

import (
	"github.com/packetlab/netsim/pkg/sched"
	"github.com/packetlab/netsim/pkg/simerr"
)

// Link is an unordered pair of hardware interfaces plus a propagation
// delay, per §4.3. It is owned by the Network; the endpoints hold only a
// weak back-reference (h.link) that is cleared when either side detaches.
type Link struct {
	a, b    *HardwareInterface
	delayMs int
	sched   *sched.Scheduler
}

// NewLink connects a and b with the given propagation delay. Returns
// DuplicateLink if either endpoint already has a link. a == b is accepted
// and builds a loopback self-link; network.Network.Link is the call that
// rejects it with SameInterfaceLink.
func NewLink(s *sched.Scheduler, a, b *HardwareInterface, delayMs int) (*Link, error) {
	if a.link != nil || (b != a && b.link != nil) {
		return nil, simerr.New(simerr.KindDuplicateLink, "interface", "interface already has a link")
	}
	l := &Link{a: a, b: b, delayMs: delayMs, sched: s}
	a.link = l
	b.link = l
	return l, nil
}

// Other returns the peer of one of the link's endpoints.
func (l *Link) Other(one *HardwareInterface) *HardwareInterface {
	if one == l.a {
		return l.b
	}
	return l.a
}

// DelayMs returns the configured propagation delay.
func (l *Link) DelayMs() int { return l.delayMs }

// Endpoints returns the two connected interfaces.
func (l *Link) Endpoints() (*HardwareInterface, *HardwareInterface) { return l.a, l.b }

// Detach removes the link from both endpoints. Lifetime ends when either
// endpoint is destroyed (§3); callers destroying a node call this first.
func (l *Link) Detach() {
	if l.a != nil {
		l.a.link = nil
	}
	if l.b != nil && l.b != l.a {
		l.b.link = nil
	}
}

// Send transmits frame from the sending interface across the link. Fails
// with LinkDown if the local interface is administratively down or
// unconnected; a down receiver silently drops the frame (the sender still
// observes success, per §4.3). Loopback (destination == sender's own MAC)
// delivers back to the sender after the same propagation delay.
func (h *HardwareInterface) Send(frame Frame) error {
	if !h.up || h.link == nil {
		return simerr.ErrLinkDown
	}
	delayTicks := h.link.sched.Delay(float64(h.link.delayMs) / 1000.0)

	if frame.Destination() == h.mac {
		h.link.sched.Once(delayTicks, func() {
			if h.up {
				h.host.Receive(h, frame)
			}
		})
		return nil
	}

	peer := h.link.Other(h)
	h.link.sched.Once(delayTicks, func() {
		if peer.up {
			peer.host.Receive(peer, frame)
		}
	})
	return nil
}
