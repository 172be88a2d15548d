// Package node implements the shared Node container described in the
// design notes: Switch, Router, Host, and Server share no methods beyond
// name/interfaces/receive-dispatch, so Node carries just that, plus the
// ordered listener chain (§4.2) through which every concrete behavior
// (switch MAC learning, router forwarding, STP gating, ...) is installed.
package node

import (
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
)

// Kind discriminates the four node variants named in §3.
type Kind int

const (
	KindHost Kind = iota
	KindSwitch
	KindRouter
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindSwitch:
		return "switch"
	case KindRouter:
		return "router"
	case KindServer:
		return "server"
	default:
		return "host"
	}
}

// FrameEvent is one arrival dispatched through the node's listener chain.
type FrameEvent struct {
	In    *iface.HardwareInterface
	Frame iface.Frame
}

// StringEvent is one of the plain string events (OnInterfaceUp, ...).
type StringEvent struct {
	Event string
	In    *iface.HardwareInterface
}

// Node owns an ordered set of interfaces keyed by name, plus the listener
// chain that every frame arriving on any of them is dispatched through.
// Concrete per-variant behavior (switch data plane, router data plane, STP,
// RIP, DHCP, HSRP, ...) is wired in as listeners rather than as Node
// methods, per the "prefer a variant plus a small per-variant method set
// over a deep capability hierarchy" design note.
type Node struct {
	name  string
	kind  Kind
	order []string
	ifs   map[string]*iface.HardwareInterface

	frames  listener.Chain[FrameEvent]
	strings listener.Chain[StringEvent]
}

// New creates an empty node of the given kind.
func New(name string, kind Kind) *Node {
	return &Node{name: name, kind: kind, ifs: make(map[string]*iface.HardwareInterface)}
}

// Name returns the node's stable name (satisfies iface.Host).
func (n *Node) Name() string { return n.name }

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// AddInterface creates and owns a new hardware interface named name.
func (n *Node) AddInterface(name string) *iface.HardwareInterface {
	hw := iface.NewHardwareInterface(name, n)
	n.ifs[name] = hw
	n.order = append(n.order, name)
	hw.AddListener(func(event string, h *iface.HardwareInterface) {
		n.strings.Dispatch(StringEvent{Event: event, In: h})
	})
	n.strings.Dispatch(StringEvent{Event: iface.EventInterfaceAdded, In: hw})
	return hw
}

// Interface looks up an owned interface by name.
func (n *Node) Interface(name string) (*iface.HardwareInterface, bool) {
	hw, ok := n.ifs[name]
	return hw, ok
}

// Interfaces returns the owned interfaces in creation order.
func (n *Node) Interfaces() []*iface.HardwareInterface {
	out := make([]*iface.HardwareInterface, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.ifs[name])
	}
	return out
}

// RemoveInterface detaches and forgets a named interface (its link, if any,
// must already have been detached by the caller — Network owns that).
func (n *Node) RemoveInterface(name string) {
	delete(n.ifs, name)
	for i, v := range n.order {
		if v == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// AddListener registers a frame-event listener at the end of the chain.
func (n *Node) AddListener(f listener.Func[FrameEvent]) {
	n.frames.Add(f)
}

// AddStringListener registers a plain string-event listener.
func (n *Node) AddStringListener(f listener.Func[StringEvent]) {
	n.strings.Add(f)
}

// Receive implements iface.Host: every arriving frame is run through the
// node's listener chain.
func (n *Node) Receive(in *iface.HardwareInterface, frame iface.Frame) {
	n.frames.Dispatch(FrameEvent{In: in, Frame: frame})
}
