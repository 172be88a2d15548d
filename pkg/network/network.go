// Package network is the top-level arena: it owns every node, every link,
// and the single shared scheduler they all fire events on. Grounded on the
// teacher's device table / simulator top-level struct (pkg/device/simulator.go,
// pkg/protocols/device_table.go), which plays the same "owns everything,
// handed out by name" role, but replaces the teacher's goroutine-per-device
// model with the virtual-time scheduler from pkg/sched.
package network

import (
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
	"github.com/packetlab/netsim/pkg/simerr"
)

// Network owns all nodes and links in a topology and the scheduler that
// drives them. There is no cyclic-import problem here despite Network
// depending on both node and iface: node and iface never import network.
type Network struct {
	sched *sched.Scheduler
	nodes map[string]*node.Node
	order []string
	links []*iface.Link
}

// New creates an empty network with a fresh scheduler.
func New() *Network {
	return &Network{sched: sched.New(), nodes: make(map[string]*node.Node)}
}

// Scheduler returns the shared scheduler every node's links fire events on.
func (n *Network) Scheduler() *sched.Scheduler { return n.sched }

// AddNode creates, registers, and returns a new node of the given kind.
// Returns an error if name is already taken.
func (n *Network) AddNode(name string, kind node.Kind) (*node.Node, error) {
	if _, exists := n.nodes[name]; exists {
		return nil, simerr.New(simerr.KindUnknownNode, "name", "node name already in use: "+name)
	}
	nd := node.New(name, kind)
	n.nodes[name] = nd
	n.order = append(n.order, name)
	return nd, nil
}

// Node looks up a node by name.
func (n *Network) Node(name string) (*node.Node, error) {
	nd, ok := n.nodes[name]
	if !ok {
		return nil, simerr.New(simerr.KindUnknownNode, "name", "no such node: "+name)
	}
	return nd, nil
}

// Nodes returns all nodes in creation order.
func (n *Network) Nodes() []*node.Node {
	out := make([]*node.Node, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.nodes[name])
	}
	return out
}

// RemoveNode detaches all of a node's links and forgets it.
func (n *Network) RemoveNode(name string) error {
	nd, err := n.Node(name)
	if err != nil {
		return err
	}
	for _, hw := range nd.Interfaces() {
		if hw.Connected() {
			n.unregisterLink(hw.Link())
			hw.Link().Detach()
		}
	}
	delete(n.nodes, name)
	for i, v := range n.order {
		if v == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return nil
}

// Link connects ifaceA on nodeA to ifaceB on nodeB with the given
// propagation delay in milliseconds. Unlike iface.NewLink (which stays
// permissive so an intentional self-link can be built directly), this is
// the general API surface and rejects connecting an interface to itself.
func (n *Network) Link(nodeA, ifaceA, nodeB, ifaceB string, delayMs int) (*iface.Link, error) {
	a, err := n.lookupInterface(nodeA, ifaceA)
	if err != nil {
		return nil, err
	}
	b, err := n.lookupInterface(nodeB, ifaceB)
	if err != nil {
		return nil, err
	}
	if a == b {
		return nil, simerr.New(simerr.KindSameInterface, "interface", "cannot link an interface to itself")
	}
	l, err := iface.NewLink(n.sched, a, b, delayMs)
	if err != nil {
		return nil, err
	}
	n.links = append(n.links, l)
	return l, nil
}

// RemoveLink detaches l and forgets it.
func (n *Network) RemoveLink(l *iface.Link) {
	l.Detach()
	n.unregisterLink(l)
}

func (n *Network) unregisterLink(l *iface.Link) {
	for i, v := range n.links {
		if v == l {
			n.links = append(n.links[:i], n.links[i+1:]...)
			return
		}
	}
}

// Links returns all active links.
func (n *Network) Links() []*iface.Link {
	out := make([]*iface.Link, len(n.links))
	copy(out, n.links)
	return out
}

func (n *Network) lookupInterface(nodeName, ifaceName string) (*iface.HardwareInterface, error) {
	nd, err := n.Node(nodeName)
	if err != nil {
		return nil, err
	}
	hw, ok := nd.Interface(ifaceName)
	if !ok {
		return nil, simerr.New(simerr.KindUnknownIface, "interface", "no such interface: "+nodeName+"/"+ifaceName)
	}
	return hw, nil
}
