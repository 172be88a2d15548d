package node

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
)

func TestAddInterfaceIsOrderedAndLookupable(t *testing.T) {
	n := New("sw1", KindSwitch)
	n.AddInterface("gig0/0")
	n.AddInterface("gig0/1")
	n.AddInterface("gig0/2")

	names := n.Interfaces()
	if len(names) != 3 || names[0].Name != "gig0/0" || names[2].Name != "gig0/2" {
		t.Fatalf("Interfaces() not in insertion order: %+v", names)
	}
	if _, ok := n.Interface("gig0/1"); !ok {
		t.Fatal("expected gig0/1 to be found")
	}
	if _, ok := n.Interface("gig0/9"); ok {
		t.Fatal("did not expect gig0/9 to be found")
	}
}

func TestRemoveInterfacePreservesOrderOfRemainder(t *testing.T) {
	n := New("sw1", KindSwitch)
	n.AddInterface("a")
	n.AddInterface("b")
	n.AddInterface("c")
	n.RemoveInterface("b")

	names := n.Interfaces()
	if len(names) != 2 || names[0].Name != "a" || names[1].Name != "c" {
		t.Fatalf("unexpected order after removal: %+v", names)
	}
	if _, ok := n.Interface("b"); ok {
		t.Fatal("expected b to be gone")
	}
}

type fakeFrame struct{ dst addr.Mac }

func (fakeFrame) Source() addr.Mac         { return addr.Mac{} }
func (f fakeFrame) Destination() addr.Mac { return f.dst }

func TestReceiveDispatchesThroughListenerChain(t *testing.T) {
	n := New("host1", KindHost)
	hw := n.AddInterface("eth0")

	var order []int
	n.AddListener(func(e FrameEvent) listener.Disposition {
		order = append(order, 1)
		return listener.Continue
	})
	n.AddListener(func(e FrameEvent) listener.Disposition {
		order = append(order, 2)
		return listener.Stop
	})
	n.AddListener(func(e FrameEvent) listener.Disposition {
		order = append(order, 3)
		return listener.Continue
	})

	var f iface.Frame = fakeFrame{dst: addr.Mac{9}}
	n.Receive(hw, f)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2] (chain should stop at listener 2)", order)
	}
}

func TestStringListenerSeesInterfaceUpEvent(t *testing.T) {
	n := New("host1", KindHost)
	var events []string
	n.AddStringListener(func(e StringEvent) listener.Disposition {
		events = append(events, e.Event)
		return listener.Continue
	})
	hw := n.AddInterface("eth0")
	hw.Up()

	found := false
	for _, e := range events {
		if e == iface.EventInterfaceUp {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %v, expected to contain %s", events, iface.EventInterfaceUp)
	}
}
