package l2switch

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
)

func macN(n byte) addr.Mac { return addr.Mac{0, 0, 0, 0, 0, n} }

// buildThreePort wires hosts a, b, c each to one switch port.
func buildThreePort(t *testing.T) (*network.Network, *node.Node, *node.Node, *node.Node) {
	t.Helper()
	n := network.New()
	sw, _ := n.AddNode("sw1", node.KindSwitch)
	p0 := sw.AddInterface("gig0/0")
	p1 := sw.AddInterface("gig0/1")
	p2 := sw.AddInterface("gig0/2")
	p0.Up()
	p1.Up()
	p2.Up()
	Attach(sw, n.Scheduler(), PassAll{})

	a, _ := n.AddNode("a", node.KindHost)
	aIf := a.AddInterface("eth0")
	aIf.Up()
	aIf.SetMac(macN(1))

	b, _ := n.AddNode("b", node.KindHost)
	bIf := b.AddInterface("eth0")
	bIf.Up()
	bIf.SetMac(macN(2))

	c, _ := n.AddNode("c", node.KindHost)
	cIf := c.AddInterface("eth0")
	cIf.Up()
	cIf.SetMac(macN(3))

	if _, err := n.Link("a", "eth0", "sw1", "gig0/0", 1); err != nil {
		t.Fatalf("link a: %v", err)
	}
	if _, err := n.Link("b", "eth0", "sw1", "gig0/1", 1); err != nil {
		t.Fatalf("link b: %v", err)
	}
	if _, err := n.Link("c", "eth0", "sw1", "gig0/2", 1); err != nil {
		t.Fatalf("link c: %v", err)
	}
	return n, a, b, c
}

func countingListener(count *int) listener.Func[node.FrameEvent] {
	return func(e node.FrameEvent) listener.Disposition {
		*count++
		return listener.Continue
	}
}

func TestFloodsUnknownDestinationToAllOtherPorts(t *testing.T) {
	n, a, b, c := buildThreePort(t)

	var bCount, cCount int
	b.AddListener(countingListener(&bCount))
	c.AddListener(countingListener(&cCount))

	aIf, _ := a.Interface("eth0")
	frame := message.NewEthernet(aIf.Mac(), addr.Broadcast, "hello")
	if err := aIf.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if bCount != 1 || cCount != 1 {
		t.Fatalf("flood counts = b:%d c:%d, want 1/1", bCount, cCount)
	}
}

func TestLearnedMacIsForwardedNotFlooded(t *testing.T) {
	n, a, b, c := buildThreePort(t)
	bIf, _ := b.Interface("eth0")
	cIf, _ := c.Interface("eth0")

	// b speaks first so the switch learns b's MAC on its port.
	if err := bIf.Send(message.NewEthernet(bIf.Mac(), addr.Broadcast, "hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	var bCount, cCount int
	b.AddListener(countingListener(&bCount))
	c.AddListener(countingListener(&cCount))

	aIf, _ := a.Interface("eth0")
	if err := aIf.Send(message.NewEthernet(aIf.Mac(), bIf.Mac(), "to-b")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if bCount != 1 {
		t.Fatalf("bCount = %d, want 1 (unicast delivered)", bCount)
	}
	if cCount != 0 {
		t.Fatalf("cCount = %d, want 0 (must not flood a known unicast)", cCount)
	}
	_ = cIf
}

func TestAgingEvictsStaleMacEntries(t *testing.T) {
	n := network.New()
	sw, _ := n.AddNode("sw1", node.KindSwitch)
	p0 := sw.AddInterface("gig0/0")
	p1 := sw.AddInterface("gig0/1")
	p0.Up()
	p1.Up()
	swImpl := Attach(sw, n.Scheduler(), PassAll{})

	b, _ := n.AddNode("b", node.KindHost)
	bIf := b.AddInterface("eth0")
	bIf.Up()
	bIf.SetMac(macN(2))
	if _, err := n.Link("b", "eth0", "sw1", "gig0/1", 1); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := bIf.Send(message.NewEthernet(bIf.Mac(), addr.Broadcast, "hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	n.Scheduler().Advance(n.Scheduler().Delay(1))
	if _, ok := swImpl.MacTable()[bIf.Mac()]; !ok {
		t.Fatal("expected b's mac to be learned")
	}

	// The entry passes 300s of age just after t=300, so the first sweep
	// that evicts it is the one at t=310.
	n.Scheduler().Advance(n.Scheduler().Delay(310))
	if _, ok := swImpl.MacTable()[bIf.Mac()]; ok {
		t.Fatal("expected b's mac to be aged out after 310s of silence")
	}
}
