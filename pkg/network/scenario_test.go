package network

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/l2switch"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
)

func scenarioMac(n byte) addr.Mac { return addr.Mac{0, 0, 0, 0, 0, n} }

// setAccessVlan reconfigures an access port's single VLAN (the default
// interface starts in access mode on VLAN 1).
func setAccessVlan(t *testing.T, hw *iface.HardwareInterface, vlan int) {
	t.Helper()
	if err := hw.SetNativeVlan(vlan); err != nil {
		t.Fatalf("SetNativeVlan(%d): %v", vlan, err)
	}
	if vlan != 1 {
		if err := hw.RemoveVlan(1); err != nil {
			t.Fatalf("RemoveVlan(1): %v", err)
		}
	}
}

// TestS1TwoSwitchVlanTrunk builds the spec's S1 scenario: two switches
// trunked together, PC-A and PC-C on VLAN 10, PC-D on VLAN 20. A broadcast
// from PC-A must reach PC-C but never PC-D.
func TestS1TwoSwitchVlanTrunk(t *testing.T) {
	n := New()

	sw1n, _ := n.AddNode("sw1", node.KindSwitch)
	sw1p0 := sw1n.AddInterface("port0") // access v10, faces PC-A
	sw1p2 := sw1n.AddInterface("port2") // trunk, faces sw2
	sw1p0.Up()
	sw1p2.Up()
	setAccessVlan(t, sw1p0, 10)
	sw1p2.SetVlanMode(iface.ModeTrunk)
	_ = sw1p2.AddVlan(10)
	_ = sw1p2.AddVlan(20)
	l2switch.Attach(sw1n, n.Scheduler(), l2switch.PassAll{})

	sw2n, _ := n.AddNode("sw2", node.KindSwitch)
	sw2p0 := sw2n.AddInterface("port0") // trunk, faces sw1
	sw2p1 := sw2n.AddInterface("port1") // access v10, faces PC-C
	sw2p2 := sw2n.AddInterface("port2") // access v20, faces PC-D
	sw2p0.Up()
	sw2p1.Up()
	sw2p2.Up()
	sw2p0.SetVlanMode(iface.ModeTrunk)
	_ = sw2p0.AddVlan(10)
	_ = sw2p0.AddVlan(20)
	setAccessVlan(t, sw2p1, 10)
	setAccessVlan(t, sw2p2, 20)
	l2switch.Attach(sw2n, n.Scheduler(), l2switch.PassAll{})

	if _, err := n.Link("sw1", "port2", "sw2", "port0", 1); err != nil {
		t.Fatalf("trunk link: %v", err)
	}

	pcA, _ := n.AddNode("pc-a", node.KindHost)
	aIf := pcA.AddInterface("eth0")
	aIf.Up()
	aIf.SetMac(scenarioMac(0xA))
	if _, err := n.Link("pc-a", "eth0", "sw1", "port0", 1); err != nil {
		t.Fatalf("pc-a link: %v", err)
	}

	pcC, _ := n.AddNode("pc-c", node.KindHost)
	cIf := pcC.AddInterface("eth0")
	cIf.Up()
	cIf.SetMac(scenarioMac(0xC))
	if _, err := n.Link("pc-c", "eth0", "sw2", "port1", 1); err != nil {
		t.Fatalf("pc-c link: %v", err)
	}

	pcD, _ := n.AddNode("pc-d", node.KindHost)
	dIf := pcD.AddInterface("eth0")
	dIf.Up()
	dIf.SetMac(scenarioMac(0xD))
	if _, err := n.Link("pc-d", "eth0", "sw2", "port2", 1); err != nil {
		t.Fatalf("pc-d link: %v", err)
	}

	var cCount, dCount int
	pcC.AddListener(func(e node.FrameEvent) listener.Disposition { cCount++; return listener.Continue })
	pcD.AddListener(func(e node.FrameEvent) listener.Disposition { dCount++; return listener.Continue })

	frame := message.NewEthernet(aIf.Mac(), addr.Broadcast, "s1-broadcast")
	if err := aIf.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if cCount != 1 {
		t.Fatalf("pc-c received %d frames, want 1 (same VLAN as pc-a)", cCount)
	}
	if dCount != 0 {
		t.Fatalf("pc-d received %d frames, want 0 (different VLAN, must be isolated)", dCount)
	}
}
