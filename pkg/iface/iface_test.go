package iface

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/sched"
)

type fakeHost struct {
	name     string
	received []Frame
}

func (f *fakeHost) Name() string { return f.name }
func (f *fakeHost) Receive(in *HardwareInterface, frame Frame) {
	f.received = append(f.received, frame)
}

type fakeFrame struct{ src, dst addr.Mac }

func (f fakeFrame) Source() addr.Mac      { return f.src }
func (f fakeFrame) Destination() addr.Mac { return f.dst }

func TestVlanAllowedListInvariant(t *testing.T) {
	hostA := &fakeHost{name: "a"}
	h := NewHardwareInterface("gig0/0", hostA)

	if err := h.RemoveVlan(1); err == nil {
		t.Fatal("expected error removing the only allowed (native) vlan")
	}
	if err := h.AddVlan(10); err != nil {
		t.Fatalf("AddVlan: %v", err)
	}
	if err := h.RemoveVlan(1); err != nil {
		t.Fatalf("RemoveVlan after adding a second vlan: %v", err)
	}
	if !h.AllowsVlan(10) {
		t.Fatal("expected vlan 10 to be allowed")
	}
}

func TestSetSpeedRejectsInvalidValues(t *testing.T) {
	h := NewHardwareInterface("gig0/0", &fakeHost{name: "a"})
	if err := h.SetSpeed(1000); err != nil {
		t.Fatalf("SetSpeed(1000): %v", err)
	}
	if err := h.SetSpeed(123); err == nil {
		t.Fatal("expected error for invalid speed")
	}
	if err := h.SetSpeed(0); err == nil {
		t.Fatal("expected error for speed=0 without autoneg")
	}
	h.SetAutoNegotiation(true)
	if err := h.SetSpeed(0); err != nil {
		t.Fatalf("SetSpeed(0) with autoneg: %v", err)
	}
}

func TestLinkDownPreventsSend(t *testing.T) {
	s := sched.New()
	a := NewHardwareInterface("a0", &fakeHost{name: "a"})
	b := NewHardwareInterface("b0", &fakeHost{name: "b"})
	if _, err := NewLink(s, a, b, 10); err != nil {
		t.Fatalf("NewLink: %v", err)
	}

	frame := fakeFrame{dst: addr.Mac{9}}
	if err := a.Send(frame); err == nil {
		t.Fatal("expected LinkDown error when sender is administratively down")
	}

	a.Up()
	b.Up()
	if err := a.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendDeliversAfterPropagationDelay(t *testing.T) {
	s := sched.New()
	hb := &fakeHost{name: "b"}
	a := NewHardwareInterface("a0", &fakeHost{name: "a"})
	b := NewHardwareInterface("b0", hb)
	if _, err := NewLink(s, a, b, 10); err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	a.Up()
	b.Up()

	frame := fakeFrame{dst: addr.Mac{9}}
	if err := a.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(hb.received) != 0 {
		t.Fatal("frame delivered before propagation delay elapsed")
	}
	s.Advance(s.Delay(0.01))
	if len(hb.received) != 1 {
		t.Fatalf("received = %d frames, want 1", len(hb.received))
	}
}

func TestSendToDownReceiverDropsSilently(t *testing.T) {
	s := sched.New()
	hb := &fakeHost{name: "b"}
	a := NewHardwareInterface("a0", &fakeHost{name: "a"})
	b := NewHardwareInterface("b0", hb)
	if _, err := NewLink(s, a, b, 10); err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	a.Up()
	// b stays down.

	frame := fakeFrame{dst: addr.Mac{9}}
	if err := a.Send(frame); err != nil {
		t.Fatalf("Send should succeed even though the receiver is down: %v", err)
	}
	s.Advance(s.Delay(1))
	if len(hb.received) != 0 {
		t.Fatal("frame delivered to an administratively down receiver")
	}
}

func TestLoopbackDeliversToSelf(t *testing.T) {
	s := sched.New()
	ha := &fakeHost{name: "a"}
	a := NewHardwareInterface("a0", ha)
	a.SetMac(addr.Mac{1, 2, 3, 4, 5, 6})
	b := NewHardwareInterface("b0", &fakeHost{name: "b"})
	if _, err := NewLink(s, a, b, 5); err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	a.Up()
	b.Up()

	frame := fakeFrame{dst: a.Mac()}
	if err := a.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	s.Advance(s.Delay(1))
	if len(ha.received) != 1 {
		t.Fatalf("loopback frame not delivered back to sender: %d", len(ha.received))
	}
}
