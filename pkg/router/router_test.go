package router

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
)

func mustIp(t *testing.T, s string) addr.Ip {
	t.Helper()
	ip, err := addr.ParseIp(s)
	if err != nil {
		t.Fatalf("ParseIp(%q): %v", s, err)
	}
	return ip
}

func mustMask(t *testing.T, cidr int) addr.Mask {
	t.Helper()
	m, err := addr.MaskFromCidr(cidr)
	if err != nil {
		t.Fatalf("MaskFromCidr(%d): %v", cidr, err)
	}
	return m
}

func TestTableRejectsDuplicateRoute(t *testing.T) {
	var tbl Table
	net := mustIp(t, "10.0.0.0")
	mask := mustMask(t, 24)
	if err := tbl.AddRoute(Route{Network: net, Mask: mask}); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	if err := tbl.AddRoute(Route{Network: net, Mask: mask}); err == nil {
		t.Fatal("expected RouteExists error on duplicate")
	}
}

func TestTableDeleteAbsentFails(t *testing.T) {
	var tbl Table
	if err := tbl.DeleteRoute(mustIp(t, "10.0.0.0"), mustMask(t, 24)); err == nil {
		t.Fatal("expected RouteNotFound error")
	}
}

func TestNextHopPrefersLongestPrefix(t *testing.T) {
	var tbl Table
	broad := mustIp(t, "10.0.0.0")
	broadMask := mustMask(t, 8)
	narrow := mustIp(t, "10.1.2.0")
	narrowMask := mustMask(t, 24)
	gwBroad := mustIp(t, "192.168.1.1")
	gwNarrow := mustIp(t, "192.168.1.2")
	tbl.AddRoute(Route{Network: broad, Mask: broadMask, NextHop: gwBroad})
	tbl.AddRoute(Route{Network: narrow, Mask: narrowMask, NextHop: gwNarrow})

	hop, ok := tbl.NextHop(mustIp(t, "10.1.2.5"), nil)
	if !ok || hop != gwNarrow {
		t.Fatalf("NextHop = %v/%v, want the /24 route's gateway", hop, ok)
	}
}

func TestNextHopFallsBackToDirectlyConnected(t *testing.T) {
	n := network.New()
	r1, _ := n.AddNode("r1", node.KindRouter)
	rtr := Attach(r1, n.Scheduler())
	ni := rtr.AddInterface("eth0")
	ni.SetIp(mustIp(t, "192.168.1.1"))
	ni.SetMask(mustMask(t, 24))

	var tbl Table
	hop, ok := tbl.NextHop(mustIp(t, "192.168.1.50"), rtr.NetworkInterfaces())
	if !ok || hop != mustIp(t, "192.168.1.50") {
		t.Fatalf("NextHop = %v/%v, want directly-connected dst itself", hop, ok)
	}
}

func TestTtlExhaustionSendsTimeExceededAndDrops(t *testing.T) {
	n := network.New()
	r1, _ := n.AddNode("r1", node.KindRouter)
	rtr := Attach(r1, n.Scheduler())
	in := rtr.AddInterface("eth0")
	in.SetIp(mustIp(t, "10.0.0.1"))
	in.SetMask(mustMask(t, 24))
	in.Up()

	h, _ := n.AddNode("h1", node.KindHost)
	hIf := h.AddInterface("eth0")
	hIf.Up()
	hIf.SetMac(addr.Mac{0, 0, 0, 0, 0, 9})
	if _, err := n.Link("h1", "eth0", "r1", "eth0", 1); err != nil {
		t.Fatalf("link: %v", err)
	}
	in.LearnArp(mustIp(t, "10.0.0.9"), hIf.Mac(), 0)

	var gotIcmp bool
	h.AddListener(func(e node.FrameEvent) listener.Disposition {
		eth, ok := e.Frame.(message.Ethernet)
		if !ok {
			return listener.Continue
		}
		ip, ok := eth.Payload.(message.IPv4)
		if !ok {
			return listener.Continue
		}
		if icmp, ok := ip.Payload.(message.ICMP); ok && icmp.Type == message.ICMPTypeTimeExceeded {
			gotIcmp = true
		}
		return listener.Continue
	})

	pkt := message.IPv4{SrcIp: mustIp(t, "10.0.0.9"), DstIp: mustIp(t, "8.8.8.8"), Ttl: 1, Payload: "data"}
	frame := message.NewEthernet(hIf.Mac(), in.Mac(), pkt)
	if err := hIf.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if !gotIcmp {
		t.Fatal("expected an ICMP Time Exceeded reply back to the originating host")
	}
}
