package ospf

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/router"
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

type topology struct {
	n                    *network.Network
	svc1, svc2, svc3     *Service
	r1wan, r2a, r2b, r3wan *iface.NetworkInterface
}

// buildLine wires r1-r2-r3 over two shared /30s, each router advertising a
// stub /24 behind it, and returns the three OSPF services.
func buildLine(t *testing.T) *topology {
	t.Helper()
	n := network.New()

	r1n, _ := n.AddNode("r1", node.KindRouter)
	r2n, _ := n.AddNode("r2", node.KindRouter)
	r3n, _ := n.AddNode("r3", node.KindRouter)

	r1 := router.Attach(r1n, n.Scheduler())
	r2 := router.Attach(r2n, n.Scheduler())
	r3 := router.Attach(r3n, n.Scheduler())

	r1wan := r1.AddInterface("eth0")
	r1wan.SetIp(mustIp(t, "10.0.0.1"))
	r1wan.SetMask(mustMask(t, 30))
	r1wan.Up()
	r1stub := r1.AddInterface("eth1")
	r1stub.SetIp(mustIp(t, "192.168.1.1"))
	r1stub.SetMask(mustMask(t, 24))
	r1stub.Up()

	r2a := r2.AddInterface("eth0")
	r2a.SetIp(mustIp(t, "10.0.0.2"))
	r2a.SetMask(mustMask(t, 30))
	r2a.Up()
	r2b := r2.AddInterface("eth1")
	r2b.SetIp(mustIp(t, "10.0.1.1"))
	r2b.SetMask(mustMask(t, 30))
	r2b.Up()

	r3wan := r3.AddInterface("eth0")
	r3wan.SetIp(mustIp(t, "10.0.1.2"))
	r3wan.SetMask(mustMask(t, 30))
	r3wan.Up()
	r3stub := r3.AddInterface("eth1")
	r3stub.SetIp(mustIp(t, "172.16.0.1"))
	r3stub.SetMask(mustMask(t, 24))
	r3stub.Up()

	if _, err := n.Link("r1", "eth0", "r2", "eth0", 1); err != nil {
		t.Fatalf("link r1-r2: %v", err)
	}
	if _, err := n.Link("r2", "eth1", "r3", "eth0", 1); err != nil {
		t.Fatalf("link r2-r3: %v", err)
	}

	svc1 := Attach(r1n, n.Scheduler(), r1, mustIp(t, "1.1.1.1"))
	svc2 := Attach(r2n, n.Scheduler(), r2, mustIp(t, "2.2.2.2"))
	svc3 := Attach(r3n, n.Scheduler(), r3, mustIp(t, "3.3.3.3"))

	svc1.EnableInterface(r1wan, 0, 0, 1, 4)
	svc1.EnableInterface(r1stub, 0, 0, 1, 4)
	svc2.EnableInterface(r2a, 0, 0, 1, 4)
	svc2.EnableInterface(r2b, 0, 0, 1, 4)
	svc3.EnableInterface(r3wan, 0, 0, 1, 4)
	svc3.EnableInterface(r3stub, 0, 0, 1, 4)

	return &topology{n: n, svc1: svc1, svc2: svc2, svc3: svc3, r1wan: r1wan, r2a: r2a, r2b: r2b, r3wan: r3wan}
}

func TestNeighborsReachFullAndLearnRemoteStub(t *testing.T) {
	topo := buildLine(t)
	topo.n.Scheduler().Advance(topo.n.Scheduler().Delay(10))

	found := false
	for _, r := range topo.svc1.rtr.Table().Routes() {
		if r.Network == mustIp(t, "172.16.0.0") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected r1 to learn the 172.16.0.0/24 stub behind r3 via OSPF")
	}

	found = false
	for _, r := range topo.svc3.rtr.Table().Routes() {
		if r.Network == mustIp(t, "192.168.1.0") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected r3 to learn the 192.168.1.0/24 stub behind r1 via OSPF")
	}
}

func TestNeighborReachesFullState(t *testing.T) {
	topo := buildLine(t)
	topo.n.Scheduler().Advance(topo.n.Scheduler().Delay(10))

	nbs := topo.svc1.Neighbors(topo.r1wan)
	if len(nbs) != 1 || nbs[0].State != Full {
		t.Fatalf("expected r1-r2 adjacency to be Full, got %+v", nbs)
	}
}

func TestNeighborDeadIntervalRemovesAdjacency(t *testing.T) {
	topo := buildLine(t)
	topo.n.Scheduler().Advance(topo.n.Scheduler().Delay(10))

	if len(topo.svc1.Neighbors(topo.r1wan)) != 1 {
		t.Fatal("expected r1-r2 adjacency before teardown")
	}

	for _, ei := range topo.svc2.ifaces {
		if ei.ni == topo.r2a && ei.helloSub != nil {
			ei.helloSub.Cancel()
		}
	}

	topo.n.Scheduler().Advance(topo.n.Scheduler().Delay(5))

	if len(topo.svc1.Neighbors(topo.r1wan)) != 0 {
		t.Fatal("expected r1's adjacency to r2 to be removed after the dead interval")
	}
}
