package rip

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/router"
)

func ip(t *testing.T, s string) addr.Ip {
	t.Helper()
	v, err := addr.ParseIp(s)
	if err != nil {
		t.Fatalf("ParseIp(%q): %v", s, err)
	}
	return v
}

func mask(t *testing.T, cidr int) addr.Mask {
	t.Helper()
	m, err := addr.MaskFromCidr(cidr)
	if err != nil {
		t.Fatalf("MaskFromCidr(%d): %v", cidr, err)
	}
	return m
}

// buildPair wires two routers back to back over a shared /30, with r1
// additionally fronting a stub 192.168.1.0/24 subnet to advertise.
func buildPair(t *testing.T, opts Options) (*network.Network, *router.Router, *router.Router, *Service, *Service) {
	t.Helper()
	n := network.New()
	r1n, _ := n.AddNode("r1", node.KindRouter)
	r2n, _ := n.AddNode("r2", node.KindRouter)
	r1 := router.Attach(r1n, n.Scheduler())
	r2 := router.Attach(r2n, n.Scheduler())

	ni1 := r1.AddInterface("eth0")
	ni1.SetIp(ip(t, "10.0.0.1"))
	ni1.SetMask(mask(t, 30))
	ni1.Up()

	ni2 := r2.AddInterface("eth0")
	ni2.SetIp(ip(t, "10.0.0.2"))
	ni2.SetMask(mask(t, 30))
	ni2.Up()

	if _, err := n.Link("r1", "eth0", "r2", "eth0", 1); err != nil {
		t.Fatalf("link: %v", err)
	}

	rip1 := Attach(r1n, n.Scheduler(), r1, opts)
	rip2 := Attach(r2n, n.Scheduler(), r2, opts)
	rip1.EnableInterface(ni1)
	rip2.EnableInterface(ni2)

	behind1 := r1.AddInterface("eth1")
	behind1.SetIp(ip(t, "192.168.1.1"))
	behind1.SetMask(mask(t, 24))
	behind1.Up()
	rip1.EnableInterface(behind1)

	return n, r1, r2, rip1, rip2
}

func TestRipLearnsRemoteSubnetWithIncrementedMetric(t *testing.T) {
	n, _, _, _, rip2 := buildPair(t, DefaultOptions())

	n.Scheduler().Advance(n.Scheduler().Delay(31))

	var found *Route
	for _, r := range rip2.Routes() {
		if r.Network == ip(t, "192.168.1.0") {
			rr := r
			found = &rr
		}
	}
	if found == nil {
		t.Fatal("expected r2 to learn the 192.168.1.0/24 route from r1")
	}
	if found.Metric != 2 {
		t.Fatalf("metric = %d, want 2 (default_metric 1 + 1 hop)", found.Metric)
	}
}

func TestSplitHorizonOmitsRouteLearnedOnSameInterface(t *testing.T) {
	n, _, _, _, rip2 := buildPair(t, DefaultOptions())
	n.Scheduler().Advance(n.Scheduler().Delay(31))

	for _, r := range rip2.Routes() {
		if r.Network == ip(t, "10.0.0.0") && r.NextHop == ip(t, "10.0.0.1") {
			t.Fatal("r2 should not learn the shared /30 back from r1 over the same link (split horizon)")
		}
	}
}

func TestRouteGoesInvalidThenIsFlushedWithoutRefresh(t *testing.T) {
	opts := DefaultOptions()
	opts.UpdateInterval = 5
	opts.InvalidAfter = 20
	opts.FlushAfter = 10
	n, _, _, rip1, rip2 := buildPair(t, opts)

	n.Scheduler().Advance(n.Scheduler().Delay(6))

	var before bool
	for _, r := range rip2.Routes() {
		if r.Network == ip(t, "192.168.1.0") {
			before = true
		}
	}
	if !before {
		t.Fatal("expected r2 to have learned the route before its advertiser stopped")
	}

	rip1.Stop()
	n.Scheduler().Advance(n.Scheduler().Delay(40))

	for _, r := range rip2.Routes() {
		if r.Network == ip(t, "192.168.1.0") {
			t.Fatalf("expected stale route to be flushed, still present with metric %d", r.Metric)
		}
	}
}

func TestDisablingInterfaceClearsWholeTable(t *testing.T) {
	n, r1, _, rip1, _ := buildPair(t, DefaultOptions())
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if len(rip1.Routes()) == 0 {
		t.Fatal("expected rip1 to have at least its own redistributed routes")
	}

	ifs := r1.NetworkInterfaces()
	rip1.DisableInterface(ifs[0])

	if len(rip1.Routes()) != 0 {
		t.Fatalf("expected toggling an interface to clear the whole table, got %d routes", len(rip1.Routes()))
	}
}
