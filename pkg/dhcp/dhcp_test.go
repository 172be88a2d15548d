package dhcp

import (
	"testing"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
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

// buildPair wires a server and a client onto a shared segment and returns
// both endpoints along with the network driving them.
func buildPair(t *testing.T) (*network.Network, *Server, *Client, *iface.NetworkInterface) {
	t.Helper()
	n := network.New()
	srvNode, _ := n.AddNode("srv", node.KindServer)
	cliNode, _ := n.AddNode("cli", node.KindHost)

	hwSrv := srvNode.AddInterface("eth0")
	hwSrv.Up()
	hwCli := cliNode.AddInterface("eth0")
	hwCli.Up()

	if _, err := n.Link("srv", "eth0", "cli", "eth0", 1); err != nil {
		t.Fatalf("link: %v", err)
	}

	macSrv, _ := addr.ParseMac("00:00:00:00:01:00")
	macCli, _ := addr.ParseMac("00:00:00:00:02:00")
	hwSrv.SetMac(macSrv)
	hwCli.SetMac(macCli)

	niSrv := iface.NewNetworkInterface(hwSrv)
	niSrv.SetIp(mustIp(t, "10.0.0.1"))
	niSrv.SetMask(mustMask(t, 24))

	niCli := iface.NewNetworkInterface(hwCli)

	srv := AttachServer(srvNode, n.Scheduler(), niSrv, ServerConfig{
		Pool:         Pool{Start: mustIp(t, "10.0.0.100"), End: mustIp(t, "10.0.0.110")},
		LeaseSeconds: 100,
		Router:       mustIp(t, "10.0.0.1"),
		Mask:         mustMask(t, 24),
	})
	cli := AttachClient(cliNode, n.Scheduler(), niCli)

	return n, srv, cli, niCli
}

func TestClientAcquiresLeaseViaDora(t *testing.T) {
	n, srv, cli, ni := buildPair(t)

	cli.Start()
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if cli.State() != StateBound {
		t.Fatalf("expected client bound, got %s", cli.State())
	}
	if ni.Ip() < mustIp(t, "10.0.0.100") || ni.Ip() > mustIp(t, "10.0.0.110") {
		t.Fatalf("client IP %v not in configured pool", ni.Ip())
	}

	leases := srv.Leases()
	if len(leases) != 1 {
		t.Fatalf("expected exactly one lease on the server, got %d", len(leases))
	}
	if leases[0].Ip != ni.Ip() {
		t.Fatalf("server lease IP %v does not match client IP %v", leases[0].Ip, ni.Ip())
	}
}

func TestSecondDiscoverReusesSameLease(t *testing.T) {
	n, srv, cli, ni := buildPair(t)

	cli.Start()
	n.Scheduler().Advance(n.Scheduler().Delay(1))
	first := ni.Ip()

	// A fresh DISCOVER from the same MAC (e.g. a reboot) should be offered
	// its existing lease, not a new address from the pool.
	cli.state = StateInit
	cli.Start()
	n.Scheduler().Advance(n.Scheduler().Delay(1))

	if ni.Ip() != first {
		t.Fatalf("expected the same leased IP %v on re-DISCOVER, got %v", first, ni.Ip())
	}
	if len(srv.Leases()) != 1 {
		t.Fatalf("expected lease table to stay at one entry, got %d", len(srv.Leases()))
	}
}

func TestLeaseRenewalKeepsClientBound(t *testing.T) {
	n, _, cli, ni := buildPair(t)

	cli.Start()
	n.Scheduler().Advance(n.Scheduler().Delay(1))
	if cli.State() != StateBound {
		t.Fatalf("expected client bound before expiry, got %s", cli.State())
	}

	// Lease is 100s; advance well past T1/T2/expiry renewal attempts land
	// on a server that is still up, so the client should re-bind rather
	// than go fully dark. Advancing past expiry with the server present
	// verifies the client keeps renewing instead of silently stalling.
	n.Scheduler().Advance(n.Scheduler().Delay(200))

	if cli.State() != StateBound {
		t.Fatalf("expected client to remain bound after renewal cycle, got %s", cli.State())
	}
	if ni.Ip() == 0 {
		t.Fatal("expected client to retain a leased IP across renewal")
	}
}
