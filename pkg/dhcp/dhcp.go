// Package dhcp implements the server lease allocator and client state
// machine from §4.13: DISCOVER/OFFER/REQUEST/ACK exchanged as ordinary
// frames through the same listener-chain delivery path as data traffic.
// Grounded on the teacher's pkg/protocols/dhcp.go for the message-type
// vocabulary and pkg/stp's timer-driven state machine for the client's
// T1/T2/lease-expiry schedule.
package dhcp

import (
	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/iface"
	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/message"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
)

// DefaultLeaseSeconds is the spec's documented default (in virtual
// seconds): 86400, i.e. a simulated day.
const DefaultLeaseSeconds = 86400

// Pool is the configured allocation range [Start, End] inclusive.
type Pool struct {
	Start addr.Ip
	End   addr.Ip
}

// contains reports whether ip falls within the pool, treating Ip as the
// unsigned integer it already is.
func (p Pool) contains(ip addr.Ip) bool { return ip >= p.Start && ip <= p.End }

// Lease is one entry in the server's lease table.
type Lease struct {
	Mac        addr.Mac
	Ip         addr.Ip
	LeaseStart sched.Time
	LeaseEnd   sched.Time
}

// Server is a DHCP server bound to one network interface.
type Server struct {
	node  *node.Node
	sched *sched.Scheduler
	ni    *iface.NetworkInterface

	pool         Pool
	leaseSeconds float64
	router       addr.Ip
	mask         addr.Mask
	dns          []addr.Ip

	leases map[addr.Mac]*Lease
	byIp   map[addr.Ip]addr.Mac
}

// ServerConfig groups the options handed out to clients.
type ServerConfig struct {
	Pool         Pool
	LeaseSeconds float64
	Router       addr.Ip
	Mask         addr.Mask
	DnsServers   []addr.Ip
}

// AttachServer wires a DHCP server onto n's frame chain, serving out of ni.
func AttachServer(n *node.Node, s *sched.Scheduler, ni *iface.NetworkInterface, cfg ServerConfig) *Server {
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = DefaultLeaseSeconds
	}
	srv := &Server{
		node: n, sched: s, ni: ni,
		pool: cfg.Pool, leaseSeconds: cfg.LeaseSeconds,
		router: cfg.Router, mask: cfg.Mask, dns: cfg.DnsServers,
		leases: make(map[addr.Mac]*Lease),
		byIp:   make(map[addr.Ip]addr.Mac),
	}
	n.AddListener(srv.onFrame)
	return srv
}

// Leases returns a snapshot of the active lease table.
func (srv *Server) Leases() []Lease {
	out := make([]Lease, 0, len(srv.leases))
	for _, l := range srv.leases {
		out = append(out, *l)
	}
	return out
}

func (srv *Server) allocate(mac addr.Mac) (addr.Ip, bool) {
	if l, ok := srv.leases[mac]; ok {
		return l.Ip, true
	}
	for ip := srv.pool.Start; ip <= srv.pool.End; ip++ {
		if _, taken := srv.byIp[ip]; !taken {
			return ip, true
		}
	}
	return 0, false
}

func (srv *Server) onFrame(e node.FrameEvent) listener.Disposition {
	eth, ok := e.Frame.(message.Ethernet)
	if !ok {
		return listener.Continue
	}
	req, ok := eth.Payload.(message.Dhcp)
	if !ok {
		return listener.Continue
	}

	switch req.Op {
	case message.DhcpDiscover:
		ip, ok := srv.allocate(req.ClientMac)
		if !ok {
			return listener.Handled
		}
		offer := message.Dhcp{
			Op: message.DhcpOffer, ClientMac: req.ClientMac, OfferedIp: ip,
			ServerIp: srv.ni.Ip(), Router: srv.router, Mask: srv.mask,
			DnsServers: srv.dns, LeaseSecs: int(srv.leaseSeconds),
		}
		_ = srv.ni.Send(message.NewEthernet(srv.ni.Mac(), eth.SrcMac, offer))
		return listener.Handled

	case message.DhcpRequest:
		ip := req.OfferedIp
		if owner, taken := srv.byIp[ip]; taken && owner != req.ClientMac {
			nak := message.Dhcp{Op: message.DhcpNak, ClientMac: req.ClientMac}
			_ = srv.ni.Send(message.NewEthernet(srv.ni.Mac(), eth.SrcMac, nak))
			return listener.Handled
		}
		now := srv.sched.Now()
		lease := &Lease{Mac: req.ClientMac, Ip: ip, LeaseStart: now, LeaseEnd: now + srv.sched.Delay(srv.leaseSeconds)}
		srv.leases[req.ClientMac] = lease
		srv.byIp[ip] = req.ClientMac
		ack := message.Dhcp{
			Op: message.DhcpAck, ClientMac: req.ClientMac, OfferedIp: ip,
			ServerIp: srv.ni.Ip(), Router: srv.router, Mask: srv.mask,
			DnsServers: srv.dns, LeaseSecs: int(srv.leaseSeconds),
		}
		_ = srv.ni.Send(message.NewEthernet(srv.ni.Mac(), eth.SrcMac, ack))
		return listener.Handled
	}
	return listener.Continue
}

// State is the client-side lease acquisition/renewal state machine.
type State int

const (
	StateInit State = iota
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSelecting:
		return "selecting"
	case StateRequesting:
		return "requesting"
	case StateBound:
		return "bound"
	case StateRenewing:
		return "renewing"
	case StateRebinding:
		return "rebinding"
	default:
		return "unknown"
	}
}

// Client is a DHCP client bound to one network interface.
type Client struct {
	node  *node.Node
	sched *sched.Scheduler
	ni    *iface.NetworkInterface

	state    State
	serverIp addr.Ip

	t1, t2, expiry *sched.Subscription
}

// AttachClient wires a DHCP client onto n's frame chain.
func AttachClient(n *node.Node, s *sched.Scheduler, ni *iface.NetworkInterface) *Client {
	c := &Client{node: n, sched: s, ni: ni, state: StateInit}
	n.AddListener(c.onFrame)
	return c
}

// State returns the client's current state.
func (c *Client) State() State { return c.state }

// Start begins the DORA exchange by broadcasting a DISCOVER.
func (c *Client) Start() {
	c.state = StateSelecting
	discover := message.Dhcp{Op: message.DhcpDiscover, ClientMac: c.ni.Mac()}
	_ = c.ni.Send(message.NewEthernet(c.ni.Mac(), addr.Broadcast, discover))
}

func (c *Client) onFrame(e node.FrameEvent) listener.Disposition {
	eth, ok := e.Frame.(message.Ethernet)
	if !ok {
		return listener.Continue
	}
	reply, ok := eth.Payload.(message.Dhcp)
	if !ok || reply.ClientMac != c.ni.Mac() {
		return listener.Continue
	}

	switch reply.Op {
	case message.DhcpOffer:
		if c.state != StateSelecting {
			return listener.Handled
		}
		c.state = StateRequesting
		c.serverIp = reply.ServerIp
		request := message.Dhcp{Op: message.DhcpRequest, ClientMac: c.ni.Mac(), OfferedIp: reply.OfferedIp, ServerIp: reply.ServerIp}
		_ = c.ni.Send(message.NewEthernet(c.ni.Mac(), addr.Broadcast, request))
		return listener.Handled

	case message.DhcpAck:
		c.ni.SetIp(reply.OfferedIp)
		c.ni.SetMask(reply.Mask)
		c.state = StateBound
		c.armLeaseTimers(float64(reply.LeaseSecs))
		return listener.Handled

	case message.DhcpNak:
		c.cancelTimers()
		c.state = StateInit
		c.Start()
		return listener.Handled
	}
	return listener.Continue
}

func (c *Client) cancelTimers() {
	for _, sub := range []*sched.Subscription{c.t1, c.t2, c.expiry} {
		if sub != nil {
			sub.Cancel()
		}
	}
	c.t1, c.t2, c.expiry = nil, nil, nil
}

func (c *Client) armLeaseTimers(leaseSecs float64) {
	c.cancelTimers()
	c.t1 = c.sched.Once(c.sched.Delay(0.5*leaseSecs), func() {
		c.state = StateRenewing
		req := message.Dhcp{Op: message.DhcpRequest, ClientMac: c.ni.Mac(), OfferedIp: c.ni.Ip(), ServerIp: c.serverIp}
		_ = c.ni.Send(message.NewEthernet(c.ni.Mac(), addr.Broadcast, req))
	})
	c.t2 = c.sched.Once(c.sched.Delay(0.875*leaseSecs), func() {
		if c.state == StateRenewing {
			c.state = StateRebinding
			req := message.Dhcp{Op: message.DhcpRequest, ClientMac: c.ni.Mac(), OfferedIp: c.ni.Ip()}
			_ = c.ni.Send(message.NewEthernet(c.ni.Mac(), addr.Broadcast, req))
		}
	})
	c.expiry = c.sched.Once(c.sched.Delay(leaseSecs), func() {
		c.state = StateInit
		c.ni.SetIp(0)
		c.Start()
	})
}
