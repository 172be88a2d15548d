package message

import "github.com/packetlab/netsim/pkg/addr"

// OspfHello is the neighbor-discovery/keepalive PDU.
type OspfHello struct {
	RouterId addr.Ip
	AreaId   int
	Seen     []addr.Ip // router ids this speaker has heard from (2-way check)
}

// OspfLsa is a minimal link-state advertisement: one router's directly
// connected subnets, enough to build a shortest-path table without
// implementing the full flooding/aging/sequence-number reliability
// mechanics of real OSPF (this is explicitly a skeleton, per spec.md §2).
type OspfLsa struct {
	RouterId addr.Ip
	Links    []OspfLink
}

// OspfLink is one advertised directly-connected subnet with its cost.
// NeighborId is non-zero when a full adjacency exists out the interface
// this link represents, turning the link into a router-to-router graph
// edge for SPF in addition to the stub network it advertises; zero means
// a plain stub network with no adjacent router known yet.
type OspfLink struct {
	Network    addr.Ip
	Mask       addr.Mask
	Cost       int
	NeighborId addr.Ip
}
