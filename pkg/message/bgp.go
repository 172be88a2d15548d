package message

import "github.com/packetlab/netsim/pkg/addr"

// BgpMessageType is the BGP message type (RFC 4271 §4.1).
type BgpMessageType int

const (
	BgpOpen BgpMessageType = iota
	BgpKeepalive
	BgpUpdate
	BgpNotification
)

// Bgp is a minimal BGP PDU: enough to drive the peer state machine and
// exchange a flat advertised table, without the full attribute set of real
// BGP (explicitly a skeleton, per spec.md §2).
type Bgp struct {
	Type      BgpMessageType
	AsNumber  int
	RouterId  addr.Ip
	HoldTime  int
	Withdrawn []BgpRoute
	Announced []BgpRoute
}

// BgpRoute is one advertised network with its AS-path.
type BgpRoute struct {
	Network addr.Ip
	Mask    addr.Mask
	NextHop addr.Ip
	AsPath  []int
}
