package message

import "github.com/packetlab/netsim/pkg/addr"

// DhcpOp is the DHCP message type (RFC 2131 §3).
type DhcpOp int

const (
	DhcpDiscover DhcpOp = iota
	DhcpOffer
	DhcpRequest
	DhcpAck
	DhcpNak
)

// Dhcp is the DHCP client/server PDU.
type Dhcp struct {
	Op         DhcpOp
	ClientMac  addr.Mac
	OfferedIp  addr.Ip
	ServerIp   addr.Ip
	Router     addr.Ip
	Mask       addr.Mask
	DnsServers []addr.Ip
	LeaseSecs  int
}
