package message

import "github.com/packetlab/netsim/pkg/addr"

// IPv4 carries the fields the router data plane needs: addresses, TTL, and
// an opaque upper-layer payload (ICMP, UDP-ish control PDUs, ...).
type IPv4 struct {
	SrcIp   addr.Ip
	DstIp   addr.Ip
	Ttl     uint8
	Payload interface{}
}

// DecrementTtl returns a copy of the message with TTL decremented by one. The
// caller is responsible for checking the result against zero.
func (m IPv4) DecrementTtl() IPv4 {
	m.Ttl--
	return m
}

// ICMP type/code constants used by the router data plane and ICMP helpers.
const (
	ICMPTypeEchoRequest   = 8
	ICMPTypeEchoReply     = 0
	ICMPTypeTimeExceeded  = 11
	ICMPCodeTTLExceeded   = 0
	ICMPTypeUnreachable   = 3
	ICMPCodeHostUnreach   = 1
)

// ICMP carries a type/code pair plus an opaque payload (for Echo: an
// identifier/sequence pair; for Time Exceeded: the original IPv4 header).
type ICMP struct {
	Type    uint8
	Code    uint8
	Payload interface{}
}

// EchoPayload is the ICMP payload for Echo Request/Reply.
type EchoPayload struct {
	Id   uint16
	Seq  uint16
	Data []byte
}
