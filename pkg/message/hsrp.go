package message

import "github.com/packetlab/netsim/pkg/addr"

// HsrpOp is the HSRP hello opcode (RFC 2281).
type HsrpOp int

const (
	HsrpHello HsrpOp = iota
	HsrpCoup
	HsrpResign
)

// Hsrp is the First-Hop-Redundancy hello PDU.
type Hsrp struct {
	Group     int
	Op        HsrpOp
	Priority  uint8
	VirtualIp addr.Ip
	State     string // advertised state label, purely informational
}
