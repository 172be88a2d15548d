package message

import "github.com/packetlab/netsim/pkg/addr"

// ArpOp is the ARP operation code.
type ArpOp int

const (
	ArpRequest ArpOp = 1
	ArpReply   ArpOp = 2
)

// Arp is the resolution-protocol PDU carried as the payload of a broadcast
// (request) or unicast (reply) Ethernet frame.
type Arp struct {
	Operation  ArpOp
	SenderMac  addr.Mac
	SenderIp   addr.Ip
	TargetMac  addr.Mac
	TargetIp   addr.Ip
}
