// Package message implements the simulator's closed, tagged message
// hierarchy: physical bits -> Ethernet -> 802.1Q -> IP -> ICMP, plus the
// Spanning Tree / RSTP / PVST BPDUs and the RIP/OSPF/BGP/DHCP/HSRP/ARP
// control-plane PDUs. Every message is an in-memory value; there is no wire
// byte encoding (the Ethernet CRC is a checksum-shaped field computed for
// fidelity to real framing, not a serialization format — see the spec's
// explicit no-wire-encoding non-goal).
package message

import (
	"fmt"
	"hash/crc32"

	"github.com/packetlab/netsim/pkg/addr"
)

// ieeeTable is the lookup-table CRC-32 implementation over the IEEE 802.3
// reflected polynomial, exactly as required by the frame checksum field.
var ieeeTable = crc32.MakeTable(crc32.IEEE)

// Datalink is the base of every Ethernet-and-above message: a source and
// destination MAC plus an opaque upper-layer payload.
type Datalink struct {
	SrcMac  addr.Mac
	DstMac  addr.Mac
	Payload interface{}
}

// Source returns the frame's source MAC. Embedding Datalink gives every
// Ethernet/Dot1Q message this method for free, which is how the physical
// transit layer identifies loopback and flood targets without knowing the
// concrete message type.
func (d Datalink) Source() addr.Mac { return d.SrcMac }

// Destination returns the frame's destination MAC.
func (d Datalink) Destination() addr.Mac { return d.DstMac }

// Ethernet adds the precomputed IEEE 802.3 CRC-32 over dst||src||payload.
type Ethernet struct {
	Datalink
	Checksum uint32
}

// NewEthernet builds an Ethernet frame and computes its checksum.
func NewEthernet(src, dst addr.Mac, payload interface{}) Ethernet {
	e := Ethernet{Datalink: Datalink{SrcMac: src, DstMac: dst, Payload: payload}}
	e.Checksum = checksum(dst, src, payload)
	return e
}

func checksum(dst, src addr.Mac, payload interface{}) uint32 {
	buf := make([]byte, 0, 12+32)
	buf = append(buf, dst[:]...)
	buf = append(buf, src[:]...)
	buf = append(buf, []byte(fmt.Sprintf("%#v", payload))...)
	return crc32.Checksum(buf, ieeeTable)
}

// Dot1Q is an Ethernet frame additionally tagged with an 802.1Q VLAN id.
type Dot1Q struct {
	Ethernet
	VlanId int
}

// NewDot1Q builds a tagged frame, recomputing the checksum over the same
// dst||src||payload (the tag itself is not covered, matching real 802.1Q
// framing where the FCS covers the tagged frame but the checksum here is a
// pedagogical field rather than a real FCS).
func NewDot1Q(src, dst addr.Mac, vlan int, payload interface{}) Dot1Q {
	return Dot1Q{Ethernet: NewEthernet(src, dst, payload), VlanId: vlan}
}

// Untag strips the 802.1Q tag, producing a plain Ethernet frame (used when a
// switch forwards a tagged frame out an access port).
func (d Dot1Q) Untag() Ethernet {
	return d.Ethernet
}

// Retag wraps a plain Ethernet frame back into an 802.1Q frame carrying
// vlan (used when a switch forwards an untagged frame out a trunk port).
func Retag(e Ethernet, vlan int) Dot1Q {
	return Dot1Q{Ethernet: e, VlanId: vlan}
}
