package addr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/packetlab/netsim/pkg/simerr"
)

// Ip is a 32-bit IPv4 address.
type Ip uint32

// ParseIp parses standard dotted-quad notation.
func ParseIp(s string) (Ip, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, simerr.New(simerr.KindInvalidAddress, "ip", fmt.Sprintf("%q is not an IPv4 address", s))
	}
	var v uint32
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, simerr.New(simerr.KindInvalidAddress, "ip", fmt.Sprintf("%q is not an IPv4 address", s))
		}
		v = (v << 8) | uint32(n)
	}
	return Ip(v), nil
}

// String renders dotted-quad notation.
func (ip Ip) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// Mask is an IPv4 subnet mask with a cached prefix length.
type Mask uint32

// MaskFromCidr builds a Mask from a prefix length in [0,32].
func MaskFromCidr(cidr int) (Mask, error) {
	if cidr < 0 || cidr > 32 {
		return 0, simerr.New(simerr.KindInvalidMask, "cidr", fmt.Sprintf("cidr %d out of range", cidr))
	}
	if cidr == 0 {
		return 0, nil
	}
	return Mask(^uint32(0) << uint(32-cidr)), nil
}

// ParseMask parses dotted-quad mask notation (e.g. "255.255.255.0").
func ParseMask(s string) (Mask, error) {
	ip, err := ParseIp(s)
	if err != nil {
		return 0, simerr.New(simerr.KindInvalidMask, "mask", fmt.Sprintf("%q is not a mask", s))
	}
	return Mask(ip), nil
}

// Cidr returns the prefix length implied by the mask's leading one-bits.
func (m Mask) Cidr() int {
	n := 0
	v := uint32(m)
	for v&0x80000000 != 0 {
		n++
		v <<= 1
	}
	return n
}

// String renders dotted-quad notation.
func (m Mask) String() string { return Ip(m).String() }

// Network returns ip & mask, the network address for ip under mask.
func (m Mask) Network(ip Ip) Ip {
	return ip & Ip(m)
}

// SameNetwork reports whether other lies in ip's network under mask.
func (ip Ip) SameNetwork(mask Mask, other Ip) bool {
	return mask.Network(ip) == mask.Network(other)
}
