// Package addr implements the value-type addresses used throughout the
// simulator: a 48-bit Mac and a 32-bit Ip with mask-aware predicates.
// Both are plain comparable structs rather than net.HardwareAddr/net.IP
// slices, so they can be used as map keys and compared with ==.
package addr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/packetlab/netsim/pkg/simerr"
)

// Mac is a 48-bit Ethernet hardware address.
type Mac [6]byte

// Broadcast is the all-ones MAC used for flooding and ARP requests.
var Broadcast = Mac{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Zero is the unset MAC.
var Zero = Mac{}

// ParseMac parses the colon-separated hex form ("aa:bb:cc:dd:ee:ff").
func ParseMac(s string) (Mac, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Mac{}, simerr.New(simerr.KindInvalidAddress, "mac", fmt.Sprintf("%q is not a MAC address", s))
	}
	var m Mac
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Mac{}, simerr.New(simerr.KindInvalidAddress, "mac", fmt.Sprintf("%q is not a MAC address", s))
		}
		m[i] = byte(v)
	}
	return m, nil
}

// String renders the standard colon-separated hex form.
func (m Mac) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is the all-ones broadcast address.
func (m Mac) IsBroadcast() bool { return m == Broadcast }

// IsZero reports whether m has never been assigned.
func (m Mac) IsZero() bool { return m == Zero }

// Less orders MACs byte-by-byte; used for bridge-id tie-breaking in STP
// ("lowest-own-mac").
func (m Mac) Less(other Mac) bool {
	for i := range m {
		if m[i] != other[i] {
			return m[i] < other[i]
		}
	}
	return false
}

// SortMacs sorts a slice of Mac values ascending.
func SortMacs(macs []Mac) {
	sort.Slice(macs, func(i, j int) bool { return macs[i].Less(macs[j]) })
}
