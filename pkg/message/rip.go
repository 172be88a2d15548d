package message

import "github.com/packetlab/netsim/pkg/addr"

// RipMetricInfinity is the unreachable metric (16, per RFC 2453).
const RipMetricInfinity = 16

// RipEntry is one advertised route inside a RIP update.
type RipEntry struct {
	Network addr.Ip
	Mask    addr.Mask
	Metric  int
	Tag     int
}

// RipUpdate is the periodic (or triggered) distance-vector advertisement
// broadcast out an enabled interface.
type RipUpdate struct {
	Entries []RipEntry
}
