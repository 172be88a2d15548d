package message

import (
	"fmt"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/sched"
)

// BridgeId is the (priority, mac) pair that totally orders bridges in STP;
// lower wins, ties broken by MAC (priority, then lowest-own-mac).
type BridgeId struct {
	Priority uint16
	Mac      addr.Mac
}

func (b BridgeId) String() string { return fmt.Sprintf("%d/%s", b.Priority, b.Mac) }

// Less implements the STP bridge/root-id ordering: lower priority wins,
// ties broken by lower MAC.
func (b BridgeId) Less(other BridgeId) bool {
	if b.Priority != other.Priority {
		return b.Priority < other.Priority
	}
	return b.Mac.Less(other.Mac)
}

// Equal reports whether two bridge ids are identical.
func (b BridgeId) Equal(other BridgeId) bool {
	return b.Priority == other.Priority && b.Mac == other.Mac
}

// PortRole mirrors the RSTP port-role encoding carried in BPDU flags.
type PortRole int

const (
	PortRoleUnknown PortRole = iota
	PortRoleAlternate
	PortRoleBackup
	PortRoleRoot
	PortRoleDesignated
	// PortRoleBlocked is the plain 802.1D role for a port that lost the
	// designated-port comparison; RSTP/PVST instances use the more
	// specific Alternate/Backup roles instead.
	PortRoleBlocked
	PortRoleDisabled
)

func (r PortRole) String() string {
	switch r {
	case PortRoleAlternate:
		return "alternate"
	case PortRoleBackup:
		return "backup"
	case PortRoleRoot:
		return "root"
	case PortRoleDesignated:
		return "designated"
	case PortRoleBlocked:
		return "blocked"
	case PortRoleDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// PortState is the 802.1D port forwarding state, shared vocabulary between
// the switch data plane (pkg/l2switch) and the Spanning Tree state machine
// (pkg/stp) so neither package needs to import the other.
type PortState int

const (
	StateDisabled PortState = iota
	StateBlocking
	StateListening
	StateLearning
	StateForwarding
)

func (s PortState) String() string {
	switch s {
	case StateBlocking:
		return "blocking"
	case StateListening:
		return "listening"
	case StateLearning:
		return "learning"
	case StateForwarding:
		return "forwarding"
	default:
		return "disabled"
	}
}

// STPBpdu is an 802.1D Configuration BPDU.
type STPBpdu struct {
	ProtocolId   uint16
	Version      uint8
	Type         uint8
	Flags        uint8
	RootId       BridgeId
	RootPathCost uint32
	BridgeId     BridgeId
	PortId       uint16
	MessageAge   sched.Time
	MaxAge       sched.Time
	HelloTime    sched.Time
	ForwardDelay sched.Time
}

// BPDU types/flags shared by STP/RSTP/PVST.
const (
	BpduTypeConfig = 0x00
	BpduTypeTCN    = 0x80

	FlagTopologyChange    = 0x01
	FlagProposal          = 0x02
	FlagLearning          = 0x10
	FlagForwarding        = 0x20
	FlagAgreement         = 0x40
	FlagTopologyChangeAck = 0x80
)

// RSTPBpdu extends the config BPDU with the explicit proposal/agreement/
// forwarding/learning/role fields RSTP needs (802.1D BPDUs pack these into
// the flags byte + a role field; modelled here as first-class fields for
// clarity rather than bit-twiddling, since this is an in-memory message).
type RSTPBpdu struct {
	STPBpdu
	Proposal   bool
	Agreement  bool
	Forwarding bool
	Learning   bool
	PortRole   PortRole
}

// PVSTBpdu tags an RSTP-shaped BPDU with the VLAN instance it belongs to.
type PVSTBpdu struct {
	RSTPBpdu
	VlanId int
}
