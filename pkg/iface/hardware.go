// Package iface implements the hardware interface, network interface, and
// physical link model from the spec's data model and §4.3 physical transit
// rules. It is grounded on the teacher's Device/Interface fields
// (pkg/config.Device, Interface) but replaces real pcap send/receive with
// scheduler-driven virtual-time delivery.
package iface

import (
	"sort"

	"github.com/packetlab/netsim/pkg/addr"
	"github.com/packetlab/netsim/pkg/simerr"
)

// VlanMode is the 802.1Q port mode.
type VlanMode int

const (
	ModeAccess VlanMode = iota
	ModeTrunk
)

// Frame is anything the physical layer can carry: a source/destination MAC
// pair. message.Ethernet and message.Dot1Q satisfy this via their embedded
// Datalink.
type Frame interface {
	Source() addr.Mac
	Destination() addr.Mac
}

// Host is the minimal capability a hardware interface needs from its owning
// node: a name for logging, and a place to deliver arriving frames. Node
// (pkg/node) implements this; keeping the dependency this way (iface does
// not import node) avoids an import cycle in the node<->interface<->link
// graph described in the spec's design notes.
type Host interface {
	Name() string
	Receive(in *HardwareInterface, frame Frame)
}

// HardwareInterface is a single physical/virtual NIC: MAC, link state,
// speed/duplex, and VLAN configuration. It borrows (does not own) its host
// node and its at-most-one Link.
type HardwareInterface struct {
	Name string

	mac     addr.Mac
	up      bool
	speed   int // Mb/s: 10, 100, 1000 (0 permitted only with autoNeg)
	full    bool
	autoNeg bool

	vlanMode     VlanMode
	allowedVlans []int
	nativeVlan   int

	host Host
	link *Link

	listeners []StateListener
}

// StateListener receives the plain string events named in §4.2.
type StateListener func(event string, h *HardwareInterface)

const (
	EventInterfaceUp     = "OnInterfaceUp"
	EventInterfaceDown   = "OnInterfaceDown"
	EventInterfaceAdded  = "OnInterfaceAdded"
	EventInterfaceChange = "OnInterfaceChange"
)

// NewHardwareInterface creates a down, access-mode, native-VLAN-1 interface
// owned by host.
func NewHardwareInterface(name string, host Host) *HardwareInterface {
	return &HardwareInterface{
		Name:         name,
		host:         host,
		speed:        1000,
		full:         true,
		vlanMode:     ModeAccess,
		nativeVlan:   1,
		allowedVlans: []int{1},
	}
}

// Host returns the owning node.
func (h *HardwareInterface) Host() Host { return h.host }

// Mac returns the interface's MAC address.
func (h *HardwareInterface) Mac() addr.Mac { return h.mac }

// SetMac assigns a new MAC address.
func (h *HardwareInterface) SetMac(m addr.Mac) {
	h.mac = m
	h.emit(EventInterfaceChange)
}

// IsUp reports the administrative state.
func (h *HardwareInterface) IsUp() bool { return h.up }

// Up administratively enables the interface.
func (h *HardwareInterface) Up() {
	if h.up {
		return
	}
	h.up = true
	h.emit(EventInterfaceUp)
}

// Down administratively disables the interface.
func (h *HardwareInterface) Down() {
	if !h.up {
		return
	}
	h.up = false
	h.emit(EventInterfaceDown)
}

// Speed returns the configured speed in Mb/s.
func (h *HardwareInterface) Speed() int { return h.speed }

// SetSpeed validates and sets the link speed. 0 is only permitted when
// auto-negotiation is enabled (it means "negotiate").
func (h *HardwareInterface) SetSpeed(mbps int) error {
	switch mbps {
	case 10, 100, 1000:
		h.speed = mbps
	case 0:
		if !h.autoNeg {
			return simerr.New(simerr.KindInvalidSpeed, "speed", "0 requires auto-negotiation enabled")
		}
		h.speed = 0
	default:
		return simerr.New(simerr.KindInvalidSpeed, "speed", "speed must be 10, 100, or 1000 Mb/s")
	}
	h.emit(EventInterfaceChange)
	return nil
}

// FullDuplex reports whether the interface is configured full-duplex.
func (h *HardwareInterface) FullDuplex() bool { return h.full }

// SetFullDuplex sets duplex mode. Half duplex at 1000 Mb/s is rejected with
// an InvalidSpeed error and the prior duplex setting is kept. There is no
// half-duplex-only hardware flag; callers model a "half-duplex-only" NIC by
// never calling SetFullDuplex(true) on it.
func (h *HardwareInterface) SetFullDuplex(full bool) error {
	if h.speed == 1000 && !full {
		return simerr.New(simerr.KindInvalidSpeed, "duplex", "gigabit interfaces cannot run half-duplex")
	}
	h.full = full
	h.emit(EventInterfaceChange)
	return nil
}

// SetAutoNegotiation toggles auto-negotiation.
func (h *HardwareInterface) SetAutoNegotiation(on bool) { h.autoNeg = on }

// AutoNegotiation reports whether auto-negotiation is enabled.
func (h *HardwareInterface) AutoNegotiation() bool { return h.autoNeg }

// VlanMode returns the port's VLAN mode.
func (h *HardwareInterface) VlanMode() VlanMode { return h.vlanMode }

// SetVlanMode sets Access or Trunk mode.
func (h *HardwareInterface) SetVlanMode(mode VlanMode) {
	h.vlanMode = mode
	h.emit(EventInterfaceChange)
}

// NativeVlan returns the port's native/access VLAN id.
func (h *HardwareInterface) NativeVlan() int { return h.nativeVlan }

// SetNativeVlan sets the native VLAN, validating range.
func (h *HardwareInterface) SetNativeVlan(id int) error {
	if id < 1 || id > 4094 {
		return simerr.New(simerr.KindInvalidVlanId, "vlan", "vlan id must be in [1,4094]")
	}
	h.nativeVlan = id
	h.ensureAllowed(id)
	h.emit(EventInterfaceChange)
	return nil
}

// AllowedVlans returns a copy of the ordered allowed-VLAN list.
func (h *HardwareInterface) AllowedVlans() []int {
	out := make([]int, len(h.allowedVlans))
	copy(out, h.allowedVlans)
	return out
}

// AddVlan adds id to the allowed-VLAN list, ordered and de-duplicated.
func (h *HardwareInterface) AddVlan(id int) error {
	if id < 1 || id > 4094 {
		return simerr.New(simerr.KindInvalidVlanId, "vlan", "vlan id must be in [1,4094]")
	}
	h.ensureAllowed(id)
	h.emit(EventInterfaceChange)
	return nil
}

func (h *HardwareInterface) ensureAllowed(id int) {
	for _, v := range h.allowedVlans {
		if v == id {
			return
		}
	}
	h.allowedVlans = append(h.allowedVlans, id)
	sort.Ints(h.allowedVlans)
}

// RemoveVlan removes id from the allowed-VLAN list. The invariant that the
// list always contains the native VLAN or at least one explicit entry is
// preserved by refusing to remove the last remaining entry.
func (h *HardwareInterface) RemoveVlan(id int) error {
	if len(h.allowedVlans) == 1 && h.allowedVlans[0] == id {
		return simerr.New(simerr.KindInvalidVlanId, "vlan", "cannot remove the only allowed vlan")
	}
	for i, v := range h.allowedVlans {
		if v == id {
			h.allowedVlans = append(h.allowedVlans[:i], h.allowedVlans[i+1:]...)
			h.emit(EventInterfaceChange)
			return nil
		}
	}
	return simerr.New(simerr.KindInvalidVlanId, "vlan", "vlan not in allowed list")
}

// AllowsVlan reports whether the port's allowed list contains vlan.
func (h *HardwareInterface) AllowsVlan(vlan int) bool {
	for _, v := range h.allowedVlans {
		if v == vlan {
			return true
		}
	}
	return false
}

// FirstAllowedVlan returns the VLAN an untagged frame entering this port is
// assigned to: the native VLAN on a trunk, or the port's single access
// VLAN.
func (h *HardwareInterface) FirstAllowedVlan() int {
	if h.vlanMode == ModeTrunk {
		return h.nativeVlan
	}
	if len(h.allowedVlans) > 0 {
		return h.allowedVlans[0]
	}
	return h.nativeVlan
}

// Link returns the connected link, or nil.
func (h *HardwareInterface) Link() *Link { return h.link }

// Connected reports whether the interface has a link.
func (h *HardwareInterface) Connected() bool { return h.link != nil }

// AddListener registers a string-event listener.
func (h *HardwareInterface) AddListener(l StateListener) {
	h.listeners = append(h.listeners, l)
}

func (h *HardwareInterface) emit(event string) {
	snapshot := h.listeners
	for _, l := range snapshot {
		l(event, h)
	}
}
