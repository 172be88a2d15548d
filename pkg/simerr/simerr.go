// Package simerr provides the typed configuration errors used across the
// simulator core, and the handful of sentinel transient conditions that
// protocol code checks for by identity rather than by message text.
package simerr

import "fmt"

// Kind enumerates the configuration error kinds from the error handling
// design: each carries enough context to identify the offending field.
type Kind string

const (
	KindInvalidAddress  Kind = "InvalidAddress"
	KindInvalidMask     Kind = "InvalidMask"
	KindInvalidVlanId   Kind = "InvalidVlanId"
	KindInvalidSpeed    Kind = "InvalidSpeed"
	KindRouteExists     Kind = "RouteExists"
	KindRouteNotFound   Kind = "RouteNotFound"
	KindDuplicateLink   Kind = "DuplicateLink"
	KindSameInterface   Kind = "SameInterfaceLink"
	KindNotImplemented  Kind = "NotImplemented"
	KindUnknownNode     Kind = "UnknownNode"
	KindUnknownIface    Kind = "UnknownInterface"
	KindDuplexRejected  Kind = "DuplexRejected"
)

// ConfigError is returned by every configuration-mutating call (§7 of the
// spec: configuration errors fail the call immediately with enough context
// to identify the offending field). It always carries a CLI-displayable
// message.
type ConfigError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
}

// New builds a ConfigError for the given kind/field/message.
func New(kind Kind, field, message string) *ConfigError {
	return &ConfigError{Kind: kind, Field: field, Message: message}
}

// NotImplemented builds the sentinel error returned for MSTP/RPVST.
func NotImplemented(feature string) *ConfigError {
	return New(KindNotImplemented, feature, feature+" is not implemented")
}

// Transient runtime conditions. These are never propagated as Go errors up
// through the data plane (they are either silently dropped or answered with
// an ICMP reply per §7) but are exposed so callers that *do* want to observe
// drops for counters/tests can check them by identity.
var (
	ErrLinkDown      = fmt.Errorf("link down")
	ErrInterfaceDown = fmt.Errorf("interface down")
	ErrNoRoute       = fmt.Errorf("no route")
	ErrArpTimeout    = fmt.Errorf("arp resolution timed out")
)
