package types

import (
	"fmt"
	"strings"
)

// Direction selects which traffic of a device is shaped
type Direction string

const (
	// DirectionOutgoing shapes egress traffic directly on the physical device
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming shapes ingress traffic redirected onto an ifb device
	DirectionIncoming Direction = "incoming"
)

// ParseDirection parses a direction name, case-insensitive. Empty means outgoing.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionOutgoing:
		return DirectionOutgoing, nil
	case DirectionIncoming:
		return DirectionIncoming, nil
	default:
		return "", fmt.Errorf("%w: %q (expected %s or %s)", ErrUnknownDirection, s, DirectionOutgoing, DirectionIncoming)
	}
}

// NetworkDirection returns the u32/iptables address selector for the peer side of the flow
func (d Direction) NetworkDirection() (string, error) {
	switch d {
	case DirectionOutgoing:
		return "dst", nil
	case DirectionIncoming:
		return "src", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, string(d))
	}
}

// LocalDirection returns the selector for the local side of the flow, the
// opposite of NetworkDirection
func (d Direction) LocalDirection() (string, error) {
	switch d {
	case DirectionOutgoing:
		return "src", nil
	case DirectionIncoming:
		return "dst", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, string(d))
	}
}

// PortDirection returns the u32 port selector for the peer side of the flow
func (d Direction) PortDirection() (string, error) {
	switch d {
	case DirectionOutgoing:
		return "dport", nil
	case DirectionIncoming:
		return "sport", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, string(d))
	}
}

// TrafficSpec is a single traffic control request for one device and direction.
// nil pointer fields are absent parameters.
type TrafficSpec struct {
	Device    string
	Direction Direction

	BandwidthRateKbps     *float64
	LatencyMs             *float64
	LatencyJitterMs       *float64
	PacketLossRatePercent *float64
	CorruptionRatePercent *float64

	// Network is the peer side of the flow, SrcNetwork the local side
	Network    string
	SrcNetwork string
	// Port is the peer side port
	Port *int

	FirewallMarking bool
}

// NewTrafficSpec returns a spec for device with the default direction and firewall marking enabled
func NewTrafficSpec(device string) *TrafficSpec {
	return &TrafficSpec{
		Device:          device,
		Direction:       DirectionOutgoing,
		FirewallMarking: true,
	}
}

// RequireBandwidth returns the bandwidth rate or ErrEmptyParameter when it is absent
func (s *TrafficSpec) RequireBandwidth() (float64, error) {
	if s.BandwidthRateKbps == nil {
		return 0, fmt.Errorf("%w: bandwidthRateKbps", ErrEmptyParameter)
	}
	return *s.BandwidthRateKbps, nil
}

// HasFlowFilter reports whether the spec narrows shaping to a subset of flows
func (s *TrafficSpec) HasFlowFilter() bool {
	return s.Network != "" || s.SrcNetwork != "" || s.Port != nil
}

// HasNetem reports whether any netem parameter is set to a non-zero value
func (s *TrafficSpec) HasNetem() bool {
	return nonZero(s.LatencyMs) || nonZero(s.PacketLossRatePercent) || nonZero(s.CorruptionRatePercent)
}

// Clone returns a deep copy of the spec
func (s *TrafficSpec) Clone() *TrafficSpec {
	c := *s
	c.BandwidthRateKbps = cloneFloat(s.BandwidthRateKbps)
	c.LatencyMs = cloneFloat(s.LatencyMs)
	c.LatencyJitterMs = cloneFloat(s.LatencyJitterMs)
	c.PacketLossRatePercent = cloneFloat(s.PacketLossRatePercent)
	c.CorruptionRatePercent = cloneFloat(s.CorruptionRatePercent)
	if s.Port != nil {
		p := *s.Port
		c.Port = &p
	}
	return &c
}

// Float returns a pointer to v, handy for building specs
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}

func nonZero(v *float64) bool {
	return v != nil && *v != 0
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
