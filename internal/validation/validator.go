package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethpandaops/tcshape/internal/types"
)

// Parameter bounds
const (
	MinPacketLossRate = 0   // [%]
	MaxPacketLossRate = 100 // [%]

	MinLatencyMs = 0     // [millisecond]
	MaxLatencyMs = 10000 // [millisecond]

	MinCorruptionRate = 0   // [%]
	MaxCorruptionRate = 100 // [%]

	MinPort = 0
	MaxPort = 65535
)

// Validate checks every bound of spec and returns a normalized copy.
// The input spec is never modified.
func Validate(spec *types.TrafficSpec) (*types.TrafficSpec, error) {
	if spec == nil {
		return nil, errors.New("traffic spec cannot be nil")
	}
	if spec.Device == "" {
		return nil, fmt.Errorf("%w: device", types.ErrEmptyParameter)
	}
	if _, err := spec.Direction.NetworkDirection(); err != nil {
		return nil, err
	}

	if err := validateNetemParameters(spec); err != nil {
		return nil, err
	}

	if spec.Port != nil {
		if err := withinMinMax("port", float64(*spec.Port), MinPort, MaxPort); err != nil {
			return nil, err
		}
	}

	normalized := spec.Clone()

	var err error
	if normalized.Network, err = types.SanitizeNetwork(spec.Network); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	if normalized.SrcNetwork, err = types.SanitizeNetwork(spec.SrcNetwork); err != nil {
		return nil, fmt.Errorf("srcNetwork: %w", err)
	}
	if normalized.Network != "" && normalized.SrcNetwork != "" &&
		types.IsIPv6(normalized.Network) != types.IsIPv6(normalized.SrcNetwork) {
		return nil, fmt.Errorf("%w: network %s and srcNetwork %s mix address families",
			types.ErrInvalidNetworkSpec, normalized.Network, normalized.SrcNetwork)
	}

	return normalized, nil
}

// ValidateBandwidthRate fails with ErrEmptyParameter when the rate is absent
// and with ErrParameterOutOfRange when it is not positive.
func ValidateBandwidthRate(spec *types.TrafficSpec) error {
	rate, err := spec.RequireBandwidth()
	if err != nil {
		return err
	}
	if math.IsInf(rate, 1) {
		return &types.RangeError{Field: "bandwidthRateKbps", Bound: math.Inf(1), Value: rate, Upper: true, Exclusive: true}
	}
	// NaN fails the comparison as well
	if !(rate > 0) {
		return &types.RangeError{Field: "bandwidthRateKbps", Bound: 0, Value: rate, Exclusive: true}
	}
	return nil
}

func validateNetemParameters(spec *types.TrafficSpec) error {
	if err := ValidateBandwidthRate(spec); err != nil && !errors.Is(err, types.ErrEmptyParameter) {
		return err
	}

	checks := []struct {
		field    string
		value    *float64
		min, max float64
	}{
		{"latencyMs", spec.LatencyMs, MinLatencyMs, MaxLatencyMs},
		{"latencyJitterMs", spec.LatencyJitterMs, MinLatencyMs, MaxLatencyMs},
		{"packetLossRatePercent", spec.PacketLossRatePercent, MinPacketLossRate, MaxPacketLossRate},
		{"corruptionRatePercent", spec.CorruptionRatePercent, MinCorruptionRate, MaxCorruptionRate},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if err := withinMinMax(c.field, *c.value, c.min, c.max); err != nil {
			return err
		}
	}

	// Filter-only configurations are rejected as well.
	effective := []*float64{
		spec.BandwidthRateKbps,
		spec.LatencyMs,
		spec.PacketLossRatePercent,
		spec.CorruptionRatePercent,
	}
	for _, v := range effective {
		if v != nil && *v != 0 {
			return nil
		}
	}
	return types.ErrNoEffectiveParameter
}

func withinMinMax(field string, value, minValue, maxValue float64) error {
	if value > maxValue || math.IsNaN(value) {
		return &types.RangeError{Field: field, Bound: maxValue, Value: value, Upper: true}
	}
	if value < minValue {
		return &types.RangeError{Field: field, Bound: minValue, Value: value}
	}
	return nil
}
