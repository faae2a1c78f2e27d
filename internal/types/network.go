package types

import (
	"fmt"
	"net"
	"strings"
)

// AnywhereNetwork is accepted as an alias for "no network restriction"
const AnywhereNetwork = "anywhere"

// ParseCIDR parses and validates a CIDR string
func ParseCIDR(cidr string) (*net.IPNet, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid CIDR format '%s': %v", ErrInvalidNetworkSpec, cidr, err)
	}
	return ipNet, nil
}

// ValidateCIDRRange validates a CIDR range string
func ValidateCIDRRange(cidr string) error {
	cidr = strings.TrimSpace(cidr)
	if cidr == "" {
		return fmt.Errorf("%w: CIDR range cannot be empty", ErrInvalidNetworkSpec)
	}

	_, err := ParseCIDR(cidr)
	return err
}

// SanitizeNetwork normalizes a network string: host bits are cleared and a bare
// address becomes a host route. Empty or "anywhere" yields an empty string.
func SanitizeNetwork(network string) (string, error) {
	network = strings.TrimSpace(network)
	if network == "" || strings.EqualFold(network, AnywhereNetwork) {
		return "", nil
	}

	if !strings.Contains(network, "/") {
		ip := net.ParseIP(network)
		if ip == nil {
			return "", fmt.Errorf("%w: invalid address '%s'", ErrInvalidNetworkSpec, network)
		}
		return hostCIDR(ip), nil
	}

	ipNet, err := ParseCIDR(network)
	if err != nil {
		return "", err
	}
	return ipNet.String(), nil
}

// IsIPv6 reports whether a sanitized network is an IPv6 range
func IsIPv6(network string) bool {
	ipNet, err := ParseCIDR(network)
	if err != nil {
		return false
	}
	return ipNet.IP.To4() == nil
}

// hostCIDR converts an IP address to a single-host CIDR range
func hostCIDR(ip net.IP) string {
	if ip.To4() != nil {
		return ip.String() + "/32"
	}
	return ip.String() + "/128"
}

