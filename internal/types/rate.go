package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Regular expression for parsing human readable rates such as "100kbps" or "1.5 Mbit"
	rateRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(bps|bit|kbps|kbit|k|mbps|mbit|m|gbps|gbit|g)$`)

	// kilobits per unit, kilo is 1000
	rateUnitKbps = map[string]float64{
		"bps":  0.001,
		"bit":  0.001,
		"kbps": 1,
		"kbit": 1,
		"k":    1,
		"mbps": 1000,
		"mbit": 1000,
		"m":    1000,
		"gbps": 1000 * 1000,
		"gbit": 1000 * 1000,
		"g":    1000 * 1000,
	}
)

// ParseRate parses a rate string like "100Mbps" into kilobits per second
func ParseRate(s string) (float64, error) {
	if s == "" {
		return 0, ErrInvalidRate
	}

	// Normalize string by removing spaces and converting to lowercase
	normalized := strings.ToLower(strings.ReplaceAll(s, " ", ""))

	matches := rateRegex.FindStringSubmatch(normalized)
	if len(matches) != 3 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRate, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid number %s", ErrInvalidRate, matches[1])
	}

	return value * rateUnitKbps[matches[2]], nil
}

// FormatKbps renders a kilobit rate the way tc accepts it
func FormatKbps(kbps float64) string {
	return strconv.FormatFloat(kbps, 'f', -1, 64) + "kbit"
}
