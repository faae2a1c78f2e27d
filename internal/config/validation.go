package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/tcshape/internal/types"
)

func (c *Config) validateNetworkParams() error {
	if c.Rate != "" {
		if _, err := types.ParseRate(c.Rate); err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}
	}

	if err := validateDurationString(KeyDelay, c.Delay); err != nil {
		return err
	}
	if err := validateDurationString(KeyDelayDistro, c.DelayDistro); err != nil {
		return err
	}

	if err := validatePercentString(KeyLoss, c.Loss); err != nil {
		return err
	}
	if err := validatePercentString(KeyCorrupt, c.Corrupt); err != nil {
		return err
	}

	if c.Port != "" {
		if _, err := parsePort(c.Port); err != nil {
			return fmt.Errorf("invalid port: %w", err)
		}
	}

	return nil
}

// validateDurationString validates a latency string such as "50ms", "1s" or "50"
func validateDurationString(key, value string) error {
	if value == "" {
		return nil
	}

	if _, err := parseMilliseconds(value); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	return nil
}

// validatePercentString validates a percentage string such as "0.1%" or "1"
func validatePercentString(key, value string) error {
	if value == "" {
		return nil
	}

	if _, err := parsePercent(value); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	return nil
}

// parseMilliseconds accepts a bare number of milliseconds or a Go duration
func parseMilliseconds(s string) (float64, error) {
	s = strings.TrimSpace(s)

	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return ms, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format '%s': %w", s, err)
	}

	return float64(d) / float64(time.Millisecond), nil
}

func parsePercent(s string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "%")

	v, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage format '%s': %w", s, err)
	}

	return v, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port format '%s': %w", s, err)
	}

	return port, nil
}
