package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ethpandaops/tcshape/internal/types"
)

// Config keys shared by flags, the config file and TCSHAPE_ environment variables
const (
	KeyLogLevel    = "log_level"
	KeyDevice      = "device"
	KeyDirection   = "direction"
	KeyRate        = "rate"
	KeyDelay       = "delay"
	KeyDelayDistro = "delay_distro"
	KeyLoss        = "loss"
	KeyCorrupt     = "corrupt"
	KeyNetwork     = "network"
	KeySrcNetwork  = "src_network"
	KeyPort        = "port"
	KeyIPTables    = "iptables"
	KeyOverwrite   = "overwrite"
	KeyNetns       = "netns"
)

// Config represents one tcshape invocation
type Config struct {
	// LogLevel specifies the logging level (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level"`
	// Device is the physical network interface to shape
	Device string `mapstructure:"device"`
	// Direction is outgoing or incoming
	Direction string `mapstructure:"direction"`
	// Rate specifies the bandwidth limit (e.g., "100kbps", "1.5Mbps")
	Rate string `mapstructure:"rate"`
	// Delay specifies the latency to add (e.g., "50ms", "50")
	Delay string `mapstructure:"delay"`
	// DelayDistro specifies the latency jitter (e.g., "5ms")
	DelayDistro string `mapstructure:"delay_distro"`
	// Loss specifies the packet loss percentage (e.g., "0.1%", "1")
	Loss string `mapstructure:"loss"`
	// Corrupt specifies the packet corruption percentage
	Corrupt string `mapstructure:"corrupt"`
	// Network restricts shaping to traffic exchanged with this peer network
	Network string `mapstructure:"network"`
	// SrcNetwork restricts shaping to traffic of this local network
	SrcNetwork string `mapstructure:"src_network"`
	// Port restricts shaping to this peer port
	Port string `mapstructure:"port"`
	// IPTables enables firewall marking for filtered flows
	IPTables bool `mapstructure:"iptables"`
	// Overwrite removes existing traffic control before configuring
	Overwrite bool `mapstructure:"overwrite"`
	// Netns is the path of a network namespace to operate in
	Netns string `mapstructure:"netns"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDirection, string(types.DirectionOutgoing))
	v.SetDefault(KeyIPTables, true)
	v.SetDefault(KeyOverwrite, false)
}

// Load unmarshals the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance cannot be nil")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return &config, nil
}

// Validate checks the syntax of every raw value. Bounds are checked by the
// validation package once the config is converted with ToSpec.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.Device == "" {
		return fmt.Errorf("%w: device", types.ErrEmptyParameter)
	}

	if _, err := types.ParseDirection(c.Direction); err != nil {
		return err
	}

	return c.validateNetworkParams()
}

// ToSpec converts the configuration into a traffic control request
func (c *Config) ToSpec() (*types.TrafficSpec, error) {
	spec := types.NewTrafficSpec(c.Device)
	spec.FirewallMarking = c.IPTables
	spec.Network = strings.TrimSpace(c.Network)
	spec.SrcNetwork = strings.TrimSpace(c.SrcNetwork)

	direction, err := types.ParseDirection(c.Direction)
	if err != nil {
		return nil, err
	}
	spec.Direction = direction

	if err := c.parseRate(spec); err != nil {
		return nil, err
	}

	if err := c.parseDurations(spec); err != nil {
		return nil, err
	}

	if err := c.parsePercentages(spec); err != nil {
		return nil, err
	}

	if c.Port != "" {
		port, err := parsePort(c.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to parse port: %w", err)
		}
		spec.Port = &port
	}

	return spec, nil
}

func (c *Config) parseRate(spec *types.TrafficSpec) error {
	if c.Rate == "" {
		return nil
	}

	rate, err := types.ParseRate(c.Rate)
	if err != nil {
		return fmt.Errorf("failed to parse rate: %w", err)
	}
	spec.BandwidthRateKbps = &rate
	return nil
}

func (c *Config) parseDurations(spec *types.TrafficSpec) error {
	if c.Delay != "" {
		delay, err := parseMilliseconds(c.Delay)
		if err != nil {
			return fmt.Errorf("failed to parse delay: %w", err)
		}
		spec.LatencyMs = &delay
	}

	if c.DelayDistro != "" {
		jitter, err := parseMilliseconds(c.DelayDistro)
		if err != nil {
			return fmt.Errorf("failed to parse delay_distro: %w", err)
		}
		spec.LatencyJitterMs = &jitter
	}

	return nil
}

func (c *Config) parsePercentages(spec *types.TrafficSpec) error {
	if c.Loss != "" {
		loss, err := parsePercent(c.Loss)
		if err != nil {
			return fmt.Errorf("failed to parse loss: %w", err)
		}
		spec.PacketLossRatePercent = &loss
	}

	if c.Corrupt != "" {
		corrupt, err := parsePercent(c.Corrupt)
		if err != nil {
			return fmt.Errorf("failed to parse corrupt: %w", err)
		}
		spec.CorruptionRatePercent = &corrupt
	}

	return nil
}
