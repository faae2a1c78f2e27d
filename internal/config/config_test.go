package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tcshape/internal/types"
)

func loadYAML(t *testing.T, doc string) *Config {
	t.Helper()

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(doc)))

	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg := loadYAML(t, "device: eth0\n")

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "outgoing", cfg.Direction)
	assert.True(t, cfg.IPTables)
	assert.False(t, cfg.Overwrite)
	require.NoError(t, cfg.Validate())
}

func TestLoadAndConvert(t *testing.T) {
	t.Parallel()

	cfg := loadYAML(t, `
log_level: debug
device: eth0
direction: incoming
rate: 1.5Mbps
delay: 100ms
delay_distro: "5"
loss: 0.5%
corrupt: "1"
network: 192.168.1.10
src_network: 10.0.0.0/8
port: 8080
iptables: false
`)
	require.NoError(t, cfg.Validate())

	spec, err := cfg.ToSpec()
	require.NoError(t, err)

	assert.Equal(t, "eth0", spec.Device)
	assert.Equal(t, types.DirectionIncoming, spec.Direction)
	assert.InDelta(t, 1500.0, *spec.BandwidthRateKbps, 1e-9)
	assert.InDelta(t, 100.0, *spec.LatencyMs, 1e-9)
	assert.InDelta(t, 5.0, *spec.LatencyJitterMs, 1e-9)
	assert.InDelta(t, 0.5, *spec.PacketLossRatePercent, 1e-9)
	assert.InDelta(t, 1.0, *spec.CorruptionRatePercent, 1e-9)
	assert.Equal(t, "192.168.1.10", spec.Network)
	assert.Equal(t, "10.0.0.0/8", spec.SrcNetwork)
	require.NotNil(t, spec.Port)
	assert.Equal(t, 8080, *spec.Port)
	assert.False(t, spec.FirewallMarking)
}

func TestToSpecLeavesAbsentParametersNil(t *testing.T) {
	t.Parallel()

	cfg := &Config{LogLevel: "info", Device: "eth0", IPTables: true, Delay: "1s"}

	spec, err := cfg.ToSpec()
	require.NoError(t, err)

	assert.Equal(t, types.DirectionOutgoing, spec.Direction)
	assert.InDelta(t, 1000.0, *spec.LatencyMs, 1e-9)
	assert.Nil(t, spec.BandwidthRateKbps)
	assert.Nil(t, spec.LatencyJitterMs)
	assert.Nil(t, spec.PacketLossRatePercent)
	assert.Nil(t, spec.CorruptionRatePercent)
	assert.Nil(t, spec.Port)
	assert.True(t, spec.FirewallMarking)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{LogLevel: "info", Device: "eth0", Direction: "outgoing"}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		errText string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, errText: "invalid log level"},
		{name: "no device", mutate: func(c *Config) { c.Device = "" }, wantErr: types.ErrEmptyParameter},
		{name: "bad direction", mutate: func(c *Config) { c.Direction = "sideways" }, wantErr: types.ErrUnknownDirection},
		{name: "bad rate", mutate: func(c *Config) { c.Rate = "fast" }, wantErr: types.ErrInvalidRate},
		{name: "bad delay", mutate: func(c *Config) { c.Delay = "soon" }, errText: "invalid delay"},
		{name: "bad jitter", mutate: func(c *Config) { c.DelayDistro = "5 parsecs" }, errText: "invalid delay_distro"},
		{name: "bad loss", mutate: func(c *Config) { c.Loss = "lots%" }, errText: "invalid loss"},
		{name: "bad corrupt", mutate: func(c *Config) { c.Corrupt = "x" }, errText: "invalid corrupt"},
		{name: "bad port", mutate: func(c *Config) { c.Port = "http" }, errText: "invalid port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(c)
			err := c.Validate()

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				assert.ErrorContains(t, err, tt.errText)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMilliseconds(t *testing.T) {
	t.Parallel()

	tests := map[string]float64{
		"50":    50,
		"50ms":  50,
		"1.5s":  1500,
		"250us": 0.25,
		" 10 ":  10,
	}
	for in, want := range tests {
		got, err := parseMilliseconds(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
}
