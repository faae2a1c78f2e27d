// Package shaper builds the qdisc hierarchy that applies bandwidth, latency,
// loss and corruption limits below a qdisc major id.
//
// The layout on the target device is
//
//	<base>: prio
//	└── <base>:<band> → <netem>: netem (delay/loss/corrupt)
//	                    └── <netem>:<band> → 20: tbf (rate)
//
// where band is 1 for outgoing and 3 for incoming traffic and netem is the
// direction id of the physical device.
package shaper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tcshape/internal/command"
	"github.com/ethpandaops/tcshape/internal/firewall"
	"github.com/ethpandaops/tcshape/internal/qdisc"
	"github.com/ethpandaops/tcshape/internal/types"
	"github.com/ethpandaops/tcshape/internal/validation"
)

const (
	outgoingBand = 1
	incomingBand = 3

	tbfHandle      = "20:"
	tbfLimit       = "10000"
	minBufferBytes = 1600

	catchAllPrio = "2"
	filterPrio   = "1"
)

// Marker installs the mangle rule a fw filter classifies on
type Marker interface {
	AddMark(ctx context.Context, rule firewall.Rule) (uint32, error)
}

// TBF shapes with netem for emulation and a token bucket filter for rate
type TBF struct {
	exec   *command.Executor
	marker Marker
	log    logrus.FieldLogger
}

// NewTBF creates a TBF shaper. marker may be nil, in which case u32 filters are used.
func NewTBF(runner command.Runner, patterns command.BenignPatterns, marker Marker, log logrus.FieldLogger) *TBF {
	return &TBF{
		exec:   command.NewExecutor(runner, patterns, log),
		marker: marker,
		log:    log.WithField("package", "shaper.tbf"),
	}
}

// Apply installs the hierarchy for spec on target below base. spec must be validated.
func (t *TBF) Apply(ctx context.Context, target string, base qdisc.ID, spec *types.TrafficSpec) error {
	netemID, err := qdisc.IdentifierFor(spec.Device, spec.Direction)
	if err != nil {
		return err
	}
	band, err := bandFor(spec.Direction)
	if err != nil {
		return err
	}

	log := t.log.WithFields(logrus.Fields{
		"target":   target,
		"qdisc_id": base.Hex(),
		"netem_id": netemID.Hex(),
	})
	log.Info("Applying TBF shaping")
	if !spec.HasNetem() {
		log.Debug("No netem parameter set, installing a pass-through netem")
	}

	commands := [][]string{
		t.rootQdisc(target, base),
		t.netemQdisc(target, base, netemID, band, spec),
	}
	if rate := t.rateQdisc(target, netemID, band, spec); rate != nil {
		commands = append(commands, rate)
	}

	for _, cmd := range commands {
		if _, err := t.exec.Run(ctx, command.KindCreate, cmd...); err != nil {
			return err
		}
	}

	filter, err := t.flowFilter(ctx, target, base, band, spec)
	if err != nil {
		return err
	}
	if _, err := t.exec.Run(ctx, command.KindCreate, filter...); err != nil {
		return err
	}

	log.Info("Successfully applied TBF shaping")
	return nil
}

func (t *TBF) rootQdisc(target string, base qdisc.ID) []string {
	return []string{"tc", "qdisc", "add", "dev", target, "root", "handle", base.Handle(), "prio"}
}

func (t *TBF) netemQdisc(target string, base, netemID qdisc.ID, band uint32, spec *types.TrafficSpec) []string {
	cmd := []string{
		"tc", "qdisc", "add", "dev", target,
		"parent", base.Class(band), "handle", netemID.Handle(), "netem",
	}

	if positive(spec.LatencyMs) {
		cmd = append(cmd, "delay", formatMs(*spec.LatencyMs))
		if positive(spec.LatencyJitterMs) {
			cmd = append(cmd, formatMs(*spec.LatencyJitterMs), "distribution", "normal")
		}
	}
	if positive(spec.PacketLossRatePercent) {
		cmd = append(cmd, "loss", formatPercent(*spec.PacketLossRatePercent))
	}
	if positive(spec.CorruptionRatePercent) {
		cmd = append(cmd, "corrupt", formatPercent(*spec.CorruptionRatePercent))
	}

	return cmd
}

// rateQdisc returns nil when no bandwidth rate is configured
func (t *TBF) rateQdisc(target string, netemID qdisc.ID, band uint32, spec *types.TrafficSpec) []string {
	if err := validation.ValidateBandwidthRate(spec); err != nil {
		if !errors.Is(err, types.ErrEmptyParameter) {
			t.log.WithError(err).Warn("Ignoring invalid bandwidth rate")
		}
		return nil
	}

	kbps := *spec.BandwidthRateKbps
	buffer := int(math.Max(kbps, minBufferBytes)) // [byte]

	return []string{
		"tc", "qdisc", "add", "dev", target,
		"parent", netemID.Class(band), "handle", tbfHandle, "tbf",
		"rate", types.FormatKbps(kbps),
		"buffer", strconv.Itoa(buffer),
		"limit", tbfLimit,
	}
}

// flowFilter classifies traffic into the shaped band. Without network or port
// every packet is shaped. Firewall marks are only used for outgoing IPv4 traffic,
// since ingress qdiscs run before netfilter.
func (t *TBF) flowFilter(ctx context.Context, target string, base qdisc.ID, band uint32, spec *types.TrafficSpec) ([]string, error) {
	protocol, match, anywhere := "ip", "ip", "0.0.0.0/0"
	if types.IsIPv6(spec.Network) || types.IsIPv6(spec.SrcNetwork) {
		protocol, match, anywhere = "ipv6", "ip6", "::/0"
	}

	peer, err := spec.Direction.NetworkDirection()
	if err != nil {
		return nil, err
	}
	prefix := []string{"tc", "filter", "add", "dev", target, "protocol", protocol, "parent", base.Handle()}
	flowid := []string{"flowid", base.Class(band)}

	if !spec.HasFlowFilter() {
		cmd := append(prefix, "prio", catchAllPrio, "u32", "match", match, peer, anywhere)
		return append(cmd, flowid...), nil
	}

	if spec.FirewallMarking && t.marker != nil && spec.Direction == types.DirectionOutgoing && protocol == "ip" {
		mark, err := t.marker.AddMark(ctx, firewall.Rule{
			Direction:  spec.Direction,
			Network:    spec.Network,
			SrcNetwork: spec.SrcNetwork,
			Port:       spec.Port,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add firewall mark: %w", err)
		}
		cmd := append(prefix, "prio", filterPrio, "handle", strconv.FormatUint(uint64(mark), 10), "fw")
		return append(cmd, flowid...), nil
	}

	local, err := spec.Direction.LocalDirection()
	if err != nil {
		return nil, err
	}
	port, err := spec.Direction.PortDirection()
	if err != nil {
		return nil, err
	}

	cmd := append(prefix, "prio", filterPrio, "u32")
	if spec.Network != "" {
		cmd = append(cmd, "match", match, peer, spec.Network)
	}
	if spec.SrcNetwork != "" {
		cmd = append(cmd, "match", match, local, spec.SrcNetwork)
	}
	if spec.Port != nil {
		cmd = append(cmd, "match", match, port, strconv.Itoa(*spec.Port), "0xffff")
	}
	return append(cmd, flowid...), nil
}

func bandFor(direction types.Direction) (uint32, error) {
	switch direction {
	case types.DirectionOutgoing:
		return outgoingBand, nil
	case types.DirectionIncoming:
		return incomingBand, nil
	default:
		return 0, fmt.Errorf("%w: %q", types.ErrUnknownDirection, string(direction))
	}
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "ms"
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
