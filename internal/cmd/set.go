package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/tcshape/internal/config"
	"github.com/ethpandaops/tcshape/internal/dns"
	"github.com/ethpandaops/tcshape/internal/network"
	"github.com/ethpandaops/tcshape/internal/types"
	"github.com/ethpandaops/tcshape/internal/validation"
)

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <device>",
		Short: "Apply traffic control to a network interface",
		Long: `Apply a bandwidth limit, latency, packet loss or corruption to the outgoing or
incoming traffic of a network interface, optionally restricted to a network or port.`,
		Example: `  tcshape set eth0 --rate 1Mbps
  tcshape set eth0 --direction incoming --delay 50ms --loss 0.5%
  tcshape set eth0 --delay 100ms --network 192.168.0.0/24 --port 8080`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSet,
	}

	flags := cmd.Flags()
	flags.String("direction", "outgoing", "traffic direction to shape (outgoing, incoming)")
	flags.String("rate", "", "bandwidth rate limit (e.g., 100kbps, 1.5Mbps, 1Gbps)")
	flags.String("delay", "", "latency to add, milliseconds or a duration (e.g., 50ms)")
	flags.String("delay-distro", "", "latency jitter, milliseconds or a duration")
	flags.String("loss", "", "packet loss rate in percent (e.g., 0.1%)")
	flags.String("corrupt", "", "packet corruption rate in percent")
	flags.String("network", "", "peer network to shape traffic with (CIDR, address or host name)")
	flags.String("src-network", "", "local network to shape traffic of (CIDR, address or host name)")
	flags.String("port", "", "peer port to shape traffic with")
	flags.Bool("iptables", true, "mark filtered outgoing flows with iptables instead of u32 matches")
	flags.Bool("overwrite", false, "remove existing traffic control of the device first")

	return cmd
}

func runSet(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"direction":    config.KeyDirection,
		"rate":         config.KeyRate,
		"delay":        config.KeyDelay,
		"delay-distro": config.KeyDelayDistro,
		"loss":         config.KeyLoss,
		"corrupt":      config.KeyCorrupt,
		"network":      config.KeyNetwork,
		"src-network":  config.KeySrcNetwork,
		"port":         config.KeyPort,
		"iptables":     config.KeyIPTables,
		"overwrite":    config.KeyOverwrite,
	}); err != nil {
		return err
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	spec, err := cfg.ToSpec()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	log := logrus.WithField("package", "cmd.set")

	if err := dns.NewResolver(logrus.StandardLogger()).ResolveSpec(ctx, spec); err != nil {
		return err
	}

	controller, err := newController(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}

	if err := applySpec(ctx, controller, spec, cfg.Overwrite, log); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"interface": spec.Device,
		"direction": spec.Direction,
	}).Info("Traffic control applied")
	return nil
}

// trafficController is the part of network.Controller set drives
type trafficController interface {
	Configure(ctx context.Context, spec *types.TrafficSpec) error
	Teardown(ctx context.Context, req network.TeardownRequest) (*network.TeardownReport, error)
}

// applySpec validates spec before anything touches the device, then removes
// existing traffic control when overwrite is set and configures spec.
func applySpec(ctx context.Context, controller trafficController, spec *types.TrafficSpec, overwrite bool, log logrus.FieldLogger) error {
	if _, err := validation.Validate(spec); err != nil {
		return fmt.Errorf("invalid traffic control parameters: %w", err)
	}

	if overwrite {
		report, err := controller.Teardown(ctx, network.TeardownRequest{
			Device:          spec.Device,
			FirewallMarking: spec.FirewallMarking,
		})
		if err != nil {
			return fmt.Errorf("failed to remove existing traffic control: %w", err)
		}
		log.WithField("removed", report.Removed()).Debug("Removed existing traffic control")
	}

	return controller.Configure(ctx, spec)
}
