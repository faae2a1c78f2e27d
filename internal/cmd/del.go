package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/tcshape/internal/config"
	"github.com/ethpandaops/tcshape/internal/network"
)

func newDelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "del <device>",
		Short: "Remove traffic control from a network interface",
		Long: `Remove the root and ingress qdiscs, the ifb redirect device and the iptables
marks that tcshape installed for a network interface. Removing from an interface
that was never configured succeeds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDel,
	}

	cmd.Flags().Bool("iptables", true, "also remove the iptables marks installed by tcshape")

	return cmd
}

func runDel(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"iptables": config.KeyIPTables,
	}); err != nil {
		return err
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	controller, err := newController(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}

	report, err := controller.Teardown(cmd.Context(), network.TeardownRequest{
		Device:          cfg.Device,
		FirewallMarking: cfg.IPTables,
	})
	if err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{
		"package":   "cmd.del",
		"interface": cfg.Device,
	})
	for _, step := range report.Steps {
		log.WithField("step", step.Step).WithField("status", step.Status.String()).Debug("Teardown step")
	}
	if !report.Removed() {
		log.Info("No traffic control to remove")
		return nil
	}
	log.Info("Traffic control removed")
	return nil
}
