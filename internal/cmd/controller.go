package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tcshape/internal/command"
	"github.com/ethpandaops/tcshape/internal/config"
	"github.com/ethpandaops/tcshape/internal/firewall"
	"github.com/ethpandaops/tcshape/internal/network"
	"github.com/ethpandaops/tcshape/internal/shaper"
)

// newController wires the host implementations of every collaborator
func newController(cfg *config.Config, log logrus.FieldLogger) (*network.Controller, error) {
	runner := command.NewExecRunner(log)
	patterns := command.DefaultBenignPatterns()

	deps := network.Dependencies{
		Runner:    runner,
		Patterns:  patterns,
		Links:     network.NewNetlinkLookup(log),
		Namespace: cfg.Netns,
	}

	var tbf *shaper.TBF
	if cfg.IPTables {
		marker, err := firewall.NewMarker(log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize iptables (disable with --iptables=false): %w", err)
		}
		deps.Marker = marker
		tbf = shaper.NewTBF(runner, patterns, marker, log)
	} else {
		tbf = shaper.NewTBF(runner, patterns, nil, log)
	}
	deps.Shaper = tbf

	return network.NewController(log, deps), nil
}
