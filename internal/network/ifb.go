package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ethpandaops/tcshape/internal/command"
	"github.com/ethpandaops/tcshape/internal/qdisc"
	"github.com/ethpandaops/tcshape/internal/types"
)

// ErrRedirectTeardownFailed is returned when every ifb teardown command failed
var ErrRedirectTeardownFailed = errors.New("all redirect device teardown commands failed")

// RedirectDeviceManager creates and removes the ifb device that ingress traffic
// of a physical device is mirrored onto, so it can be shaped as egress.
type RedirectDeviceManager struct {
	exec  *command.Executor
	links LinkLookup
	log   logrus.FieldLogger
}

// NewRedirectDeviceManager creates a new ifb manager
func NewRedirectDeviceManager(exec *command.Executor, links LinkLookup, log logrus.FieldLogger) *RedirectDeviceManager {
	return &RedirectDeviceManager{
		exec:  exec,
		links: links,
		log:   log.WithField("package", "network.ifb"),
	}
}

type step struct {
	kind command.Kind
	args []string
}

// Setup prepares the ifb device of device for incoming shaping. It does nothing
// for outgoing traffic. It stops at the first step that fails with a non-benign message.
func (m *RedirectDeviceManager) Setup(ctx context.Context, device string, direction types.Direction) error {
	switch direction {
	case types.DirectionOutgoing:
		return nil
	case types.DirectionIncoming:
	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownDirection, string(direction))
	}

	ifb := qdisc.RedirectDeviceFor(device)
	base := qdisc.BaseID(device)

	m.log.WithFields(logrus.Fields{
		"interface":     device,
		"ifb_interface": ifb,
	}).Info("Setting up IFB redirection for incoming traffic")

	steps := []step{
		{command.KindPlain, []string{"modprobe", "ifb"}},
		{command.KindCreate, []string{"ip", "link", "add", ifb, "type", "ifb"}},
		{command.KindPlain, []string{"ip", "link", "set", "dev", ifb, "up"}},
		{command.KindCreate, []string{"tc", "qdisc", "add", "dev", device, "ingress"}},
		{command.KindCreate, []string{
			"tc", "filter", "add", "dev", device, "parent", "ffff:", "protocol", "ip", "u32",
			"match", "u32", "0", "0", "flowid", base.Handle(),
			"action", "mirred", "egress", "redirect", "dev", ifb,
		}},
	}

	for _, s := range steps {
		if _, err := m.exec.Run(ctx, s.kind, s.args...); err != nil {
			return fmt.Errorf("failed to set up redirect device %s: %w", ifb, err)
		}
	}

	return nil
}

// Teardown removes the ifb device paired with device. A missing ifb device is
// not an error. removed reports whether any command actually changed state.
func (m *RedirectDeviceManager) Teardown(ctx context.Context, device string) (bool, error) {
	ifb := qdisc.RedirectDeviceFor(device)
	log := m.log.WithFields(logrus.Fields{
		"interface":     device,
		"ifb_interface": ifb,
	})

	exists, err := m.links.LinkExists(ifb)
	if err != nil {
		return false, err
	}
	if !exists {
		log.Debug("IFB interface does not exist, nothing to remove")
		return false, nil
	}

	steps := []step{
		{command.KindDelete, []string{"tc", "qdisc", "del", "dev", ifb, "root"}},
		{command.KindPlain, []string{"ip", "link", "set", "dev", ifb, "down"}},
		{command.KindDelete, []string{"ip", "link", "delete", ifb, "type", "ifb"}},
	}

	var (
		errs    error
		failed  int
		removed bool
	)
	for _, s := range steps {
		outcome, err := m.exec.Run(ctx, s.kind, s.args...)
		switch outcome {
		case command.OutcomeApplied:
			removed = true
		case command.OutcomeFailed:
			failed++
			errs = multierr.Append(errs, err)
		}
	}

	if failed == len(steps) {
		return false, fmt.Errorf("%w: %s: %w", ErrRedirectTeardownFailed, ifb, errs)
	}
	if errs != nil {
		log.WithError(errs).Warn("Some IFB teardown commands failed")
	}

	log.WithField("removed", removed).Debug("Removed IFB interface")
	return removed, nil
}
