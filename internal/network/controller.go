package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ethpandaops/tcshape/internal/command"
	"github.com/ethpandaops/tcshape/internal/qdisc"
	"github.com/ethpandaops/tcshape/internal/types"
	"github.com/ethpandaops/tcshape/internal/validation"
)

// ErrTeardownFailed is returned when every teardown step failed outright
var ErrTeardownFailed = errors.New("traffic control teardown failed")

// Shaper builds the qdisc hierarchy for a validated spec on target, rooted at base
type Shaper interface {
	Apply(ctx context.Context, target string, base qdisc.ID, spec *types.TrafficSpec) error
}

// FirewallMarker removes the flow marking rules installed for shaping
type FirewallMarker interface {
	Clear(ctx context.Context) (bool, error)
}

// Dependencies are the collaborators of a Controller
type Dependencies struct {
	Runner   command.Runner
	Patterns command.BenignPatterns
	Links    LinkLookup
	Shaper   Shaper
	Marker   FirewallMarker
	// Namespace is an optional network namespace path all operations run in
	Namespace string
}

// Controller configures and tears down traffic control for one device at a time.
// Calls are serialized; the kernel's qdisc and link tables are shared state.
type Controller struct {
	exec      *command.Executor
	links     LinkLookup
	redirect  *RedirectDeviceManager
	shaper    Shaper
	marker    FirewallMarker
	netns     *NetnsManager
	namespace string
	log       logrus.FieldLogger
	mu        sync.Mutex
}

// NewController creates a new traffic control orchestrator
func NewController(log logrus.FieldLogger, deps Dependencies) *Controller {
	if log == nil {
		log = logrus.New()
	}

	logger := log.WithField("package", "network.controller")
	exec := command.NewExecutor(deps.Runner, deps.Patterns, log)

	return &Controller{
		exec:      exec,
		links:     deps.Links,
		redirect:  NewRedirectDeviceManager(exec, deps.Links, log),
		shaper:    deps.Shaper,
		marker:    deps.Marker,
		netns:     NewNetnsManager(log),
		namespace: deps.Namespace,
		log:       logger,
	}
}

// Configure validates spec and applies it. Validation failures are returned before
// any command runs. Steps already applied are left in place when a later one fails;
// Teardown is the recovery path.
func (c *Controller) Configure(ctx context.Context, spec *types.TrafficSpec) error {
	validated, err := validation.Validate(spec)
	if err != nil {
		return fmt.Errorf("invalid traffic control parameters: %w", err)
	}

	target, err := qdisc.TargetDevice(validated)
	if err != nil {
		return err
	}
	base := qdisc.BaseID(validated.Device)

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{
		"interface": validated.Device,
		"direction": validated.Direction,
		"target":    target,
		"qdisc_id":  base.Hex(),
		"namespace": c.namespace,
	})
	log.Info("Applying traffic control")

	err = c.netns.ExecuteInNamespace(c.namespace, func() error {
		if err := RequireInterface(c.links, validated.Device); err != nil {
			return err
		}

		if err := c.redirect.Setup(ctx, validated.Device, validated.Direction); err != nil {
			return err
		}

		if err := c.shaper.Apply(ctx, target, base, validated); err != nil {
			return fmt.Errorf("failed to apply shaping on %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Successfully applied traffic control")
	return nil
}

// TeardownRequest names the device to revert and whether firewall marks are cleared
type TeardownRequest struct {
	Device          string
	FirewallMarking bool
}

// StepStatus is the result of one teardown step
type StepStatus int

const (
	// StepRemoved means the step removed state
	StepRemoved StepStatus = iota
	// StepNothingToRemove means the state was already absent
	StepNothingToRemove
	// StepFailed means the step failed with a non-benign error
	StepFailed
	// StepSkipped means the step was not attempted
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepRemoved:
		return "removed"
	case StepNothingToRemove:
		return "nothing-to-remove"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepReport is the outcome of a single teardown step
type StepReport struct {
	Step   string
	Status StepStatus
	Err    error
}

// TeardownReport collects the outcome of every teardown step in order
type TeardownReport struct {
	Device string
	Steps  []StepReport
}

// Removed reports whether any step actually removed state
func (r *TeardownReport) Removed() bool {
	for _, s := range r.Steps {
		if s.Status == StepRemoved {
			return true
		}
	}
	return false
}

// Failed reports whether every attempted step failed outright
func (r *TeardownReport) Failed() bool {
	attempted := 0
	for _, s := range r.Steps {
		switch s.Status {
		case StepSkipped:
			continue
		case StepFailed:
			attempted++
		default:
			return false
		}
	}
	return attempted > 0
}

// Err combines the errors of all failed steps
func (r *TeardownReport) Err() error {
	var errs error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Step, s.Err))
		}
	}
	return errs
}

func (r *TeardownReport) add(step string, status StepStatus, err error) {
	r.Steps = append(r.Steps, StepReport{Step: step, Status: status, Err: err})
}

// Teardown reverts all traffic control of a device: root qdisc, ingress qdisc,
// ifb device and firewall marks, in that order. Every step is attempted even when
// an earlier one fails. An error is returned only when every attempted step failed
// or the device does not exist.
func (c *Controller) Teardown(ctx context.Context, req TeardownRequest) (*TeardownReport, error) {
	if req.Device == "" {
		return nil, fmt.Errorf("%w: device", types.ErrEmptyParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{
		"interface": req.Device,
		"namespace": c.namespace,
	})
	log.Info("Removing traffic control")

	report := &TeardownReport{Device: req.Device}

	err := c.netns.ExecuteInNamespace(c.namespace, func() error {
		if err := RequireInterface(c.links, req.Device); err != nil {
			return err
		}

		c.deleteQdisc(ctx, report, "root-qdisc", "tc", "qdisc", "del", "dev", req.Device, "root")
		c.deleteQdisc(ctx, report, "ingress-qdisc", "tc", "qdisc", "del", "dev", req.Device, "ingress")

		removed, err := c.redirect.Teardown(ctx, req.Device)
		report.add("redirect-device", statusFor(removed, err), err)

		if !req.FirewallMarking || c.marker == nil {
			report.add("firewall-marks", StepSkipped, nil)
			return nil
		}
		removed, err = c.marker.Clear(ctx)
		report.add("firewall-marks", statusFor(removed, err), err)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, s := range report.Steps {
		if s.Status == StepFailed {
			log.WithError(s.Err).WithField("step", s.Step).Warn("Teardown step failed")
		}
	}

	if report.Failed() {
		return report, fmt.Errorf("%w for %s: %w", ErrTeardownFailed, req.Device, report.Err())
	}

	log.WithField("removed", report.Removed()).Info("Removed traffic control")
	return report, nil
}

func (c *Controller) deleteQdisc(ctx context.Context, report *TeardownReport, step string, args ...string) {
	outcome, err := c.exec.Run(ctx, command.KindDelete, args...)
	switch outcome {
	case command.OutcomeApplied:
		report.add(step, StepRemoved, nil)
	case command.OutcomeBenign:
		report.add(step, StepNothingToRemove, nil)
	default:
		report.add(step, StepFailed, err)
	}
}

func statusFor(removed bool, err error) StepStatus {
	switch {
	case err != nil:
		return StepFailed
	case removed:
		return StepRemoved
	default:
		return StepNothingToRemove
	}
}
