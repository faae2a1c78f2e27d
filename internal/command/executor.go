package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Outcome classifies a finished command
type Outcome int

const (
	// OutcomeApplied means the command succeeded and changed state
	OutcomeApplied Outcome = iota
	// OutcomeBenign means the command failed because the state was already in place
	OutcomeBenign
	// OutcomeFailed means the command failed for another reason
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeBenign:
		return "benign"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Error reports a command that failed with a non-benign message
type Error struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("command '%s' failed with exit code %d: %s",
		strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// Executor runs commands and classifies their outcome with a BenignPatterns table
type Executor struct {
	runner   Runner
	patterns BenignPatterns
	log      logrus.FieldLogger
}

// NewExecutor creates an Executor. A nil patterns table uses DefaultBenignPatterns.
func NewExecutor(runner Runner, patterns BenignPatterns, log logrus.FieldLogger) *Executor {
	if patterns == nil {
		patterns = DefaultBenignPatterns()
	}
	return &Executor{
		runner:   runner,
		patterns: patterns,
		log:      log.WithField("package", "command.executor"),
	}
}

// Run executes args and classifies the result for kind. The returned error is
// non-nil only for OutcomeFailed.
func (e *Executor) Run(ctx context.Context, kind Kind, args ...string) (Outcome, error) {
	line := strings.Join(args, " ")

	res, err := e.runner.Run(ctx, args...)
	if err != nil {
		return OutcomeFailed, err
	}

	if res.ExitCode == 0 {
		e.log.WithField("command", line).Info("Executed command")
		return OutcomeApplied, nil
	}

	if e.patterns.Match(kind, res.Output) {
		e.log.WithFields(logrus.Fields{
			"command": line,
			"kind":    kind.String(),
			"output":  strings.TrimSpace(res.Output),
		}).Debug("Command failed with a benign message, treating as success")
		return OutcomeBenign, nil
	}

	e.log.WithFields(logrus.Fields{
		"command":   line,
		"exit_code": res.ExitCode,
		"output":    strings.TrimSpace(res.Output),
	}).Debug("Command failed")

	return OutcomeFailed, &Error{Args: args, ExitCode: res.ExitCode, Output: res.Output}
}
