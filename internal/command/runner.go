package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Result is the exit status and combined output of one command
type Result struct {
	ExitCode int
	Output   string
}

// Runner executes a single command line and captures its result.
// A non-zero exit is reported through Result, not through the error.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// allowedCommands are the only binaries this tool ever executes
var allowedCommands = map[string]bool{ //nolint:gochecknoglobals
	"tc":       true,
	"ip":       true,
	"modprobe": true,
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	log logrus.FieldLogger
}

// NewExecRunner creates a runner that executes commands on the host
func NewExecRunner(log logrus.FieldLogger) *ExecRunner {
	return &ExecRunner{
		log: log.WithField("package", "command.runner"),
	}
}

// Run executes args[0] with the remaining arguments and blocks until it exits
func (r *ExecRunner) Run(ctx context.Context, args ...string) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("command cannot be empty")
	}

	// Validate that we're only executing allowed commands for security
	if !allowedCommands[args[0]] {
		return Result{}, fmt.Errorf("command not allowed: %s", args[0])
	}

	line := strings.Join(args, " ")
	r.log.WithField("command", line).Debug("Executing command")

	// #nosec G204 - Command arguments are constructed internally and validated above
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: string(output)}, nil
		}
		return Result{ExitCode: -1, Output: string(output)}, fmt.Errorf("failed to run %s: %w", line, err)
	}

	return Result{ExitCode: 0, Output: string(output)}, nil
}
