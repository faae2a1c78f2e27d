package command_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tcshape/internal/command"
	"github.com/ethpandaops/tcshape/internal/command/commandtest"
)

func newExecutor(runner command.Runner, patterns command.BenignPatterns) *command.Executor {
	log, _ := test.NewNullLogger()
	return command.NewExecutor(runner, patterns, log)
}

func TestExecutorOutcomes(t *testing.T) {
	t.Parallel()

	runner := commandtest.NewFakeRunner().
		Respond("ip link add ifb1 type ifb", commandtest.Fail("RTNETLINK answers: File exists")).
		Respond("tc qdisc del dev eth0 root", commandtest.Fail("RTNETLINK answers: No such file or directory")).
		Respond("tc qdisc del dev eth0 ingress", commandtest.Fail("RTNETLINK answers: Invalid argument")).
		Respond("tc qdisc del dev eth1 root", commandtest.Fail("Error: Cannot delete qdisc with handle of zero.")).
		Respond("tc qdisc add dev eth0 ingress", commandtest.Fail("RTNETLINK answers: Operation not permitted"))
	exec := newExecutor(runner, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    command.Kind
		args    []string
		outcome command.Outcome
	}{
		{"success", command.KindCreate, []string{"ip", "link", "set", "dev", "ifb1", "up"}, command.OutcomeApplied},
		{"create exists", command.KindCreate, []string{"ip", "link", "add", "ifb1", "type", "ifb"}, command.OutcomeBenign},
		{"delete missing", command.KindDelete, []string{"tc", "qdisc", "del", "dev", "eth0", "root"}, command.OutcomeBenign},
		{"delete invalid", command.KindDelete, []string{"tc", "qdisc", "del", "dev", "eth0", "ingress"}, command.OutcomeBenign},
		{"delete root of clean device", command.KindDelete, []string{"tc", "qdisc", "del", "dev", "eth1", "root"}, command.OutcomeBenign},
		{"permission", command.KindCreate, []string{"tc", "qdisc", "add", "dev", "eth0", "ingress"}, command.OutcomeFailed},
		{"exists on delete is not benign", command.KindDelete, []string{"ip", "link", "add", "ifb1", "type", "ifb"}, command.OutcomeFailed},
		{"plain has no benign patterns", command.KindPlain, []string{"tc", "qdisc", "del", "dev", "eth0", "root"}, command.OutcomeFailed},
	}

	for _, tt := range tests {
		outcome, err := exec.Run(ctx, tt.kind, tt.args...)
		assert.Equal(t, tt.outcome, outcome, tt.name)
		if tt.outcome == command.OutcomeFailed {
			var cmdErr *command.Error
			require.ErrorAs(t, err, &cmdErr, tt.name)
			assert.Equal(t, tt.args, cmdErr.Args)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}

func TestBenignPatternsWith(t *testing.T) {
	t.Parallel()

	base := command.DefaultBenignPatterns()
	extended := base.With(command.KindCreate, regexp.MustCompile(`Exclusivity flag on`))

	assert.True(t, extended.Match(command.KindCreate, "Error: Exclusivity flag on, cannot modify."))
	assert.False(t, base.Match(command.KindCreate, "Error: Exclusivity flag on, cannot modify."))
	assert.True(t, extended.Match(command.KindCreate, "RTNETLINK answers: File exists"))
	assert.False(t, extended.Match(command.KindCreate, ""))
}

func TestExecRunnerRejectsUnknownCommands(t *testing.T) {
	t.Parallel()

	runner := command.NewExecRunner(logrus.New())

	_, err := runner.Run(context.Background(), "rm", "-rf", "/")
	assert.ErrorContains(t, err, "command not allowed")

	_, err = runner.Run(context.Background())
	assert.Error(t, err)
}
