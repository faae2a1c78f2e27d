// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/ethpandaops/tcshape/internal/command"
)

// FakeRunner records every command and answers from a table keyed by the
// space-joined command line. Unknown commands succeed with exit code 0.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]command.Result
	prefixes  map[string]command.Result
}

// NewFakeRunner creates an empty FakeRunner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]command.Result),
		prefixes:  make(map[string]command.Result),
	}
}

// Respond scripts the result for an exact command line
func (f *FakeRunner) Respond(line string, res command.Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = res
	return f
}

// RespondPrefix scripts the result for every command line starting with prefix
func (f *FakeRunner) RespondPrefix(prefix string, res command.Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes[prefix] = res
	return f
}

// Fail is shorthand for a result with exit code 2 and the given output
func Fail(output string) command.Result {
	return command.Result{ExitCode: 2, Output: output}
}

// Run implements command.Runner
func (f *FakeRunner) Run(_ context.Context, args ...string) (command.Result, error) {
	line := strings.Join(args, " ")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, line)
	if res, ok := f.responses[line]; ok {
		return res, nil
	}
	for prefix, res := range f.prefixes {
		if strings.HasPrefix(line, prefix) {
			return res, nil
		}
	}
	return command.Result{}, nil
}

// Calls returns the executed command lines in order
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Reset forgets recorded calls but keeps scripted responses
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
