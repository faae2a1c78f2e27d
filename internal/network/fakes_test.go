package network

import (
	"context"
	"sort"
	"sync"

	"github.com/ethpandaops/tcshape/internal/command/commandtest"
	"github.com/ethpandaops/tcshape/internal/qdisc"
	"github.com/ethpandaops/tcshape/internal/types"
)

type fakeLinks struct {
	mu    sync.Mutex
	links map[string]bool
}

func newFakeLinks(names ...string) *fakeLinks {
	f := &fakeLinks{links: map[string]bool{}}
	for _, n := range names {
		f.links[n] = true
	}
	return f
}

func (f *fakeLinks) LinkExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[name], nil
}

func (f *fakeLinks) Interfaces() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.links))
	for n := range f.links {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeLinks) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, name)
}

type shaperCall struct {
	target       string
	base         qdisc.ID
	spec         *types.TrafficSpec
	commandsSeen int
}

// fakeShaper records every Apply along with how many commands ran before it
type fakeShaper struct {
	runner *commandtest.FakeRunner
	calls  []shaperCall
	err    error
}

func (f *fakeShaper) Apply(_ context.Context, target string, base qdisc.ID, spec *types.TrafficSpec) error {
	f.calls = append(f.calls, shaperCall{
		target:       target,
		base:         base,
		spec:         spec,
		commandsSeen: len(f.runner.Calls()),
	})
	return f.err
}

type fakeMarker struct {
	cleared int
	removed bool
	err     error
}

func (f *fakeMarker) Clear(context.Context) (bool, error) {
	f.cleared++
	return f.removed, f.err
}
