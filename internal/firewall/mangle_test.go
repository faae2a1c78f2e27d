package firewall

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tcshape/internal/types"
)

// fakeIPTables keeps rules per chain in "-A <chain> <spec>" form, like `iptables -S`
type fakeIPTables struct {
	chains    map[string][]string
	deleteErr error
}

func newFakeIPTables() *fakeIPTables {
	return &fakeIPTables{chains: map[string][]string{}}
}

func (f *fakeIPTables) List(table, chain string) ([]string, error) {
	if table != Table {
		return nil, errors.New("unexpected table " + table)
	}
	return append([]string{"-P " + chain + " ACCEPT"}, f.chains[chain]...), nil
}

func (f *fakeIPTables) Append(_, chain string, rulespec ...string) error {
	f.chains[chain] = append(f.chains[chain], "-A "+chain+" "+strings.Join(rulespec, " "))
	return nil
}

func (f *fakeIPTables) Delete(_, chain string, rulespec ...string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	want := "-A " + chain + " " + strings.Join(rulespec, " ")
	for i, r := range f.chains[chain] {
		if r == want {
			f.chains[chain] = append(f.chains[chain][:i], f.chains[chain][i+1:]...)
			return nil
		}
	}
	return errors.New("Bad rule (does a matching rule exist in that chain?)")
}

func newTestMarker(ipt iptablesClient) *Marker {
	log, _ := test.NewNullLogger()
	return NewMarkerWithClient(ipt, log)
}

func TestAddMarkBuildsRuleAndCountsMarks(t *testing.T) {
	t.Parallel()

	ipt := newFakeIPTables()
	marker := newTestMarker(ipt)
	ctx := context.Background()

	mark, err := marker.AddMark(ctx, Rule{
		Direction:  types.DirectionOutgoing,
		Network:    "192.168.0.0/24",
		SrcNetwork: "10.0.0.0/8",
		Port:       types.Int(8080),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(FirstMark), mark)
	assert.Equal(t, []string{
		"-A OUTPUT -d 192.168.0.0/24 -s 10.0.0.0/8 -p tcp --dport 8080 -m comment --comment tcshape -j MARK --set-mark 101",
		"-A OUTPUT -d 192.168.0.0/24 -s 10.0.0.0/8 -p udp --dport 8080 -m comment --comment tcshape -j MARK --set-mark 101",
	}, ipt.chains["OUTPUT"])

	// marks stay unique, they count managed rules
	mark, err = marker.AddMark(ctx, Rule{Direction: types.DirectionIncoming, Network: "172.16.0.0/12"})
	require.NoError(t, err)
	assert.Equal(t, uint32(FirstMark+2), mark)
	assert.Equal(t, []string{
		"-A PREROUTING -s 172.16.0.0/12 -m comment --comment tcshape -j MARK --set-mark 103",
	}, ipt.chains["PREROUTING"])
}

func TestClearRemovesBothProtocolRules(t *testing.T) {
	t.Parallel()

	ipt := newFakeIPTables()
	marker := newTestMarker(ipt)
	ctx := context.Background()

	_, err := marker.AddMark(ctx, Rule{Direction: types.DirectionOutgoing, Port: types.Int(53)})
	require.NoError(t, err)
	require.Len(t, ipt.chains["OUTPUT"], 2)

	removed, err := marker.Clear(ctx)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, ipt.chains["OUTPUT"])
}

func TestAddMarkUnknownDirection(t *testing.T) {
	t.Parallel()

	_, err := newTestMarker(newFakeIPTables()).AddMark(context.Background(), Rule{Direction: "up"})
	assert.ErrorIs(t, err, types.ErrUnknownDirection)
}

func TestClearRemovesOnlyManagedRules(t *testing.T) {
	t.Parallel()

	ipt := newFakeIPTables()
	ipt.chains["OUTPUT"] = []string{"-A OUTPUT -d 8.8.8.8/32 -j MARK --set-xmark 0x1/0xffffffff"}
	marker := newTestMarker(ipt)
	ctx := context.Background()

	_, err := marker.AddMark(ctx, Rule{Direction: types.DirectionOutgoing, Network: "192.168.0.0/24"})
	require.NoError(t, err)

	removed, err := marker.Clear(ctx)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"-A OUTPUT -d 8.8.8.8/32 -j MARK --set-xmark 0x1/0xffffffff"}, ipt.chains["OUTPUT"])

	removed, err = marker.Clear(ctx)
	require.NoError(t, err)
	assert.False(t, removed, "second clear has nothing to remove")
}

func TestClearReportsDeleteFailures(t *testing.T) {
	t.Parallel()

	ipt := newFakeIPTables()
	marker := newTestMarker(ipt)
	ctx := context.Background()

	_, err := marker.AddMark(ctx, Rule{Direction: types.DirectionOutgoing, Network: "192.168.0.0/24"})
	require.NoError(t, err)

	ipt.deleteErr = errors.New("permission denied")
	removed, err := marker.Clear(ctx)
	assert.False(t, removed)
	assert.ErrorContains(t, err, "permission denied")
}

func TestIsManagedAcceptsQuotedComment(t *testing.T) {
	t.Parallel()

	assert.True(t, isManaged(strings.Fields(`-A OUTPUT -m comment --comment "tcshape" -j MARK`)))
	assert.False(t, isManaged(strings.Fields(`-A OUTPUT -m comment --comment other -j MARK`)))
}
