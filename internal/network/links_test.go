package network

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/ethpandaops/tcshape/internal/types"
)

type fakeNetlinkClient struct {
	links   []netlink.Link
	listErr error
	getErr  error
}

func (f *fakeNetlinkClient) LinkByName(name string) (netlink.Link, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, l := range f.links {
		if l.Attrs().Name == name {
			return l, nil
		}
	}
	return nil, netlink.LinkNotFoundError{}
}

func (f *fakeNetlinkClient) LinkList() ([]netlink.Link, error) {
	return f.links, f.listErr
}

func dummyLink(name string, state netlink.LinkOperState) netlink.Link {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	attrs.OperState = state
	return &netlink.Dummy{LinkAttrs: attrs}
}

func newTestLookup(client netlinkClient) *NetlinkLookup {
	log, _ := test.NewNullLogger()
	l := NewNetlinkLookup(log)
	l.client = client
	return l
}

func TestNetlinkLookupLinkExists(t *testing.T) {
	t.Parallel()

	l := newTestLookup(&fakeNetlinkClient{links: []netlink.Link{dummyLink("eth0", netlink.OperUp)}})

	exists, err := l.LinkExists("eth0")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = l.LinkExists("eth9")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNetlinkLookupLinkExistsError(t *testing.T) {
	t.Parallel()

	l := newTestLookup(&fakeNetlinkClient{getErr: errors.New("netlink socket closed")})

	_, err := l.LinkExists("eth0")
	assert.ErrorContains(t, err, "netlink socket closed")
}

func TestNetlinkLookupInterfaces(t *testing.T) {
	t.Parallel()

	l := newTestLookup(&fakeNetlinkClient{links: []netlink.Link{
		dummyLink("lo", netlink.OperUnknown),
		dummyLink("wlan0", netlink.OperDown),
		dummyLink("eth0", netlink.OperUp),
		dummyLink("ifb6682", netlink.OperUp),
		dummyLink("veth1", netlink.OperLowerLayerDown),
	}})

	names, err := l.Interfaces()
	require.NoError(t, err)
	assert.Equal(t, []string{"eth0", "wlan0"}, names)
}

func TestRequireInterface(t *testing.T) {
	t.Parallel()

	links := newFakeLinks("eth0", "eth1")

	require.NoError(t, RequireInterface(links, "eth0"))

	err := RequireInterface(links, "eth9")
	require.ErrorIs(t, err, types.ErrInterfaceNotFound)
	assert.Contains(t, err.Error(), "available: eth0, eth1")
}
