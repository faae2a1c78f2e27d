package network

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/ethpandaops/tcshape/internal/types"
)

// LinkLookup answers questions about the links present in the current namespace
type LinkLookup interface {
	// LinkExists reports whether a link with the given name exists
	LinkExists(name string) (bool, error)
	// Interfaces lists the names of links that can be shaped
	Interfaces() ([]string, error)
}

// netlinkClient is the subset of netlink used here
type netlinkClient interface {
	LinkByName(name string) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
}

type defaultNetlinkClient struct{}

func (defaultNetlinkClient) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (defaultNetlinkClient) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

// NetlinkLookup implements LinkLookup over rtnetlink
type NetlinkLookup struct {
	client netlinkClient
	log    logrus.FieldLogger
}

// NewNetlinkLookup creates a LinkLookup backed by the kernel's link table
func NewNetlinkLookup(log logrus.FieldLogger) *NetlinkLookup {
	return &NetlinkLookup{
		client: defaultNetlinkClient{},
		log:    log.WithField("package", "network.links"),
	}
}

// LinkExists reports whether name is a link in the current namespace
func (l *NetlinkLookup) LinkExists(name string) (bool, error) {
	_, err := l.client.LinkByName(name)
	if err == nil {
		return true, nil
	}

	var notFound netlink.LinkNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up link %s: %w", name, err)
}

// Interfaces returns the names of links that carry traffic, sorted
func (l *NetlinkLookup) Interfaces() ([]string, error) {
	links, err := l.client.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	names := make([]string, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil || l.shouldSkipInterface(attrs) {
			continue
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)

	l.log.WithField("interfaces", names).Debug("Found network interfaces")
	return names, nil
}

func (l *NetlinkLookup) shouldSkipInterface(attrs *netlink.LinkAttrs) bool {
	if attrs.Name == "" || attrs.Name == "lo" {
		return true
	}

	// ifb devices are managed by this tool, never shaped directly
	if strings.HasPrefix(attrs.Name, "ifb") {
		return true
	}

	if attrs.OperState != netlink.OperUp && attrs.OperState != netlink.OperDown && attrs.OperState != netlink.OperUnknown {
		l.log.WithFields(logrus.Fields{
			"interface": attrs.Name,
			"state":     attrs.OperState,
		}).Debug("Skipping interface due to operational state")
		return true
	}

	return false
}

// RequireInterface fails with ErrInterfaceNotFound when device does not exist
func RequireInterface(links LinkLookup, device string) error {
	exists, err := links.LinkExists(device)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	available, listErr := links.Interfaces()
	if listErr != nil || len(available) == 0 {
		return fmt.Errorf("%w: %s", types.ErrInterfaceNotFound, device)
	}
	return fmt.Errorf("%w: %s (available: %s)", types.ErrInterfaceNotFound, device, strings.Join(available, ", "))
}
