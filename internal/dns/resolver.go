// Package dns resolves host names given as a network filter to addresses.
package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tcshape/internal/types"
)

// cacheTTL bounds how long a resolution is reused within one process
const cacheTTL = time.Hour

// CacheEntry represents cached DNS resolution results
type CacheEntry struct {
	IPs       []string
	ExpiresAt time.Time
}

// hostLookup is the subset of net.Resolver used here
type hostLookup interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Resolver turns host names into addresses, with caching
type Resolver struct {
	cache    map[string]*CacheEntry
	cacheMu  sync.RWMutex
	log      logrus.FieldLogger
	resolver hostLookup
	now      func() time.Time
}

// NewResolver creates a new DNS resolver
func NewResolver(log logrus.FieldLogger) *Resolver {
	return &Resolver{
		cache:    make(map[string]*CacheEntry),
		log:      log.WithField("package", "dns.resolver"),
		resolver: &net.Resolver{},
		now:      time.Now,
	}
}

// ResolveNetwork returns network unchanged when it is empty, "anywhere", an
// address or a CIDR. Otherwise network is treated as a host name and replaced
// by its first address, IPv4 preferred.
func (r *Resolver) ResolveNetwork(ctx context.Context, network string) (string, error) {
	network = strings.TrimSpace(network)
	if !isHostname(network) {
		return network, nil
	}

	ips, err := r.resolveHost(ctx, network)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrInvalidNetworkSpec, err)
	}

	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// ResolveSpec resolves the host names in the network filters of spec in place
func (r *Resolver) ResolveSpec(ctx context.Context, spec *types.TrafficSpec) error {
	network, err := r.ResolveNetwork(ctx, spec.Network)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	srcNetwork, err := r.ResolveNetwork(ctx, spec.SrcNetwork)
	if err != nil {
		return fmt.Errorf("srcNetwork: %w", err)
	}

	spec.Network, spec.SrcNetwork = network, srcNetwork
	return nil
}

// GetCachedIPs returns cached IPs for hostname if available
func (r *Resolver) GetCachedIPs(hostname string) ([]string, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	entry, exists := r.cache[hostname]
	if !exists {
		return nil, false
	}

	// Check if entry is expired
	if r.now().After(entry.ExpiresAt) {
		return nil, false
	}

	return entry.IPs, true
}

// resolveHost resolves single hostname to IP addresses
func (r *Resolver) resolveHost(ctx context.Context, hostname string) ([]string, error) {
	if ips, found := r.GetCachedIPs(hostname); found {
		return ips, nil
	}

	r.log.WithField("hostname", hostname).Debug("Resolving hostname")

	addrs, err := r.resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup IPs for hostname %s: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("hostname %s has no addresses", hostname)
	}

	ipStrings := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		ipStrings = append(ipStrings, addr.IP.String())
	}

	r.updateCache(hostname, ipStrings)

	r.log.WithField("hostname", hostname).WithField("ips", ipStrings).Debug("Resolved hostname")

	return ipStrings, nil
}

func (r *Resolver) updateCache(hostname string, ips []string) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache[hostname] = &CacheEntry{
		IPs:       ips,
		ExpiresAt: r.now().Add(cacheTTL),
	}
}

// isHostname reports whether s has to go through DNS
func isHostname(s string) bool {
	if s == "" || strings.EqualFold(s, types.AnywhereNetwork) {
		return false
	}
	if net.ParseIP(s) != nil || types.ValidateCIDRRange(s) == nil {
		return false
	}
	// Malformed CIDRs are left to the validator
	return !strings.Contains(s, "/")
}
