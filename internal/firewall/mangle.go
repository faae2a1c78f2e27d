// Package firewall marks shaped flows with iptables mangle rules so tc fw filters
// can classify them.
package firewall

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coreos/go-iptables/iptables"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ethpandaops/tcshape/internal/types"
)

const (
	// Table holds every rule this package manages
	Table = "mangle"
	// Comment tags managed rules so Clear never touches foreign ones
	Comment = "tcshape"
	// FirstMark is the mark of the first rule; later rules count up from it
	FirstMark = 101
)

// Chains lists the mangle chains managed rules are placed in
var Chains = []string{"OUTPUT", "PREROUTING"} //nolint:gochecknoglobals

// iptablesClient is the subset of go-iptables used by Marker
type iptablesClient interface {
	List(table, chain string) ([]string, error)
	Append(table, chain string, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
}

// Rule selects the flows to mark
type Rule struct {
	Direction  types.Direction
	Network    string
	SrcNetwork string
	Port       *int
}

// Marker installs and clears mangle MARK rules
type Marker struct {
	ipt iptablesClient
	log logrus.FieldLogger
}

// NewMarker creates a Marker using the host's iptables binary
func NewMarker(log logrus.FieldLogger) (*Marker, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create iptables handler: %w", err)
	}
	return NewMarkerWithClient(ipt, log), nil
}

// NewMarkerWithClient creates a Marker over an existing iptables client
func NewMarkerWithClient(ipt iptablesClient, log logrus.FieldLogger) *Marker {
	return &Marker{
		ipt: ipt,
		log: log.WithField("package", "firewall.mangle"),
	}
}

// ChainFor returns the mangle chain that sees traffic of direction
func ChainFor(direction types.Direction) (string, error) {
	switch direction {
	case types.DirectionOutgoing:
		return "OUTPUT", nil
	case types.DirectionIncoming:
		return "PREROUTING", nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrUnknownDirection, string(direction))
	}
}

// AddMark appends the MARK rules for rule and returns the mark they set.
// A port filter needs one rule per transport protocol, tcp and udp.
func (m *Marker) AddMark(_ context.Context, rule Rule) (uint32, error) {
	chain, err := ChainFor(rule.Direction)
	if err != nil {
		return 0, err
	}

	existing, err := m.managedRules()
	if err != nil {
		return 0, err
	}
	mark := uint32(FirstMark + len(existing))

	specs, err := ruleSpecs(rule, mark)
	if err != nil {
		return 0, err
	}

	for _, spec := range specs {
		if err := m.ipt.Append(Table, chain, spec...); err != nil {
			return 0, fmt.Errorf("failed to append mangle rule to %s: %w", chain, err)
		}

		m.log.WithFields(logrus.Fields{
			"chain": chain,
			"mark":  mark,
			"rule":  strings.Join(spec, " "),
		}).Info("Added firewall mark rule")
	}

	return mark, nil
}

// Clear deletes every managed rule and reports whether any was removed.
// It keeps going after a failed delete.
func (m *Marker) Clear(_ context.Context) (bool, error) {
	rules, err := m.managedRules()
	if err != nil {
		return false, err
	}

	var (
		errs    error
		removed bool
	)
	for _, r := range rules {
		if err := m.ipt.Delete(Table, r.chain, r.spec...); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to delete mangle rule '%s': %w", strings.Join(r.spec, " "), err))
			continue
		}
		removed = true
		m.log.WithFields(logrus.Fields{
			"chain": r.chain,
			"rule":  strings.Join(r.spec, " "),
		}).Debug("Deleted firewall mark rule")
	}

	if len(rules) == 0 {
		m.log.Debug("No firewall mark rules to remove")
	}

	return removed, errs
}

type listedRule struct {
	chain string
	spec  []string
}

// managedRules lists the tagged rules of all managed chains. Listed rules look like
// "-A OUTPUT -d 10.0.0.0/8 -m comment --comment tcshape -j MARK --set-xmark 0x65/0xffffffff".
func (m *Marker) managedRules() ([]listedRule, error) {
	var rules []listedRule
	for _, chain := range Chains {
		listed, err := m.ipt.List(Table, chain)
		if err != nil {
			return nil, fmt.Errorf("failed to list mangle chain %s: %w", chain, err)
		}
		for _, line := range listed {
			fields := strings.Fields(line)
			if len(fields) < 3 || fields[0] != "-A" || !isManaged(fields) {
				continue
			}
			rules = append(rules, listedRule{chain: fields[1], spec: fields[2:]})
		}
	}
	return rules, nil
}

func isManaged(fields []string) bool {
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "--comment" && strings.Trim(fields[i+1], `"`) == Comment {
			return true
		}
	}
	return false
}

// portProtocols are the transport protocols a port filter is matched on
var portProtocols = []string{"tcp", "udp"} //nolint:gochecknoglobals

func ruleSpecs(rule Rule, mark uint32) ([][]string, error) {
	peer, err := rule.Direction.NetworkDirection()
	if err != nil {
		return nil, err
	}
	local, err := rule.Direction.LocalDirection()
	if err != nil {
		return nil, err
	}
	port, err := rule.Direction.PortDirection()
	if err != nil {
		return nil, err
	}

	var match []string
	if rule.Network != "" {
		match = append(match, addressFlag(peer), rule.Network)
	}
	if rule.SrcNetwork != "" {
		match = append(match, addressFlag(local), rule.SrcNetwork)
	}
	target := []string{
		"-m", "comment", "--comment", Comment,
		"-j", "MARK", "--set-mark", strconv.FormatUint(uint64(mark), 10),
	}

	if rule.Port == nil {
		return [][]string{concat(match, target)}, nil
	}

	specs := make([][]string, 0, len(portProtocols))
	for _, proto := range portProtocols {
		portMatch := []string{"-p", proto, "--" + port, strconv.Itoa(*rule.Port)}
		specs = append(specs, concat(match, portMatch, target))
	}
	return specs, nil
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// addressFlag maps "dst"/"src" to "-d"/"-s"
func addressFlag(selector string) string {
	return "-" + selector[:1]
}
