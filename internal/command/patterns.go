package command

import (
	"regexp"
	"strings"
)

// Kind groups commands that share the same benign failure messages
type Kind int

const (
	// KindPlain commands have no benign failures
	KindPlain Kind = iota
	// KindCreate commands add a qdisc, filter or link
	KindCreate
	// KindDelete commands remove a qdisc, filter or link
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// BenignPatterns maps a command kind to the output patterns meaning
// "already in the target state"
type BenignPatterns map[Kind][]*regexp.Regexp

// DefaultBenignPatterns returns the kernel messages tolerated for each kind
func DefaultBenignPatterns() BenignPatterns {
	return BenignPatterns{
		KindCreate: {
			regexp.MustCompile(`File exists`),
		},
		KindDelete: {
			regexp.MustCompile(`No such file or directory`),
			regexp.MustCompile(`Invalid argument`),
			regexp.MustCompile(`Cannot find specified qdisc`),
			regexp.MustCompile(`Cannot find device`),
			regexp.MustCompile(`Cannot delete qdisc with handle of zero`),
		},
	}
}

// With returns a copy of p extended with extra patterns for kind
func (p BenignPatterns) With(kind Kind, patterns ...*regexp.Regexp) BenignPatterns {
	out := make(BenignPatterns, len(p)+1)
	for k, v := range p {
		out[k] = append([]*regexp.Regexp(nil), v...)
	}
	out[kind] = append(out[kind], patterns...)
	return out
}

// Match reports whether output matches one of the benign patterns of kind
func (p BenignPatterns) Match(kind Kind, output string) bool {
	output = strings.TrimSpace(output)
	if output == "" {
		return false
	}
	for _, re := range p[kind] {
		if re.MatchString(output) {
			return true
		}
	}
	return false
}
