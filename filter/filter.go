// Package filter selects which messages of a batch get archived, matching
// regex patterns against raw headers and bodies.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Options captures the selection configuration. Include and exclude modes
// are mutually exclusive.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

type mode int

const (
	modeAllowAll mode = iota
	modeInclude
	modeExclude
)

type scope int

const (
	scopeHeader scope = iota
	scopeBody
)

// rule is one compiled pattern bound to the message region it runs against.
type rule struct {
	re    *regexp.Regexp
	scope scope
}

// Filter decides message selection from a flat rule list. In include mode a
// message needs at least one matching rule; in exclude mode a single match
// rejects it. With no rules everything is allowed.
type Filter struct {
	mode  mode
	rules []rule
}

func New(opts Options) (*Filter, error) {
	include, err := compileRules(opts.IncludeHeader, opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("include filter: %w", err)
	}
	exclude, err := compileRules(opts.ExcludeHeader, opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("exclude filter: %w", err)
	}

	switch {
	case len(include) > 0 && len(exclude) > 0:
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	case len(include) > 0:
		return &Filter{mode: modeInclude, rules: include}, nil
	case len(exclude) > 0:
		return &Filter{mode: modeExclude, rules: exclude}, nil
	default:
		return &Filter{mode: modeAllowAll}, nil
	}
}

// Allows reports whether the message should be archived.
func (f *Filter) Allows(header, body []byte) bool {
	switch f.mode {
	case modeInclude:
		return f.anyMatch(header, body)
	case modeExclude:
		return !f.anyMatch(header, body)
	default:
		return true
	}
}

func (f *Filter) anyMatch(header, body []byte) bool {
	for _, r := range f.rules {
		region := header
		if r.scope == scopeBody {
			region = body
		}
		if r.re.Match(region) {
			return true
		}
	}
	return false
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compileRules(headerPatterns, bodyPatterns []string) ([]rule, error) {
	var rules []rule
	add := func(patterns []string, sc scope) error {
		for _, pattern := range patterns {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("compile %q: %w", pattern, err)
			}
			rules = append(rules, rule{re: re, scope: sc})
		}
		return nil
	}
	if err := add(headerPatterns, scopeHeader); err != nil {
		return nil, err
	}
	if err := add(bodyPatterns, scopeBody); err != nil {
		return nil, err
	}
	return rules, nil
}
