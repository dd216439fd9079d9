package scpi

import (
	"errors"
	"fmt"
	"strings"
)

// CompoundSeparator chains several commands on one line.
const CompoundSeparator = ";"

// ErrMalformed indicates input that does not match the command grammar.
var ErrMalformed = errors.New("malformed command")

// Parse parses a single command into a Request.
//
// Grammar: an optional colon-separated target hierarchy, a trailing "?" for
// queries, and whitespace-separated arguments. Targets are case-insensitive
// and normalized to upper case. "*TRG" parses as a trigger rather than a
// write. Parse has no side effects and fails only with ErrMalformed.
func Parse(line string) (*Request, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty command", ErrMalformed)
	}
	if err := checkASCII(trimmed); err != nil {
		return nil, err
	}

	fields := strings.Fields(trimmed)
	target := fields[0]
	args := fields[1:]

	isQuery := strings.HasSuffix(target, "?")
	if isQuery {
		target = strings.TrimSuffix(target, "?")
	}
	if target == "" {
		return nil, fmt.Errorf("%w: missing target in %q", ErrMalformed, trimmed)
	}
	if strings.Contains(target, "?") {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, trimmed)
	}
	target = strings.ToUpper(target)
	if err := checkTarget(target, trimmed); err != nil {
		return nil, err
	}

	req := &Request{Target: target, Args: args, Line: trimmed}
	switch {
	case isQuery:
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: query %q takes no arguments", ErrMalformed, target)
		}
		req.Verb = VerbQuery
	case target == "*TRG":
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: *TRG takes no arguments", ErrMalformed)
		}
		req.Verb = VerbTrigger
	default:
		req.Verb = VerbWrite
	}
	return req, nil
}

// ParseLine parses one received line, which may chain several commands with
// ";". Requests are returned in command order. Empty segments are skipped;
// a line with no commands at all is malformed.
func ParseLine(line string) ([]*Request, error) {
	var reqs []*Request
	for _, segment := range strings.Split(line, CompoundSeparator) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		req, err := Parse(segment)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty command line", ErrMalformed)
	}
	return reqs, nil
}

// checkASCII rejects control and non-ASCII bytes. Line terminators are
// stripped by the transport before parsing.
func checkASCII(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: non-ASCII byte 0x%02x at offset %d", ErrMalformed, c, i)
		}
	}
	return nil
}

// checkTarget validates the target path: non-empty colon-separated segments
// of letters, digits, underscores, with an optional leading "*" on the first
// segment for IEEE-488.2 common commands.
func checkTarget(target, line string) error {
	segments := strings.Split(target, ":")
	for i, seg := range segments {
		if i == 0 {
			seg = strings.TrimPrefix(seg, "*")
		}
		if seg == "" {
			return fmt.Errorf("%w: empty path segment in %q", ErrMalformed, line)
		}
		for _, c := range seg {
			valid := (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
			if !valid {
				return fmt.Errorf("%w: invalid character %q in target %q", ErrMalformed, c, target)
			}
		}
	}
	return nil
}
