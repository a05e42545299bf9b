package acl

import (
	"fmt"
	"strings"
)

// Decision is an authorization status.
type Decision int

const (
	// Indeterminate means no rule matched; callers must treat it as deny
	// when a final answer is required.
	Indeterminate Decision = iota

	// Permit grants access.
	Permit

	// Deny refuses access.
	Deny
)

func (d Decision) String() string {
	switch d {
	case Permit:
		return "PERMIT"
	case Deny:
		return "DENY"
	case Indeterminate:
		return "INDETERMINATE"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ParseDecision parses PERMIT, DENY or INDETERMINATE (any case).
func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(s) {
	case "PERMIT":
		return Permit, nil
	case "DENY":
		return Deny, nil
	case "INDETERMINATE":
		return Indeterminate, nil
	default:
		return Indeterminate, fmt.Errorf("acl: unknown authorization status %q", s)
	}
}
