package model

import (
	"fmt"
	"strings"
)

// AgentRole is the two-endpoint role enum from spec.md §1: AdaNet connects
// exactly one Source to exactly one Sink.
type AgentRole int

const (
	RoleUnknown AgentRole = iota
	RoleSource
	RoleSink
)

func (r AgentRole) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleSink:
		return "sink"
	default:
		return "unknown"
	}
}

// ParseAgentRole accepts "source"/"sink", and — per the Open Question in
// spec.md §9 about "Robot" being a synonym for "Source agent" — the
// deprecated alias "robot". The alias is resolved here only; nothing past
// parsing ever sees the word "robot" again.
func ParseAgentRole(s string) (AgentRole, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source", "robot":
		return RoleSource, true
	case "sink":
		return RoleSink, true
	default:
		return RoleUnknown, false
	}
}

// Complement returns the role that a peer advertisement must carry to be a
// usable counterpart for an adapter of this role, per spec.md §4.7
// ("filters out ... same-role announcements").
func (r AgentRole) Complement() (AgentRole, error) {
	switch r {
	case RoleSource:
		return RoleSink, nil
	case RoleSink:
		return RoleSource, nil
	default:
		return RoleUnknown, fmt.Errorf("agent role %q has no complement", r)
	}
}
