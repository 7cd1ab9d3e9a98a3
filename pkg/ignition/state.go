package ignition

import (
	"fmt"
	"time"
)

// Permission is the ignition decision.
type Permission uint8

// Permissions. The zero value is Blocked.
const (
	Blocked Permission = iota
	Allowed
)

// String implements fmt.Stringer.
func (p Permission) String() string {
	switch p {
	case Blocked:
		return "BLOCKED"
	case Allowed:
		return "ALLOWED"
	}
	return fmt.Sprintf("Permission(%d)", uint8(p))
}

// Cause records what produced the current permission.
type Cause uint8

// Causes.
const (
	CauseStartup Cause = iota
	CauseSober
	CauseWarning
	CauseOverLimit
	CauseTamper
	CauseLinkTimeout
)

var causeNames = [...]string{"startup", "sober", "warning", "over_limit", "tamper", "link_timeout"}

// String implements fmt.Stringer.
func (c Cause) String() string {
	if int(c) < len(causeNames) {
		return causeNames[c]
	}
	return fmt.Sprintf("cause(%d)", uint8(c))
}

// State is the decision state of one link. The zero value is the
// startup state: Blocked with no BAC received.
type State struct {
	Permission Permission
	Cause      Cause
	// HasBAC is false until the first BAC packet is accepted.
	HasBAC  bool
	LastBAC float32
	// LastUpdate is when the last BAC packet was accepted.
	LastUpdate time.Time
	// Tamper is set while the last accepted packet reported the watch
	// removed.
	Tamper  bool
	Warning bool
}

// Snapshot is a read-only view of a Controller.
type Snapshot struct {
	State
	DecodeErrors uint64
	// WatchdogArmed is false before the first BAC packet and after a
	// link timeout.
	WatchdogArmed bool
}

// String implements fmt.Stringer.
func (s State) String() string {
	bac := "none"
	if s.HasBAC {
		bac = fmt.Sprintf("%.3f", s.LastBAC)
	}
	return fmt.Sprintf("%s (%s) bac=%s tamper=%v warning=%v", s.Permission, s.Cause, bac, s.Tamper, s.Warning)
}
