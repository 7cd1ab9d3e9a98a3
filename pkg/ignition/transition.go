package ignition

import (
	"math"
	"time"

	"github.com/robotalks/alcolock/pkg/protocol"
)

// Event is an input of Transition.
type Event interface {
	isEvent()
}

// BACReceived is a decoded BAC status packet.
type BACReceived struct {
	Status protocol.BACStatus
	// At is the local receive time; the device timestamp is not
	// trusted for timing.
	At time.Time
}

// LinkTimeout fires when no BAC packet was accepted for longer than
// Policy.LinkTimeout.
type LinkTimeout struct {
	At time.Time
}

// DecodeFailed is a BAC packet that could not be decoded.
type DecodeFailed struct {
	Err error
}

// LinkUp is raised when a device connects.
type LinkUp struct{}

func (BACReceived) isEvent()  {}
func (LinkTimeout) isEvent()  {}
func (DecodeFailed) isEvent() {}
func (LinkUp) isEvent()       {}

// Transition computes the next state and the effects to apply. It has
// no side effects. No event other than an accepted packet with the
// watch worn and a BAC at or below the danger threshold yields Allowed.
func Transition(s State, ev Event, p Policy) (State, []Effect) {
	switch ev := ev.(type) {
	case BACReceived:
		return acceptBAC(s, ev, p)
	case LinkTimeout:
		s.Permission, s.Cause, s.Warning = Blocked, CauseLinkTimeout, false
		return s, []Effect{
			EmitCommand{protocol.CommandBlockIgnition},
			SetIndicator{ColorRed},
			SetWarning{false},
		}
	case LinkUp:
		if s.HasBAC {
			return s, nil
		}
		return s, []Effect{SetIndicator{ColorBlue}}
	}
	// Decode failures and unknown events leave the state untouched.
	return s, nil
}

func acceptBAC(s State, ev BACReceived, p Policy) (State, []Effect) {
	bac := ev.Status.BAC
	s.HasBAC, s.LastBAC, s.LastUpdate = true, bac, ev.At
	s.Tamper = !ev.Status.Flags.WatchWorn()
	s.Warning = false

	switch {
	case s.Tamper:
		s.Permission, s.Cause = Blocked, CauseTamper
		return s, []Effect{
			EmitCommand{protocol.CommandBlockIgnition},
			SetIndicator{ColorRed},
			SetWarning{false},
		}
	case overLimit(bac, p.DangerThreshold):
		s.Permission, s.Cause = Blocked, CauseOverLimit
		return s, []Effect{
			EmitCommand{protocol.CommandBlockIgnition},
			SetIndicator{ColorRed},
			SoundAlarm{},
			SetWarning{false},
		}
	case bac > p.WarningThreshold:
		s.Permission, s.Cause, s.Warning = Allowed, CauseWarning, true
		return s, []Effect{
			EmitCommand{protocol.CommandAllowIgnition},
			SetIndicator{ColorGreen},
			SetWarning{true},
		}
	}
	s.Permission, s.Cause = Allowed, CauseSober
	return s, []Effect{
		EmitCommand{protocol.CommandAllowIgnition},
		SetIndicator{ColorGreen},
		SetWarning{false},
	}
}

// overLimit treats NaN and infinities as over the limit.
func overLimit(bac, limit float32) bool {
	v := float64(bac)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return bac > limit
}
