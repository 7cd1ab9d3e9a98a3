package ignition

import (
	"fmt"

	"github.com/robotalks/alcolock/pkg/protocol"
)

// Effect is an output of Transition, applied by an Executor.
type Effect interface {
	fmt.Stringer
	isEffect()
}

// EmitCommand sends a vehicle command on the command channel.
type EmitCommand struct {
	Command protocol.CommandType
}

// Color of the status LED.
type Color uint8

// Colors. Blue shows the link is up and no decision is made yet.
const (
	ColorOff Color = iota
	ColorRed
	ColorGreen
	ColorBlue
)

var colorNames = [...]string{"OFF", "RED", "GREEN", "BLUE"}

// String implements fmt.Stringer.
func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return fmt.Sprintf("Color(%d)", uint8(c))
}

// SetIndicator sets the status LED.
type SetIndicator struct {
	Color Color
}

// SoundAlarm sounds the buzzer.
type SoundAlarm struct{}

// SetWarning turns the warning indicator on or off.
type SetWarning struct {
	On bool
}

func (EmitCommand) isEffect()  {}
func (SetIndicator) isEffect() {}
func (SoundAlarm) isEffect()   {}
func (SetWarning) isEffect()   {}

func (e EmitCommand) String() string  { return "emit " + e.Command.String() }
func (e SetIndicator) String() string { return "led " + e.Color.String() }
func (SoundAlarm) String() string     { return "alarm" }
func (e SetWarning) String() string {
	if e.On {
		return "warning on"
	}
	return "warning off"
}

// Commands extracts the emitted commands from effects.
func Commands(effects []Effect) []protocol.CommandType {
	var cmds []protocol.CommandType
	for _, e := range effects {
		if emit, ok := e.(EmitCommand); ok {
			cmds = append(cmds, emit.Command)
		}
	}
	return cmds
}
