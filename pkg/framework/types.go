package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Event is anything posted into the loop for serialized processing.
type Event interface{}

// Clock provides the current time to the loop and its controllers.
type Clock interface {
	Now() time.Time
}

// ClockFunc is the func form of Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Controller defines the abstract controlling logic.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// ControlContext provides the context of current control iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is the time this iteration started.
	Time() time.Time
	// Stage gets the stage being executed.
	Stage() Stage
	// Events retrieves the events collected when this iteration starts.
	Events() EventQueue

	LoopControl
}

// LoopControl exposes access to the controlling loop.
type LoopControl interface {
	// PostEvent enqueues the event for the next iteration.
	PostEvent(Event)
	// TriggerNext schedules the next iteration to be executed
	// immediately after the current iteration.
	TriggerNext()
}

// EventQueue provides access to the events of the current iteration.
type EventQueue interface {
	// Process visits the pending events in posting order. Events
	// for which fn returns true are taken and not seen by later
	// controllers.
	Process(fn func(Event) bool)
	// Len is the number of pending events.
	Len() int
}

// Stage orders controllers inside one iteration.
type Stage int

// Stages, executed in this order.
const (
	StageSense Stage = iota
	StageDecide
	StageActuate
	StageIdle

	stageCount
)

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}
