// Package ignition decides whether the vehicle may start.
//
// The decision logic is the pure Transition function. A Controller owns
// the State of one link, feeds it packets and watchdog ticks, and hands
// the resulting effects to an Executor which drives the command channel
// and the cabin indicators.
package ignition
