package ignition

import "time"

// Watchdog detects silence on the link. It must be polled on a fixed
// cadence; it does not run a timer itself.
type Watchdog struct {
	Timeout time.Duration

	armedAt time.Time
	armed   bool
}

// Arm restarts the watchdog from now.
func (w *Watchdog) Arm(now time.Time) {
	w.armedAt, w.armed = now, true
}

// Disarm stops the watchdog until the next Arm.
func (w *Watchdog) Disarm() {
	w.armed = false
}

// Armed reports whether the watchdog is running.
func (w *Watchdog) Armed() bool {
	return w.armed
}

// Expired reports whether strictly more than Timeout has elapsed since
// the last Arm. An unarmed watchdog never expires.
func (w *Watchdog) Expired(now time.Time) bool {
	return w.armed && now.Sub(w.armedAt) > w.Timeout
}

// Deadline is the last instant before the watchdog expires.
func (w *Watchdog) Deadline() (time.Time, bool) {
	return w.armedAt.Add(w.Timeout), w.armed
}
