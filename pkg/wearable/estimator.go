// Package wearable simulates the wrist device: it estimates BAC,
// reports it to the vehicle on a fixed cadence and reacts to vehicle
// commands.
package wearable

import (
	"sync"
	"time"

	"github.com/robotalks/alcolock/pkg/protocol"
)

// Reading is one sample of the wrist sensors.
type Reading struct {
	// BAC in g/dL.
	BAC float32
	// Confidence in percent.
	Confidence uint8
	// Worn is the skin contact sensor.
	Worn bool
}

// Estimator produces readings. How it estimates BAC is opaque to the
// rest of the system.
type Estimator interface {
	Estimate(now time.Time) Reading
}

// EstimatorFunc is the func form of Estimator.
type EstimatorFunc func(now time.Time) Reading

// Estimate implements Estimator.
func (f EstimatorFunc) Estimate(now time.Time) Reading {
	return f(now)
}

// Alert level boundaries in g/dL.
const (
	WarningBAC  float32 = 0.05
	DangerBAC   float32 = 0.08
	CriticalBAC float32 = 0.15
)

// ClassifyAlert maps a BAC to the alert level shown on the watch.
func ClassifyAlert(bac float32) protocol.AlertLevel {
	switch {
	case bac < WarningBAC:
		return protocol.AlertSafe
	case bac < DangerBAC:
		return protocol.AlertWarning
	case bac < CriticalBAC:
		return protocol.AlertDanger
	}
	return protocol.AlertCritical
}

// ConfidenceFor is the model confidence in percent for a BAC: high
// near sober, lower at extreme values.
func ConfidenceFor(bac float32) uint8 {
	switch {
	case bac < 0.02:
		return 95
	case bac < 0.1:
		return 90
	case bac < 0.2:
		return 85
	}
	return 75
}

// Manual is an Estimator set by hand, e.g. from a shell.
type Manual struct {
	lock    sync.Mutex
	reading Reading
}

// NewManual creates a Manual estimator reporting bac with the watch worn.
func NewManual(bac float32) *Manual {
	return &Manual{reading: Reading{BAC: bac, Confidence: ConfidenceFor(bac), Worn: true}}
}

// Estimate implements Estimator.
func (m *Manual) Estimate(time.Time) Reading {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.reading
}

// SetBAC sets the BAC and derives the confidence.
func (m *Manual) SetBAC(bac float32) {
	m.lock.Lock()
	m.reading.BAC, m.reading.Confidence = bac, ConfidenceFor(bac)
	m.lock.Unlock()
}

// SetWorn sets the skin contact state.
func (m *Manual) SetWorn(worn bool) {
	m.lock.Lock()
	m.reading.Worn = worn
	m.lock.Unlock()
}
