package wearable

import (
	"sort"
	"time"
)

// Step holds a reading for a while.
type Step struct {
	Name     string
	BAC      float32
	Worn     bool
	Duration time.Duration
}

// Scenario is a scripted sequence of readings.
type Scenario struct {
	Name  string
	Title string
	Steps []Step
}

// Duration is the total length of the scenario.
func (s *Scenario) Duration() time.Duration {
	var d time.Duration
	for _, step := range s.Steps {
		d += step.Duration
	}
	return d
}

// StepAt returns the step active at elapsed. After the end the last
// step stays active.
func (s *Scenario) StepAt(elapsed time.Duration) (int, Step) {
	for n, step := range s.Steps {
		if elapsed < step.Duration {
			return n, step
		}
		elapsed -= step.Duration
	}
	n := len(s.Steps) - 1
	return n, s.Steps[n]
}

func sec(n int) time.Duration { return time.Duration(n) * time.Second }

// Scenarios are the built-in test scripts.
var Scenarios = map[string]*Scenario{
	"sober": {
		Name: "sober", Title: "Sober driver",
		Steps: []Step{
			{"Baseline, normal activity", 0.02, true, sec(30)},
			{"After exercise", 0.015, true, sec(20)},
			{"Resting", 0.01, true, sec(20)},
		},
	},
	"intoxicated": {
		Name: "intoxicated", Title: "Intoxicated driver",
		Steps: []Step{
			{"Initial state, sober", 0.02, true, sec(20)},
			{"After 1 drink", 0.05, true, sec(20)},
			{"After 2 drinks", 0.09, true, sec(30)},
			{"Peak intoxication", 0.12, true, sec(20)},
		},
	},
	"tamper": {
		Name: "tamper", Title: "Tamper detection",
		Steps: []Step{
			{"Normal operation", 0.03, true, sec(20)},
			{"Watch removed", 0.03, false, sec(30)},
			{"Watch worn again", 0.03, true, sec(20)},
		},
	},
	"drinking": {
		Name: "drinking", Title: "Realistic drinking session",
		Steps: []Step{
			{"Baseline, sober", 0.01, true, sec(15)},
			{"One drink consumed", 0.04, true, sec(15)},
			{"Two drinks consumed", 0.07, true, sec(15)},
			{"Three drinks, over limit", 0.10, true, sec(20)},
			{"Peak intoxication", 0.12, true, sec(15)},
			{"Metabolizing", 0.09, true, sec(15)},
			{"Sobering up", 0.06, true, sec(15)},
		},
	},
	"edge": {
		Name: "edge", Title: "Safety edge cases",
		Steps: []Step{
			{"Normal, safe", 0.03, true, sec(15)},
			{"Approaching limit", 0.075, true, sec(20)},
			{"Just over limit", 0.085, true, sec(20)},
			{"Critical level", 0.15, true, sec(20)},
		},
	},
}

// ScenarioNames lists the built-in scenarios.
func ScenarioNames() []string {
	names := make([]string, 0, len(Scenarios))
	for name := range Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scripted plays a Scenario from Start.
type Scripted struct {
	Scenario *Scenario
	Start    time.Time
}

// Estimate implements Estimator.
func (s *Scripted) Estimate(now time.Time) Reading {
	_, step := s.Scenario.StepAt(now.Sub(s.Start))
	return Reading{BAC: step.BAC, Confidence: ConfidenceFor(step.BAC), Worn: step.Worn}
}

// Done reports whether the scenario has played to the end at now.
func (s *Scripted) Done(now time.Time) bool {
	return now.Sub(s.Start) >= s.Scenario.Duration()
}
