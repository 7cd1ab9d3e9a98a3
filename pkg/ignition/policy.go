package ignition

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Policy defaults, in g/dL.
const (
	DefaultDangerThreshold  float32 = 0.08
	DefaultWarningThreshold float32 = 0.06
	DefaultLinkTimeout              = 60 * time.Second

	// WarningRatio derives a warning threshold from a legal limit.
	WarningRatio float32 = 0.75
)

// Policy holds the thresholds used by Transition.
type Policy struct {
	// DangerThreshold is the legal BAC limit. Strictly above blocks.
	DangerThreshold float32 `yaml:"danger_threshold"`
	// WarningThreshold starts the warning band. Strictly above warns.
	WarningThreshold float32 `yaml:"warning_threshold"`
	// LinkTimeout is the longest allowed silence between BAC packets.
	LinkTimeout time.Duration `yaml:"link_timeout"`
}

// DefaultPolicy is the US preset.
func DefaultPolicy() Policy {
	return Policy{
		DangerThreshold:  DefaultDangerThreshold,
		WarningThreshold: DefaultWarningThreshold,
		LinkTimeout:      DefaultLinkTimeout,
	}
}

// Validate checks the thresholds are usable.
func (p Policy) Validate() error {
	if !(p.DangerThreshold > 0 && p.DangerThreshold < 1) {
		return fmt.Errorf("danger threshold out of range: %v", p.DangerThreshold)
	}
	if !(p.WarningThreshold >= 0 && p.WarningThreshold <= p.DangerThreshold) {
		return fmt.Errorf("warning threshold %v must be within [0, %v]", p.WarningThreshold, p.DangerThreshold)
	}
	if p.LinkTimeout <= 0 {
		return fmt.Errorf("link timeout must be positive: %v", p.LinkTimeout)
	}
	return nil
}

// jurisdictions maps a preset name to its legal limit.
var jurisdictions = map[string]float32{
	"us":   0.08,
	"eu":   0.05,
	"zero": 0.02,
}

// Jurisdictions lists the preset names.
func Jurisdictions() []string {
	names := make([]string, 0, len(jurisdictions))
	for name := range jurisdictions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PolicyFor builds the policy of a jurisdiction preset. The warning
// threshold is WarningRatio of the legal limit.
func PolicyFor(jurisdiction string) (Policy, error) {
	limit, ok := jurisdictions[strings.ToLower(jurisdiction)]
	if !ok {
		return Policy{}, fmt.Errorf("unknown jurisdiction %q, expect one of %s",
			jurisdiction, strings.Join(Jurisdictions(), ", "))
	}
	return Policy{
		DangerThreshold:  limit,
		WarningThreshold: limit * WarningRatio,
		LinkTimeout:      DefaultLinkTimeout,
	}, nil
}
