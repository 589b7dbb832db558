package lifecycle

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultActivationThreshold is the platform version from which the host
// keeps its surface alive between visibility start and stop.
const DefaultActivationThreshold = 24

// Mode selects how signals map to controller operations.
type Mode int

const (
	// ModeSplit acquires on visibility start and releases on visibility stop
	// when the platform version is at or above the threshold, and falls back to
	// resume/pause below it.
	ModeSplit Mode = iota
	// ModeLazy always acquires on resume and releases on pause.
	ModeLazy
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSplit:
		return "split"
	case ModeLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "split":
		return ModeSplit, nil
	case "lazy":
		return ModeLazy, nil
	default:
		return 0, errors.Newf("unknown lifecycle policy: %q", s)
	}
}

// Plan is what a signal asks the controller to do.
type Plan struct {
	Activate   bool
	Present    bool // Run the presentation side effect after a successful activation
	Deactivate bool
}

// String returns a compact description of the plan.
func (p Plan) String() string {
	var parts []string
	if p.Activate {
		parts = append(parts, "activate")
	}
	if p.Present {
		parts = append(parts, "present")
	}
	if p.Deactivate {
		parts = append(parts, "deactivate")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Policy maps host signals to plans.
type Policy struct {
	Mode            Mode
	PlatformVersion int
	Threshold       int
}

// eager reports whether sessions follow visibility start/stop.
func (p Policy) eager() bool {
	return p.Mode == ModeSplit && p.PlatformVersion >= p.Threshold
}

// Plan returns the plan for sig given whether a session is active.
func (p Policy) Plan(sig Signal, active bool) Plan {
	eager := p.eager()

	switch sig {
	case SignalVisibilityStart:
		if eager {
			return Plan{Activate: true}
		}
	case SignalForegroundResume:
		if !eager || !active {
			return Plan{Activate: true, Present: true}
		}
	case SignalBackgroundPause:
		if !eager {
			return Plan{Deactivate: true}
		}
	case SignalVisibilityStop:
		if eager {
			return Plan{Deactivate: true}
		}
	}
	return Plan{}
}

// NewPolicy builds a policy from its configured form. A non-positive
// threshold selects DefaultActivationThreshold.
func NewPolicy(mode string, platformVersion, threshold int) (Policy, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return Policy{}, err
	}
	if threshold <= 0 {
		threshold = DefaultActivationThreshold
	}
	return Policy{Mode: m, PlatformVersion: platformVersion, Threshold: threshold}, nil
}
