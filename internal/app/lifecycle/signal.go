package lifecycle

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Signal is a host lifecycle notification.
type Signal int

const (
	SignalVisibilityStart  Signal = iota // Host surface became visible
	SignalForegroundResume               // Host came to the foreground
	SignalBackgroundPause                // Host left the foreground
	SignalVisibilityStop                 // Host surface is no longer visible
)

// Signals lists every signal in the order hosts deliver them over a full cycle.
var Signals = []Signal{
	SignalVisibilityStart,
	SignalForegroundResume,
	SignalBackgroundPause,
	SignalVisibilityStop,
}

// String returns the string representation of the signal.
func (s Signal) String() string {
	switch s {
	case SignalVisibilityStart:
		return "visibility_start"
	case SignalForegroundResume:
		return "foreground_resume"
	case SignalBackgroundPause:
		return "background_pause"
	case SignalVisibilityStop:
		return "visibility_stop"
	default:
		return "unknown"
	}
}

// ParseSignal parses a signal name. Short forms ("start", "resume", "pause", "stop") are accepted.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "visibility_start", "start":
		return SignalVisibilityStart, nil
	case "foreground_resume", "resume":
		return SignalForegroundResume, nil
	case "background_pause", "pause":
		return SignalBackgroundPause, nil
	case "visibility_stop", "stop":
		return SignalVisibilityStop, nil
	default:
		return 0, errors.Newf("unknown lifecycle signal: %q", s)
	}
}
