// Package resume provides the playback position snapshot carried across sessions.
package resume

import (
	"time"

	"github.com/cockroachdb/errors"
)

// State is the snapshot captured when a session is torn down and applied
// when the next one starts.
type State struct {
	MediaIndex     int   `yaml:"media_index" json:"media_index"`         // Index of the current item in the engine's playlist
	PositionMillis int64 `yaml:"position_millis" json:"position_millis"` // Position within that item
	AutoPlay       bool  `yaml:"auto_play" json:"auto_play"`             // Start playing as soon as the engine is ready
}

// Default returns the state of a session that has never played.
func Default() State {
	return State{MediaIndex: 0, PositionMillis: 0, AutoPlay: true}
}

// Position returns the position as a duration.
func (s State) Position() time.Duration {
	return time.Duration(s.PositionMillis) * time.Millisecond
}

// Validate checks the non-negativity invariants.
func (s State) Validate() error {
	if s.MediaIndex < 0 {
		return errors.Newf("media index must be >= 0: %d", s.MediaIndex)
	}
	if s.PositionMillis < 0 {
		return errors.Newf("position must be >= 0: %dms", s.PositionMillis)
	}
	return nil
}
