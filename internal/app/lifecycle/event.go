package lifecycle

import (
	"time"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// EventType represents a lifecycle event type.
type EventType int

const (
	EventActivated            EventType = iota // Handle acquired and prepared
	EventDeactivated                           // Handle released, resume state captured
	EventAcquisitionFailed                     // Activation failed, controller stayed inactive
	EventPlaybackStateChanged                  // Engine reported a playback state
	EventPresented                             // Presentation side effect ran
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventActivated:
		return "activated"
	case EventDeactivated:
		return "deactivated"
	case EventAcquisitionFailed:
		return "acquisition_failed"
	case EventPlaybackStateChanged:
		return "playback_state_changed"
	case EventPresented:
		return "presented"
	default:
		return "unknown"
	}
}

// Event represents a lifecycle event.
type Event struct {
	Type          EventType
	SessionID     string               // Activation the event belongs to (empty for failed activations)
	PlaybackState player.PlaybackState // Set for EventPlaybackStateChanged
	Resume        resume.State         // Resume state applied (activated) or captured (deactivated)
	Err           error                // Set for EventAcquisitionFailed
	Time          time.Time
}
