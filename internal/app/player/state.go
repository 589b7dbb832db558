package player

// PlaybackState represents the engine's playback state.
type PlaybackState int

const (
	StateIdle      PlaybackState = iota // Nothing loaded or loading failed
	StateBuffering                      // Waiting for data before it can play
	StateReady                          // Able to play from the current position
	StateEnded                          // Reached the end of the media
)

// String returns the string representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
