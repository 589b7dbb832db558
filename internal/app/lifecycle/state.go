// Package lifecycle provides the playback-session lifecycle controller.
// It pairs every player handle acquisition with exactly one release and
// carries the playback position across host visibility transitions.
package lifecycle

// State represents the controller state.
type State int

const (
	StateInactive State = iota // No handle held (initial and terminal)
	StateActive                // A handle is held and prepared
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}
