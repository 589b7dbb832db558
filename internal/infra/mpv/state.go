package mpv

import (
	"encoding/json"

	"github.com/osa030/reelbox/internal/app/player"
)

// observedProperties are registered with observe_property on every handle.
var observedProperties = []string{
	"idle-active",
	"paused-for-cache",
	"seeking",
	"eof-reached",
	"pause",
}

// properties is the engine state as last reported over IPC.
type properties struct {
	prepared       bool
	loaded         bool // Between file-loaded and end-file
	everLoaded     bool
	idleActive     bool
	pausedForCache bool
	seeking        bool
	eofReached     bool
	failed         bool
	paused         bool
}

// apply records a property-change event. It reports whether the name was recognised.
func (p *properties) apply(name string, data json.RawMessage) bool {
	v := decodeBool(data)
	switch name {
	case "idle-active":
		p.idleActive = v
	case "paused-for-cache":
		p.pausedForCache = v
	case "seeking":
		p.seeking = v
	case "eof-reached":
		p.eofReached = v
	case "pause":
		p.paused = v
	default:
		return false
	}
	return true
}

// event records a lifecycle event (start-file, file-loaded, end-file).
func (p *properties) event(name, reason string) bool {
	switch name {
	case "start-file":
		p.loaded = false
		p.eofReached = false
		p.failed = false
	case "file-loaded":
		p.loaded = true
		p.everLoaded = true
	case "end-file":
		p.loaded = false
		switch reason {
		case "eof":
			p.eofReached = true
		case "error":
			p.failed = true
		}
	default:
		return false
	}
	return true
}

// state derives the playback state.
func (p properties) state() player.PlaybackState {
	switch {
	case !p.prepared || p.failed:
		return player.StateIdle
	case p.eofReached:
		return player.StateEnded
	case p.idleActive && p.everLoaded && !p.loaded:
		return player.StateEnded
	case !p.loaded || p.pausedForCache || p.seeking:
		return player.StateBuffering
	default:
		return player.StateReady
	}
}

// decodeBool treats null and non-boolean data as false.
func decodeBool(data json.RawMessage) bool {
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	return v
}
