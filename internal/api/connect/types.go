package connect

import (
	"github.com/osa030/reelbox/internal/domain/resume"
)

const (
	// LifecycleServiceName is the fully-qualified name of the lifecycle service.
	LifecycleServiceName = "reelbox.v1.LifecycleService"

	// SignalProcedure dispatches a host lifecycle signal.
	SignalProcedure = "/" + LifecycleServiceName + "/Signal"
	// StatusProcedure returns the controller status.
	StatusProcedure = "/" + LifecycleServiceName + "/Status"
	// WatchProcedure streams lifecycle notifications.
	WatchProcedure = "/" + LifecycleServiceName + "/Watch"
)

// SignalRequest names the signal to dispatch ("visibility_start" or a short form such as "resume").
type SignalRequest struct {
	Signal string `json:"signal"`
}

// SignalResponse reports the status after the signal was handled.
type SignalResponse struct {
	Signal string         `json:"signal"`
	Status StatusResponse `json:"status"`
}

// StatusRequest is empty.
type StatusRequest struct{}

// StatusResponse is a snapshot of the controller.
type StatusResponse struct {
	State             string       `json:"state"`
	SessionID         string       `json:"session_id,omitempty"`
	Resume            resume.State `json:"resume"`
	MediaURI          string       `json:"media_uri"`
	MimeType          string       `json:"mime_type"`
	Policy            string       `json:"policy"`
	PlatformVersion   int          `json:"platform_version"`
	Threshold         int          `json:"activation_threshold"`
	LastPlaybackState string       `json:"last_playback_state,omitempty"`
}

// WatchRequest opens a notification stream.
type WatchRequest struct {
	History bool `json:"history"` // Replay recorded notifications before live ones
}
