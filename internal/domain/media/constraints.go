package media

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// VideoSizeLimit caps the video renditions an engine may select.
// Zero values mean unbounded.
type VideoSizeLimit struct {
	MaxWidth  int
	MaxHeight int
}

// Standard-definition ceiling used by common track selectors.
var SDLimit = VideoSizeLimit{MaxWidth: 1279, MaxHeight: 719}

// Unbounded reports whether no limit applies.
func (l VideoSizeLimit) Unbounded() bool {
	return l.MaxWidth <= 0 && l.MaxHeight <= 0
}

// Allows reports whether a rendition of the given size is selectable.
func (l VideoSizeLimit) Allows(width, height int) bool {
	if l.MaxWidth > 0 && width > l.MaxWidth {
		return false
	}
	if l.MaxHeight > 0 && height > l.MaxHeight {
		return false
	}
	return true
}

// ParseVideoSizeLimit parses a preset name ("sd", "none").
func ParseVideoSizeLimit(s string) (VideoSizeLimit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "unbounded":
		return VideoSizeLimit{}, nil
	case "sd":
		return SDLimit, nil
	default:
		return VideoSizeLimit{}, errors.Newf("unknown video size preset: %q", s)
	}
}
