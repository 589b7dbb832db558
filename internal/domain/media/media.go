// Package media provides the media source descriptor handed to player engines.
package media

import (
	"net/url"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
)

// MimeType identifies the streaming format of a media item.
type MimeType int

const (
	MimeGeneric         MimeType = iota // Progressive file or anything the engine sniffs itself
	MimeDASH                            // MPEG-DASH manifest (.mpd)
	MimeHLS                             // HLS playlist (.m3u8)
	MimeSmoothStreaming                 // Microsoft Smooth Streaming manifest
)

// String returns the string representation of the MIME type.
func (m MimeType) String() string {
	switch m {
	case MimeGeneric:
		return "generic"
	case MimeDASH:
		return "dash"
	case MimeHLS:
		return "hls"
	case MimeSmoothStreaming:
		return "smooth_streaming"
	default:
		return "unknown"
	}
}

// ContentType returns the canonical MIME string for the type.
// Generic sources have no fixed content type and return "".
func (m MimeType) ContentType() string {
	switch m {
	case MimeDASH:
		return "application/dash+xml"
	case MimeHLS:
		return "application/x-mpegURL"
	case MimeSmoothStreaming:
		return "application/vnd.ms-sstr+xml"
	default:
		return ""
	}
}

// IsAdaptive reports whether the type is an adaptive-streaming manifest.
func (m MimeType) IsAdaptive() bool {
	return m == MimeDASH || m == MimeHLS || m == MimeSmoothStreaming
}

// ParseMimeType accepts either a short name ("dash", "hls", "ss", "generic")
// or a MIME string. The empty string parses as MimeGeneric.
func ParseMimeType(s string) (MimeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "generic", "progressive":
		return MimeGeneric, nil
	case "dash", "mpd", "application/dash+xml":
		return MimeDASH, nil
	case "hls", "m3u8", "application/x-mpegurl", "application/vnd.apple.mpegurl":
		return MimeHLS, nil
	case "ss", "smooth", "smooth_streaming", "smoothstreaming", "application/vnd.ms-sstr+xml":
		return MimeSmoothStreaming, nil
	default:
		return MimeGeneric, errors.Newf("unsupported mime type: %q", s)
	}
}

// InferMimeType guesses the streaming format from the URI path.
// Unknown extensions fall back to MimeGeneric.
func InferMimeType(uri string) MimeType {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		p = u.Path
	}
	lower := strings.ToLower(p)

	// Smooth Streaming manifests are addressed as <name>.ism/Manifest
	if strings.HasSuffix(lower, "/manifest") && strings.Contains(lower, ".ism") {
		return MimeSmoothStreaming
	}

	switch path.Ext(lower) {
	case ".mpd":
		return MimeDASH
	case ".m3u8":
		return MimeHLS
	case ".ism", ".isml":
		return MimeSmoothStreaming
	default:
		return MimeGeneric
	}
}

// Source describes the single media item a session plays.
type Source struct {
	URI      string
	MimeType MimeType
}

// NewSource builds a source, inferring the MIME type when mimeType is empty.
func NewSource(uri, mimeType string) (Source, error) {
	if strings.TrimSpace(mimeType) == "" {
		return Source{URI: uri, MimeType: InferMimeType(uri)}, nil
	}
	mt, err := ParseMimeType(mimeType)
	if err != nil {
		return Source{}, err
	}
	return Source{URI: uri, MimeType: mt}, nil
}

// Validate checks that the source can be handed to an engine.
// Adaptive sources must be absolute URLs; generic sources may also be local paths.
func (s Source) Validate() error {
	if strings.TrimSpace(s.URI) == "" {
		return errors.New("media uri is required")
	}
	u, err := url.Parse(s.URI)
	if err != nil {
		return errors.Wrap(err, "invalid media uri")
	}
	if s.MimeType.IsAdaptive() {
		if u.Scheme == "" || u.Host == "" {
			return errors.Newf("adaptive source %s requires an absolute url: %s", s.MimeType, s.URI)
		}
	}
	return nil
}
