// Package player defines the capability interfaces of an external playback engine.
// The lifecycle controller only ever talks to an engine through Factory and Handle.
package player

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// ErrAcquisition marks every failure to produce a usable handle.
var ErrAcquisition = errors.New("player handle acquisition failed")

// ErrReleased is returned by handle operations after Release.
var ErrReleased = errors.New("player handle released")

// AcquisitionError marks err as an acquisition failure so that
// errors.Is(err, ErrAcquisition) holds while the cause is kept.
func AcquisitionError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrAcquisition)
}

// Surface identifies the render target a handle is attached to.
type Surface struct {
	WindowID int64  // Native window to embed into (0: engine opens its own window)
	Title    string // Window title when the engine owns the window
}

// Observer receives playback state changes from a handle.
// Handles compare observers with ==, so implementations must be comparable
// (pointer receivers are).
type Observer interface {
	OnPlaybackStateChanged(state PlaybackState)
}

// Handle is one live engine instance.
type Handle interface {
	// Seek positions the engine at the given item and offset.
	Seek(mediaIndex int, positionMillis int64) error
	// SetAutoPlay controls whether playback starts once ready.
	SetAutoPlay(autoPlay bool) error
	// AutoPlay returns the current autoplay flag.
	AutoPlay() (bool, error)
	// Prepare starts loading the media.
	Prepare() error
	// CurrentPosition returns the position within the current item in milliseconds.
	CurrentPosition() (int64, error)
	// CurrentMediaIndex returns the index of the current item.
	CurrentMediaIndex() (int, error)
	// AddObserver registers obs for state changes.
	AddObserver(obs Observer)
	// RemoveObserver unregisters obs.
	RemoveObserver(obs Observer)
	// Release frees the engine. Calling it more than once is harmless.
	Release() error
}

// Fullscreener is implemented by handles that own a window they can present fullscreen.
type Fullscreener interface {
	SetFullscreen(on bool) error
}

// Factory produces handles.
type Factory interface {
	Acquire(ctx context.Context, surface Surface, source media.Source, state resume.State) (Handle, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, surface Surface, source media.Source, state resume.State) (Handle, error)

// Acquire calls f.
func (f FactoryFunc) Acquire(ctx context.Context, surface Surface, source media.Source, state resume.State) (Handle, error) {
	return f(ctx, surface, source, state)
}
