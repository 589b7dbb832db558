// Package sim provides an in-process simulated playback engine.
// It behaves like a real engine from the controller's point of view
// (buffering, ready, ended, position advancing with wall time) without decoding anything.
package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// Settings configures the simulated engine.
type Settings struct {
	BufferingMs int   `yaml:"buffering_ms" mapstructure:"buffering_ms" default:"500" validate:"gte=0,lte=60000"`
	DurationMs  int64 `yaml:"duration_ms" mapstructure:"duration_ms" default:"600000" validate:"gt=0"`
	Items       int   `yaml:"items" mapstructure:"items" default:"1" validate:"gte=1"`
	FailAcquire bool  `yaml:"fail_acquire" mapstructure:"fail_acquire"`
}

// Factory creates simulated handles.
type Factory struct {
	settings    Settings
	now         func() time.Time
	outstanding atomic.Int64
}

// NewFactory decodes settings and creates a factory.
func NewFactory(settings map[string]any) (*Factory, error) {
	var s Settings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	zlog.Debug().Msgf("sim: factory settings: %+v", s)
	return &Factory{settings: s, now: time.Now}, nil
}

// Outstanding returns the number of acquired but unreleased handles.
func (f *Factory) Outstanding() int {
	return int(f.outstanding.Load())
}

// Probe describes the simulated engine. It never fails.
func (f *Factory) Probe(ctx context.Context) (string, error) {
	return fmt.Sprintf("simulated engine (buffering=%dms duration=%dms items=%d)",
		f.settings.BufferingMs, f.settings.DurationMs, f.settings.Items), nil
}

// Acquire implements player.Factory.
func (f *Factory) Acquire(ctx context.Context, surface player.Surface, source media.Source, state resume.State) (player.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.settings.FailAcquire {
		return nil, errors.New("simulated engine refused to start")
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}

	f.outstanding.Add(1)
	zlog.Debug().Msgf("sim: handle acquired: uri=%s type=%s surface=%q outstanding=%d",
		source.URI, source.MimeType, surface.Title, f.Outstanding())

	return &Handle{
		factory:   f,
		settings:  f.settings,
		now:       f.now,
		index:     state.MediaIndex,
		baseMs:    state.PositionMillis,
		autoPlay:  state.AutoPlay,
		state:     player.StateIdle,
		observers: make([]player.Observer, 0),
	}, nil
}

// Handle is a simulated engine instance.
type Handle struct {
	mu       sync.Mutex
	factory  *Factory
	settings Settings
	now      func() time.Time

	index    int
	baseMs   int64     // Position when the clock was last frozen
	since    time.Time // Zero unless the position is advancing
	autoPlay bool

	state      player.PlaybackState
	prepared   bool
	released   bool
	fullscreen bool
	timer      *time.Timer

	observers []player.Observer
}

var (
	_ player.Handle       = (*Handle)(nil)
	_ player.Fullscreener = (*Handle)(nil)
)

// Seek implements player.Handle.
func (h *Handle) Seek(mediaIndex int, positionMillis int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return player.ErrReleased
	}
	if mediaIndex < 0 {
		return errors.Newf("media index must be >= 0: %d", mediaIndex)
	}
	if mediaIndex >= h.settings.Items {
		// A saved state may outlive a config with fewer items.
		zlog.Warn().Msgf("sim: media index %d beyond %d items, using last item", mediaIndex, h.settings.Items)
		mediaIndex = h.settings.Items - 1
	}
	if positionMillis < 0 {
		positionMillis = 0
	}
	if positionMillis > h.settings.DurationMs {
		positionMillis = h.settings.DurationMs
	}

	h.index = mediaIndex
	h.baseMs = positionMillis
	if !h.since.IsZero() {
		h.since = h.now()
	}
	if h.state == player.StateReady {
		h.scheduleEndLocked()
	}
	return nil
}

// SetAutoPlay implements player.Handle.
func (h *Handle) SetAutoPlay(autoPlay bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return player.ErrReleased
	}
	h.freezeLocked()
	h.autoPlay = autoPlay
	if h.state == player.StateReady {
		h.startClockLocked()
	}
	return nil
}

// AutoPlay implements player.Handle.
func (h *Handle) AutoPlay() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return false, player.ErrReleased
	}
	return h.autoPlay, nil
}

// Prepare implements player.Handle.
// The handle reports Buffering immediately and Ready after the configured delay.
func (h *Handle) Prepare() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return player.ErrReleased
	}
	if h.prepared {
		h.mu.Unlock()
		return nil
	}
	h.prepared = true
	h.state = player.StateBuffering
	h.timer = time.AfterFunc(time.Duration(h.settings.BufferingMs)*time.Millisecond, h.onBuffered)
	observers := h.snapshotObserversLocked()
	h.mu.Unlock()

	notify(observers, player.StateBuffering)
	return nil
}

// CurrentPosition implements player.Handle.
func (h *Handle) CurrentPosition() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, player.ErrReleased
	}
	return h.positionLocked(), nil
}

// CurrentMediaIndex implements player.Handle.
func (h *Handle) CurrentMediaIndex() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, player.ErrReleased
	}
	return h.index, nil
}

// AddObserver implements player.Handle.
func (h *Handle) AddObserver(obs player.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released || obs == nil {
		return
	}
	h.observers = append(h.observers, obs)
}

// RemoveObserver implements player.Handle.
func (h *Handle) RemoveObserver(obs player.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, o := range h.observers {
		if o == obs {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			return
		}
	}
}

// SetFullscreen implements player.Fullscreener.
func (h *Handle) SetFullscreen(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return player.ErrReleased
	}
	h.fullscreen = on
	return nil
}

// Fullscreen reports the presentation state.
func (h *Handle) Fullscreen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fullscreen
}

// State returns the current playback state.
func (h *Handle) State() player.PlaybackState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Release implements player.Handle.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.released = true
	h.observers = nil
	h.state = player.StateIdle
	h.factory.outstanding.Add(-1)

	zlog.Debug().Msgf("sim: handle released: outstanding=%d", h.factory.Outstanding())
	return nil
}

func (h *Handle) onBuffered() {
	h.mu.Lock()
	if h.released || h.state != player.StateBuffering {
		h.mu.Unlock()
		return
	}
	h.state = player.StateReady
	h.startClockLocked()
	observers := h.snapshotObserversLocked()
	h.mu.Unlock()

	notify(observers, player.StateReady)
}

func (h *Handle) onEnded() {
	h.mu.Lock()
	if h.released || h.state != player.StateReady {
		h.mu.Unlock()
		return
	}
	if h.positionLocked() < h.settings.DurationMs {
		// Rescheduled by a seek after the timer fired
		h.mu.Unlock()
		return
	}
	h.freezeLocked()
	h.state = player.StateEnded
	observers := h.snapshotObserversLocked()
	h.mu.Unlock()

	notify(observers, player.StateEnded)
}

// startClockLocked starts advancing the position if playback should run.
// Must be called with lock held.
func (h *Handle) startClockLocked() {
	if !h.autoPlay || h.state != player.StateReady {
		return
	}
	if h.since.IsZero() {
		h.since = h.now()
	}
	h.scheduleEndLocked()
}

// scheduleEndLocked (re)arms the end-of-media timer.
// Must be called with lock held.
func (h *Handle) scheduleEndLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if h.since.IsZero() {
		return
	}
	remaining := time.Duration(h.settings.DurationMs-h.positionLocked()) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	h.timer = time.AfterFunc(remaining, h.onEnded)
}

// freezeLocked stops the position clock, keeping the accumulated position.
// Must be called with lock held.
func (h *Handle) freezeLocked() {
	h.baseMs = h.positionLocked()
	h.since = time.Time{}
	if h.timer != nil && h.state == player.StateReady {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *Handle) positionLocked() int64 {
	pos := h.baseMs
	if !h.since.IsZero() {
		pos += h.now().Sub(h.since).Milliseconds()
	}
	if pos > h.settings.DurationMs {
		pos = h.settings.DurationMs
	}
	return pos
}

func (h *Handle) snapshotObserversLocked() []player.Observer {
	result := make([]player.Observer, len(h.observers))
	copy(result, h.observers)
	return result
}

func notify(observers []player.Observer, state player.PlaybackState) {
	for _, obs := range observers {
		obs.OnPlaybackStateChanged(state)
	}
}
