package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// ErrClosed is returned by activations attempted after Close. It also
// satisfies errors.Is(err, player.ErrAcquisition).
var ErrClosed = errors.New("lifecycle controller closed")

// Store persists the resume state between controller instances.
type Store interface {
	// Load returns the saved state; ok is false when nothing was saved yet.
	Load() (state resume.State, ok bool, err error)
	Save(state resume.State) error
}

// Presenter runs the one-shot presentation side effect on a freshly activated handle.
type Presenter interface {
	Present(h player.Handle) error
}

// FullscreenPresenter switches handles that own a window to fullscreen.
type FullscreenPresenter struct{}

// Present implements Presenter.
func (FullscreenPresenter) Present(h player.Handle) error {
	if fs, ok := h.(player.Fullscreener); ok {
		return fs.SetFullscreen(true)
	}
	return nil
}

// Config holds controller configuration.
type Config struct {
	Source    media.Source
	Surface   player.Surface
	Policy    Policy
	Presenter Presenter // Optional
	Store     Store     // Optional

	// OnPlaybackState is an optional diagnostic hook run for every engine
	// state change. Panics inside it are recovered.
	OnPlaybackState func(sessionID string, state player.PlaybackState)
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	SessionID string
	Resume    resume.State
	Source    media.Source
}

// Controller owns at most one player handle at a time.
type Controller struct {
	mu sync.Mutex

	factory player.Factory
	config  Config

	// Session state
	state     State
	handle    player.Handle
	observer  *stateObserver
	sessionID string
	resume    resume.State
	closing   bool // Set by Close; no further activation

	// Events
	eventMu sync.RWMutex
	eventCh chan Event
	closed  bool
}

// NewController creates a new lifecycle controller in the inactive state.
// The resume state is loaded from cfg.Store when one is configured.
func NewController(factory player.Factory, cfg Config) *Controller {
	c := &Controller{
		factory: factory,
		config:  cfg,
		state:   StateInactive,
		resume:  resume.Default(),
		eventCh: make(chan Event, 64),
	}

	if cfg.Store != nil {
		st, ok, err := cfg.Store.Load()
		switch {
		case err != nil:
			zlog.Warn().Msgf("lifecycle: failed to load resume state, starting from default: %v", err)
		case !ok:
			zlog.Debug().Msg("lifecycle: no saved resume state")
		case st.Validate() != nil:
			zlog.Warn().Msgf("lifecycle: ignoring invalid saved resume state: %+v", st)
		default:
			zlog.Info().Msgf("lifecycle: restored resume state: index=%d position=%dms auto_play=%v",
				st.MediaIndex, st.PositionMillis, st.AutoPlay)
			c.resume = st
		}
	}

	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Activate acquires a handle and starts a session.
// It is a no-op when a session is already active. On failure the controller
// stays inactive, the resume state is unchanged and the returned error
// satisfies errors.Is(err, player.ErrAcquisition).
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.activateLocked(ctx)
}

// Deactivate captures the resume state and releases the handle.
// It is a no-op when no session is active and never fails.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deactivateLocked()
}

// HandleSignal applies the configured policy to a host lifecycle signal.
// Only activation failures are returned.
func (c *Controller) HandleSignal(ctx context.Context, sig Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan := c.config.Policy.Plan(sig, c.state == StateActive)
	zlog.Debug().Msgf("lifecycle: signal received: signal=%s state=%s plan=%s", sig, c.state, plan)

	if plan.Deactivate {
		c.deactivateLocked()
	}

	if plan.Activate {
		wasActive := c.state == StateActive
		if err := c.activateLocked(ctx); err != nil {
			return errors.Wrapf(err, "signal %s", sig)
		}
		if plan.Present && !wasActive {
			c.presentLocked()
		}
	}

	return nil
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ResumeState returns the resume state that the next activation will apply.
func (c *Controller) ResumeState() resume.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resume
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		SessionID: c.sessionID,
		Resume:    c.resume,
		Source:    c.config.Source,
	}
}

// Close releases any active session and closes the event channel.
// Later activations fail with ErrClosed without acquiring a handle.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closing = true
	c.deactivateLocked()
	c.mu.Unlock()

	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
}

func (c *Controller) activateLocked(ctx context.Context) error {
	if c.closing {
		return errors.Mark(ErrClosed, player.ErrAcquisition)
	}
	if c.state == StateActive {
		zlog.Debug().Msgf("lifecycle: activate ignored, session already active: session=%s", c.sessionID)
		return nil
	}

	st := c.resume
	h, err := c.factory.Acquire(ctx, c.config.Surface, c.config.Source, st)
	if err == nil && h == nil {
		err = errors.New("factory returned no handle")
	}
	if err != nil {
		err = player.AcquisitionError(err, "failed to acquire player handle")
		c.failLocked(err)
		return err
	}

	sessionID := uuid.New().String()
	obs := &stateObserver{sessionID: sessionID, controller: c}

	if err := configure(h, st, obs); err != nil {
		h.RemoveObserver(obs)
		if relErr := h.Release(); relErr != nil {
			zlog.Warn().Msgf("lifecycle: failed to release unconfigured handle: %v", relErr)
		}
		err = player.AcquisitionError(err, "failed to configure player handle")
		c.failLocked(err)
		return err
	}

	c.handle = h
	c.observer = obs
	c.sessionID = sessionID
	c.state = StateActive

	zlog.Info().Msgf("lifecycle: session activated: session=%s index=%d position=%dms auto_play=%v",
		sessionID, st.MediaIndex, st.PositionMillis, st.AutoPlay)

	c.emit(Event{
		Type:      EventActivated,
		SessionID: sessionID,
		Resume:    st,
	})
	return nil
}

// configure applies the resume state, registers the observer and prepares the handle.
func configure(h player.Handle, st resume.State, obs player.Observer) error {
	if err := h.Seek(st.MediaIndex, st.PositionMillis); err != nil {
		return errors.Wrap(err, "seek")
	}
	if err := h.SetAutoPlay(st.AutoPlay); err != nil {
		return errors.Wrap(err, "set auto play")
	}
	h.AddObserver(obs)
	if err := h.Prepare(); err != nil {
		return errors.Wrap(err, "prepare")
	}
	return nil
}

func (c *Controller) failLocked(err error) {
	zlog.Error().Msgf("lifecycle: activation failed: %v", err)
	c.emit(Event{
		Type:   EventAcquisitionFailed,
		Resume: c.resume,
		Err:    err,
	})
}

func (c *Controller) deactivateLocked() {
	if c.state != StateActive {
		zlog.Debug().Msg("lifecycle: deactivate ignored, no active session")
		return
	}

	h := c.handle
	st := c.resume

	if pos, err := h.CurrentPosition(); err != nil {
		zlog.Warn().Msgf("lifecycle: failed to read position, keeping %dms: %v", st.PositionMillis, err)
	} else if pos >= 0 {
		st.PositionMillis = pos
	}
	if idx, err := h.CurrentMediaIndex(); err != nil {
		zlog.Warn().Msgf("lifecycle: failed to read media index, keeping %d: %v", st.MediaIndex, err)
	} else if idx >= 0 {
		st.MediaIndex = idx
	}
	if auto, err := h.AutoPlay(); err != nil {
		zlog.Warn().Msgf("lifecycle: failed to read auto play, keeping %v: %v", st.AutoPlay, err)
	} else {
		st.AutoPlay = auto
	}

	h.RemoveObserver(c.observer)
	if err := h.Release(); err != nil {
		zlog.Warn().Msgf("lifecycle: release reported an error: session=%s error=%v", c.sessionID, err)
	}

	sessionID := c.sessionID
	c.handle = nil
	c.observer = nil
	c.sessionID = ""
	c.state = StateInactive
	c.resume = st

	zlog.Info().Msgf("lifecycle: session deactivated: session=%s index=%d position=%dms auto_play=%v",
		sessionID, st.MediaIndex, st.PositionMillis, st.AutoPlay)

	c.emit(Event{
		Type:      EventDeactivated,
		SessionID: sessionID,
		Resume:    st,
	})

	if c.config.Store != nil {
		if err := c.config.Store.Save(st); err != nil {
			zlog.Warn().Msgf("lifecycle: failed to save resume state: %v", err)
		}
	}
}

// presentLocked runs the presentation side effect on the active handle.
// Must be called with lock held.
func (c *Controller) presentLocked() {
	if c.config.Presenter == nil || c.handle == nil {
		return
	}
	if err := c.config.Presenter.Present(c.handle); err != nil {
		zlog.Warn().Msgf("lifecycle: presentation failed: session=%s error=%v", c.sessionID, err)
		return
	}
	c.emit(Event{
		Type:      EventPresented,
		SessionID: c.sessionID,
	})
}

// emit sends an event without blocking. Events are dropped when the
// channel is full or closed.
func (c *Controller) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	c.eventMu.RLock()
	defer c.eventMu.RUnlock()

	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		zlog.Debug().Msgf("lifecycle: event dropped, channel full: type=%s", e.Type)
	}
}

// stateObserver forwards engine state changes for one session.
type stateObserver struct {
	sessionID  string
	controller *Controller
}

// OnPlaybackStateChanged implements player.Observer. It never takes the
// controller lock and never lets a panic escape.
func (o *stateObserver) OnPlaybackStateChanged(state player.PlaybackState) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Warn().Msgf("lifecycle: recovered panic in playback observer: session=%s state=%s panic=%v",
				o.sessionID, state, r)
		}
	}()

	zlog.Debug().Msgf("lifecycle: playback state changed: session=%s state=%s", o.sessionID, state)

	o.controller.emit(Event{
		Type:          EventPlaybackStateChanged,
		SessionID:     o.sessionID,
		PlaybackState: state,
	})

	if hook := o.controller.config.OnPlaybackState; hook != nil {
		hook(o.sessionID, state)
	}
}
