package lifecycle

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// fakeFactory hands out fakeHandles and tracks how many are outstanding.
type fakeFactory struct {
	mu          sync.Mutex
	acquireErr  error
	configure   func(h *fakeHandle) // Runs on every new handle before it is returned
	handles     []*fakeHandle
	acquired    int
	outstanding int
	maxOutstand int
	lastSurface player.Surface
	lastSource  media.Source
}

func (f *fakeFactory) Acquire(ctx context.Context, surface player.Surface, source media.Source, state resume.State) (player.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.acquireErr != nil {
		return nil, f.acquireErr
	}

	h := &fakeHandle{factory: f}
	if f.configure != nil {
		f.configure(h)
	}
	f.handles = append(f.handles, h)
	f.acquired++
	f.outstanding++
	if f.outstanding > f.maxOutstand {
		f.maxOutstand = f.outstanding
	}
	f.lastSurface = surface
	f.lastSource = source
	return h, nil
}

func (f *fakeFactory) released() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outstanding--
}

func (f *fakeFactory) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

func (f *fakeFactory) Acquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

func (f *fakeFactory) Last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

// fakeHandle records the calls made by the controller.
type fakeHandle struct {
	mu      sync.Mutex
	factory *fakeFactory

	// Scripted engine state
	position   int64
	index      int
	autoPlay   bool
	prepareErr error
	readErr    error
	releaseErr error

	// Recorded calls
	calls        []string
	seekIndex    int
	seekPosition int64
	observers    []player.Observer
	releases     int
	fullscreen   bool
}

var (
	_ player.Handle       = (*fakeHandle)(nil)
	_ player.Fullscreener = (*fakeHandle)(nil)
)

func (h *fakeHandle) record(call string) {
	h.calls = append(h.calls, call)
}

func (h *fakeHandle) Seek(mediaIndex int, positionMillis int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("seek")
	h.seekIndex = mediaIndex
	h.seekPosition = positionMillis
	h.index = mediaIndex
	h.position = positionMillis
	return nil
}

func (h *fakeHandle) SetAutoPlay(autoPlay bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("set_auto_play")
	h.autoPlay = autoPlay
	return nil
}

func (h *fakeHandle) AutoPlay() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autoPlay, h.readErr
}

func (h *fakeHandle) Prepare() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("prepare")
	return h.prepareErr
}

func (h *fakeHandle) CurrentPosition() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position, h.readErr
}

func (h *fakeHandle) CurrentMediaIndex() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index, h.readErr
}

func (h *fakeHandle) AddObserver(obs player.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("add_observer")
	h.observers = append(h.observers, obs)
}

func (h *fakeHandle) RemoveObserver(obs player.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("remove_observer")
	for i, o := range h.observers {
		if o == obs {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			return
		}
	}
}

func (h *fakeHandle) Release() error {
	h.mu.Lock()
	h.record("release")
	h.releases++
	first := h.releases == 1
	err := h.releaseErr
	h.mu.Unlock()

	if first {
		h.factory.released()
	}
	return err
}

func (h *fakeHandle) SetFullscreen(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("fullscreen")
	h.fullscreen = on
	return nil
}

// Play simulates the engine advancing to the given item and position.
func (h *fakeHandle) Play(index int, position int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index = index
	h.position = position
}

// Emit delivers a state change to the registered observers.
func (h *fakeHandle) Emit(state player.PlaybackState) {
	h.mu.Lock()
	observers := make([]player.Observer, len(h.observers))
	copy(observers, h.observers)
	h.mu.Unlock()

	for _, obs := range observers {
		obs.OnPlaybackStateChanged(state)
	}
}

func (h *fakeHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]string, len(h.calls))
	copy(result, h.calls)
	return result
}

func (h *fakeHandle) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// memoryStore is an in-memory Store.
type memoryStore struct {
	mu      sync.Mutex
	state   resume.State
	saved   bool
	saves   int
	loadErr error
	saveErr error
}

func (s *memoryStore) Load() (resume.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return resume.State{}, false, s.loadErr
	}
	return s.state, s.saved, nil
}

func (s *memoryStore) Save(state resume.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = state
	s.saved = true
	return nil
}

var errEngineMissing = errors.New("engine binary not found")
