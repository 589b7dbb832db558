package mpv

import (
	"math"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// Handle is one mpv process.
type Handle struct {
	// mu serialises IPC commands. Event delivery only takes stateMu.
	mu         sync.Mutex
	factory    *Factory
	ipc        *ipcConn
	proc       *process // nil when attached to an externally managed engine
	socketPath string
	source     media.Source

	startIndex int
	startMs    int64
	autoPlay   bool
	released   bool

	stateMu   sync.Mutex
	props     properties
	state     player.PlaybackState
	observers []player.Observer
}

var (
	_ player.Handle       = (*Handle)(nil)
	_ player.Fullscreener = (*Handle)(nil)
)

func newHandle(f *Factory, conn net.Conn, proc *process, socketPath string, source media.Source, st resume.State) *Handle {
	h := &Handle{
		factory:    f,
		proc:       proc,
		socketPath: socketPath,
		source:     source,
		startIndex: st.MediaIndex,
		startMs:    st.PositionMillis,
		autoPlay:   st.AutoPlay,
		state:      player.StateIdle,
	}
	h.ipc = newIPCConn(conn, f.settings.commandTimeout(), h.onEvent)
	f.outstanding.Add(1)
	return h
}

func (h *Handle) observe() error {
	for i, name := range observedProperties {
		if err := h.ipc.observe(i+1, name); err != nil {
			return err
		}
	}
	return nil
}

// Seek implements player.Handle. Before Prepare the target is applied as
// the start options of the load.
func (h *Handle) Seek(mediaIndex int, positionMillis int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return player.ErrReleased
	}
	if mediaIndex < 0 {
		return errors.Newf("media index must be >= 0: %d", mediaIndex)
	}
	if positionMillis < 0 {
		positionMillis = 0
	}

	h.stateMu.Lock()
	prepared := h.props.prepared
	h.stateMu.Unlock()

	if prepared {
		if current, err := h.ipc.getInt("playlist-pos"); err != nil || current != mediaIndex {
			if err := h.ipc.setProperty("playlist-pos", mediaIndex); err != nil {
				return errors.Wrap(err, "failed to select playlist entry")
			}
		}
		if _, err := h.ipc.command("seek", millisToSeconds(positionMillis), "absolute"); err != nil {
			return errors.Wrap(err, "failed to seek")
		}
	}

	h.startIndex = mediaIndex
	h.startMs = positionMillis
	return nil
}

// SetAutoPlay implements player.Handle.
func (h *Handle) SetAutoPlay(autoPlay bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return player.ErrReleased
	}
	if err := h.ipc.setProperty("pause", !autoPlay); err != nil {
		return errors.Wrap(err, "failed to set pause")
	}

	h.stateMu.Lock()
	h.autoPlay = autoPlay
	h.stateMu.Unlock()
	return nil
}

// AutoPlay implements player.Handle. Pausing from the mpv window clears it.
func (h *Handle) AutoPlay() (bool, error) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.released {
		return false, player.ErrReleased
	}
	return h.autoPlay, nil
}

// Prepare implements player.Handle.
func (h *Handle) Prepare() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return player.ErrReleased
	}

	h.stateMu.Lock()
	prepared := h.props.prepared
	h.stateMu.Unlock()
	if prepared {
		return nil
	}

	if err := h.ipc.setProperty("start", formatSeconds(h.startMs)); err != nil {
		return errors.Wrap(err, "failed to set start position")
	}
	if err := h.ipc.setProperty("playlist-start", h.startIndex); err != nil {
		return errors.Wrap(err, "failed to set playlist start")
	}
	if _, err := h.ipc.command("loadfile", h.source.URI, "replace"); err != nil {
		return errors.Wrapf(err, "failed to load %s", h.source.URI)
	}

	h.update(func(p *properties) bool {
		p.prepared = true
		return true
	})
	return nil
}

// CurrentPosition implements player.Handle.
func (h *Handle) CurrentPosition() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, player.ErrReleased
	}
	secs, err := h.ipc.getFloat("time-pos")
	if errors.Is(err, errPropertyUnavailable) {
		return h.startMs, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(math.Round(secs * 1000)), nil
}

// CurrentMediaIndex implements player.Handle.
func (h *Handle) CurrentMediaIndex() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, player.ErrReleased
	}
	idx, err := h.ipc.getInt("playlist-pos")
	if errors.Is(err, errPropertyUnavailable) || (err == nil && idx < 0) {
		return h.startIndex, nil
	}
	return idx, err
}

// AddObserver implements player.Handle.
func (h *Handle) AddObserver(obs player.Observer) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.released || obs == nil {
		return
	}
	h.observers = append(h.observers, obs)
}

// RemoveObserver implements player.Handle.
func (h *Handle) RemoveObserver(obs player.Observer) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

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
	return h.ipc.setProperty("fullscreen", on)
}

// State returns the last derived playback state.
func (h *Handle) State() player.PlaybackState {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state
}

// Release implements player.Handle. It asks mpv to quit and kills the
// process when it does not exit in time.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}

	h.stateMu.Lock()
	h.released = true
	h.observers = nil
	h.state = player.StateIdle
	h.stateMu.Unlock()

	var result error
	if _, err := h.ipc.command("quit"); err != nil && !errors.Is(err, errIPCClosed) {
		zlog.Debug().Msgf("mpv: quit command failed: %v", err)
	}
	h.ipc.close()

	if h.proc != nil {
		if err := h.proc.stop(h.factory.settings.quitTimeout()); err != nil {
			result = err
		}
	}
	if h.socketPath != "" {
		if err := os.Remove(h.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			zlog.Debug().Msgf("mpv: failed to remove socket %s: %v", h.socketPath, err)
		}
	}

	h.factory.outstanding.Add(-1)
	zlog.Debug().Msgf("mpv: handle released: outstanding=%d", h.factory.Outstanding())
	return result
}

func (h *Handle) onEvent(msg ipcMessage) {
	h.update(func(p *properties) bool {
		if msg.Event == "property-change" {
			if msg.Name == "pause" {
				h.autoPlay = !decodeBool(msg.Data)
			}
			return p.apply(msg.Name, msg.Data)
		}
		return p.event(msg.Event, msg.Reason)
	})
}

// update mutates the properties and notifies observers when the derived state changes.
func (h *Handle) update(fn func(p *properties) bool) {
	h.stateMu.Lock()
	if h.released || !fn(&h.props) {
		h.stateMu.Unlock()
		return
	}
	next := h.props.state()
	if next == h.state {
		h.stateMu.Unlock()
		return
	}
	h.state = next
	observers := make([]player.Observer, len(h.observers))
	copy(observers, h.observers)
	h.stateMu.Unlock()

	for _, obs := range observers {
		obs.OnPlaybackStateChanged(next)
	}
}

func millisToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}

func formatSeconds(ms int64) string {
	return strconv.FormatFloat(millisToSeconds(ms), 'f', 3, 64)
}
