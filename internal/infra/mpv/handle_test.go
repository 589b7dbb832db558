package mpv

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

var hlsSource = media.Source{URI: "https://example.com/live/master.m3u8", MimeType: media.MimeHLS}

type stateRecorder struct {
	mu     sync.Mutex
	states []player.PlaybackState
}

func (r *stateRecorder) OnPlaybackStateChanged(state player.PlaybackState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) States() []player.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.PlaybackState(nil), r.states...)
}

func testFactory() *Factory {
	return &Factory{settings: Settings{
		Binary:           "mpv",
		StartupTimeoutMs: 1000,
		CommandTimeoutMs: 1000,
		QuitTimeoutMs:    100,
	}}
}

func newTestHandle(t *testing.T, st resume.State) (*Handle, *fakeEngine, *Factory) {
	t.Helper()
	engine, conn := newFakeEngine(t)
	f := testFactory()
	h := newHandle(f, conn, nil, "", hlsSource, st)
	require.NoError(t, h.observe())
	t.Cleanup(func() { _ = h.Release() })
	return h, engine, f
}

func TestHandle_ObservesProperties(t *testing.T) {
	engine, conn := newFakeEngine(t)
	h := newHandle(testFactory(), conn, nil, "", hlsSource, resume.Default())
	defer h.Release()

	require.NoError(t, h.observe())

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.commands, len(observedProperties))
	for i, name := range observedProperties {
		assert.Equal(t, []any{"observe_property", float64(i + 1), name}, engine.commands[i])
	}
}

func TestHandle_PrepareAppliesStartPosition(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.State{MediaIndex: 0, PositionMillis: 12000, AutoPlay: true})

	require.NoError(t, h.Seek(1, 12500))
	require.NoError(t, h.SetAutoPlay(true))
	require.NoError(t, h.Prepare())

	assert.Equal(t, []string{
		"set_property pause",
		"set_property start",
		"set_property playlist-start",
		"loadfile",
	}, engine.CommandNames())
	assert.Equal(t, false, engine.Get("pause"))
	assert.Equal(t, "12.500", engine.Get("start"))
	assert.Equal(t, float64(1), engine.Get("playlist-start"))

	cmds := engine.Commands()
	assert.Equal(t, []any{"loadfile", hlsSource.URI, "replace"}, cmds[len(cmds)-1])

	// Second Prepare is a no-op
	require.NoError(t, h.Prepare())
	assert.Len(t, engine.Commands(), 4)
}

func TestHandle_StateTransitions(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.Default())
	rec := &stateRecorder{}
	h.AddObserver(rec)

	assert.Equal(t, player.StateIdle, h.State())
	require.NoError(t, h.Prepare())
	assert.Equal(t, player.StateBuffering, h.State())

	engine.Push(map[string]any{"event": "start-file"})
	engine.Push(map[string]any{"event": "file-loaded"})
	assert.Eventually(t, func() bool { return h.State() == player.StateReady }, time.Second, 5*time.Millisecond)

	engine.PushProperty("paused-for-cache", true)
	assert.Eventually(t, func() bool { return h.State() == player.StateBuffering }, time.Second, 5*time.Millisecond)

	engine.PushProperty("paused-for-cache", false)
	engine.PushProperty("eof-reached", true)
	assert.Eventually(t, func() bool { return h.State() == player.StateEnded }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []player.PlaybackState{
		player.StateBuffering,
		player.StateReady,
		player.StateBuffering,
		player.StateReady,
		player.StateEnded,
	}, rec.States())
}

func TestHandle_RemoveObserver(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.Default())
	rec := &stateRecorder{}
	h.AddObserver(rec)
	h.RemoveObserver(rec)

	require.NoError(t, h.Prepare())
	engine.Push(map[string]any{"event": "file-loaded"})
	assert.Eventually(t, func() bool { return h.State() == player.StateReady }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.States())
}

func TestHandle_CurrentPosition(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.State{PositionMillis: 4000, AutoPlay: true})

	// Not loaded yet
	pos, err := h.CurrentPosition()
	require.NoError(t, err)
	assert.Equal(t, int64(4000), pos)

	engine.Set("time-pos", 12.3456)
	pos, err = h.CurrentPosition()
	require.NoError(t, err)
	assert.Equal(t, int64(12346), pos)
}

func TestHandle_CurrentMediaIndex(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.State{MediaIndex: 3, AutoPlay: true})

	idx, err := h.CurrentMediaIndex()
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	engine.Set("playlist-pos", -1)
	idx, err = h.CurrentMediaIndex()
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	engine.Set("playlist-pos", 1)
	idx, err = h.CurrentMediaIndex()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestHandle_AutoPlayFollowsPause(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.Default())

	require.NoError(t, h.SetAutoPlay(false))
	auto, err := h.AutoPlay()
	require.NoError(t, err)
	assert.False(t, auto)
	assert.Equal(t, true, engine.Get("pause"))

	// User unpaused from the mpv window
	engine.PushProperty("pause", false)
	assert.Eventually(t, func() bool {
		auto, _ := h.AutoPlay()
		return auto
	}, time.Second, 5*time.Millisecond)
}

func TestHandle_SeekAfterPrepare(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.Default())
	require.NoError(t, h.Prepare())
	engine.Set("playlist-pos", 0)

	require.NoError(t, h.Seek(0, 5000))
	require.NoError(t, h.Seek(2, 1500))

	cmds := engine.Commands()
	var seeks [][]any
	var selects [][]any
	for _, c := range cmds {
		switch {
		case c[0] == "seek":
			seeks = append(seeks, c)
		case c[0] == "set_property" && c[1] == "playlist-pos":
			selects = append(selects, c)
		}
	}
	assert.Equal(t, [][]any{{"seek", 5.0, "absolute"}, {"seek", 1.5, "absolute"}}, seeks)
	assert.Equal(t, [][]any{{"set_property", "playlist-pos", float64(2)}}, selects)
}

func TestHandle_SeekRejectsNegativeIndex(t *testing.T) {
	h, _, _ := newTestHandle(t, resume.Default())
	assert.Error(t, h.Seek(-1, 0))
}

func TestHandle_CommandError(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.Default())
	engine.Fail("loadfile", "error running command")

	err := h.Prepare()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error running command")
	assert.Equal(t, player.StateIdle, h.State())
}

func TestHandle_SetFullscreen(t *testing.T) {
	h, engine, _ := newTestHandle(t, resume.Default())
	require.NoError(t, h.SetFullscreen(true))
	assert.Equal(t, true, engine.Get("fullscreen"))
}

func TestHandle_Release(t *testing.T) {
	engine, conn := newFakeEngine(t)
	f := testFactory()
	h := newHandle(f, conn, nil, "", hlsSource, resume.Default())
	assert.Equal(t, 1, f.Outstanding())

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())

	assert.Equal(t, 0, f.Outstanding())
	assert.Equal(t, []string{"quit"}, engine.CommandNames())

	_, err := h.CurrentPosition()
	assert.True(t, errors.Is(err, player.ErrReleased))
	assert.True(t, errors.Is(h.Prepare(), player.ErrReleased))
	assert.True(t, errors.Is(h.Seek(0, 0), player.ErrReleased))
	_, err = h.AutoPlay()
	assert.True(t, errors.Is(err, player.ErrReleased))
	assert.Equal(t, player.StateIdle, h.State())
}

func TestHandle_ReleaseAfterEngineVanished(t *testing.T) {
	engine, conn := newFakeEngine(t)
	f := testFactory()
	h := newHandle(f, conn, nil, "", hlsSource, resume.Default())

	engine.conn.Close()
	<-h.ipc.Done()

	assert.NoError(t, h.Release())
	assert.Equal(t, 0, f.Outstanding())
}
