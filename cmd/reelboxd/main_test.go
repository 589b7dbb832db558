package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/reelbox/internal/app/lifecycle"
	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/infra/sim"
)

// logBuffer is written by engine goroutines while the test reads it.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLog redirects the global logger into a buffer for the duration of the test.
func captureLog(t *testing.T) *logBuffer {
	t.Helper()
	buf := &logBuffer{}
	prevLogger := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	zlog.Logger = zerolog.New(buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		zlog.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
	return buf
}

func TestLogPlaybackState(t *testing.T) {
	tests := []struct {
		name  string
		state player.PlaybackState
		want  bool
	}{
		{name: "ready is reported", state: player.StateReady, want: true},
		{name: "ended is reported", state: player.StateEnded, want: true},
		{name: "buffering is debug only", state: player.StateBuffering, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			logPlaybackState("s-1", tt.state)
			if tt.want {
				assert.Contains(t, buf.String(), "Playback "+tt.state.String()+": session=s-1")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLogPlaybackState_WiredIntoController(t *testing.T) {
	buf := captureLog(t)

	factory, err := sim.NewFactory(map[string]any{"buffering_ms": 1})
	require.NoError(t, err)
	policy, err := lifecycle.NewPolicy("split", 24, 24)
	require.NoError(t, err)

	c := lifecycle.NewController(factory, lifecycle.Config{
		Source:          media.Source{URI: "https://example.com/tears.mpd", MimeType: media.MimeDASH},
		Policy:          policy,
		OnPlaybackState: logPlaybackState,
	})
	defer c.Close()

	require.NoError(t, c.Activate(context.Background()))
	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "Playback ready")
	}, 2*time.Second, 10*time.Millisecond)
}
