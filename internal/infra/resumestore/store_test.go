package resumestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/reelbox/internal/domain/resume"
)

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestStore_LoadMissingFile(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "resume.yaml"))
	require.NoError(t, err)

	st, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, resume.State{}, st)
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "resume.yaml")
	s, err := New(path)
	require.NoError(t, err)

	want := resume.State{MediaIndex: 2, PositionMillis: 12000, AutoPlay: false}
	require.NoError(t, s.Save(want))

	got, ok, err := s.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	// Overwrite
	want.PositionMillis = 15000
	require.NoError(t, s.Save(want))
	got, _, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(15000), got.PositionMillis)

	// No temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.yaml")
	require.NoError(t, os.WriteFile(path, []byte("media_index: [not a number"), 0o644))

	s, err := New(path)
	require.NoError(t, err)

	_, ok, err := s.Load()
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestStore_SaveRejectsInvalidState(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "resume.yaml"))
	require.NoError(t, err)

	assert.Error(t, s.Save(resume.State{PositionMillis: -5}))
	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.yaml")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(resume.State{MediaIndex: 1, PositionMillis: 500, AutoPlay: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "media_index: 1")
	assert.Contains(t, string(data), "position_millis: 500")
	assert.Contains(t, string(data), "auto_play: true")
}

func TestStore_MemoryFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewWithFs(fs, "/var/reelbox/resume.yaml")
	require.NoError(t, err)

	want := resume.State{MediaIndex: 3, PositionMillis: 42000, AutoPlay: true}
	require.NoError(t, s.Save(want))

	exists, err := afero.Exists(fs, "/var/reelbox/resume.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	got, ok, err := s.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestStore_SaveFailsOnReadOnlyFs(t *testing.T) {
	s, err := NewWithFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/state/resume.yaml")
	require.NoError(t, err)

	assert.Error(t, s.Save(resume.Default()))

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}
