// Package resumestore persists the resume state as a small YAML file.
package resumestore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/osa030/reelbox/internal/domain/resume"
)

// Store is a file-backed lifecycle.Store.
type Store struct {
	mu   sync.Mutex
	fs   afero.Afero
	path string
}

// New creates a store writing to path on the OS filesystem. The file is not
// touched until Save.
func New(path string) (*Store, error) {
	return NewWithFs(afero.NewOsFs(), path)
}

// NewWithFs creates a store on fs.
func NewWithFs(fs afero.Fs, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("resume store path is empty")
	}
	return &Store{fs: afero.Afero{Fs: fs}, path: path}, nil
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the saved state. ok is false when the file does not exist.
func (s *Store) Load() (resume.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.fs.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return resume.State{}, false, nil
	}
	if err != nil {
		return resume.State{}, false, errors.Wrapf(err, "failed to read resume state %s", s.path)
	}

	var st resume.State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return resume.State{}, false, errors.Wrapf(err, "failed to parse resume state %s", s.path)
	}
	return st, true, nil
}

// Save writes the state through a temporary file so a crash never leaves a
// truncated file behind.
func (s *Store) Save(st resume.State) error {
	if err := st.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid resume state")
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "failed to encode resume state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := s.fs.TempFile(dir, ".resume-*.yaml")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer s.fs.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write resume state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary file")
	}
	if err := s.fs.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", s.path)
	}

	zlog.Debug().Msgf("resumestore: saved: path=%s index=%d position=%dms", s.path, st.MediaIndex, st.PositionMillis)
	return nil
}
