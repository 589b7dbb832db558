package mpv

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// Settings configures the mpv backend.
type Settings struct {
	Binary           string   `yaml:"binary" mapstructure:"binary" default:"mpv" validate:"required"`
	SocketDir        string   `yaml:"socket_dir" mapstructure:"socket_dir"` // Defaults to os.TempDir()
	ExtraArgs        []string `yaml:"extra_args" mapstructure:"extra_args"`
	StartupTimeoutMs int      `yaml:"startup_timeout_ms" mapstructure:"startup_timeout_ms" default:"5000" validate:"gt=0"`
	CommandTimeoutMs int      `yaml:"command_timeout_ms" mapstructure:"command_timeout_ms" default:"1000" validate:"gt=0"`
	QuitTimeoutMs    int      `yaml:"quit_timeout_ms" mapstructure:"quit_timeout_ms" default:"2000" validate:"gt=0"`
}

func (s Settings) startupTimeout() time.Duration {
	return time.Duration(s.StartupTimeoutMs) * time.Millisecond
}

func (s Settings) commandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutMs) * time.Millisecond
}

func (s Settings) quitTimeout() time.Duration {
	return time.Duration(s.QuitTimeoutMs) * time.Millisecond
}

func (s Settings) socketDir() string {
	if s.SocketDir != "" {
		return s.SocketDir
	}
	return os.TempDir()
}

// Factory launches one mpv process per handle.
type Factory struct {
	settings    Settings
	limit       media.VideoSizeLimit
	outstanding atomic.Int64
}

// NewFactory decodes settings and creates a factory.
func NewFactory(settings map[string]any, limit media.VideoSizeLimit) (*Factory, error) {
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
	zlog.Debug().Msgf("mpv: factory settings: %+v limit=%+v", s, limit)
	return &Factory{settings: s, limit: limit}, nil
}

// Settings returns the decoded settings.
func (f *Factory) Settings() Settings {
	return f.settings
}

// Outstanding returns the number of acquired but unreleased handles.
func (f *Factory) Outstanding() int {
	return int(f.outstanding.Load())
}

// Probe runs the binary with --version and returns the first output line.
func (f *Factory) Probe(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, f.settings.Binary, "--version").Output()
	if err != nil {
		return "", errors.Wrapf(err, "%s is not runnable", f.settings.Binary)
	}
	line, _, _ := bufio.NewReader(bytes.NewReader(out)).ReadLine()
	return string(line), nil
}

// Acquire implements player.Factory.
func (f *Factory) Acquire(ctx context.Context, surface player.Surface, source media.Source, state resume.State) (player.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}

	socketPath := filepath.Join(f.settings.socketDir(), "reelbox-"+uuid.NewString()[:8]+".sock")
	args := BuildArgs(f.settings, socketPath, surface, f.limit)

	proc, err := startProcess(f.settings.Binary, args)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", f.settings.Binary)
	}

	conn, err := waitForSocket(ctx, socketPath, proc.exited, f.settings.startupTimeout())
	if err != nil {
		zlog.Warn().Msgf("mpv: killing process, ipc socket never became ready: %v", err)
		_ = proc.stop(0)
		_ = os.Remove(socketPath)
		return nil, err
	}

	h := newHandle(f, conn, proc, socketPath, source, state)
	if err := h.observe(); err != nil {
		_ = h.Release()
		return nil, errors.Wrap(err, "failed to observe properties")
	}

	zlog.Debug().Msgf("mpv: handle acquired: pid=%d socket=%s uri=%s outstanding=%d",
		proc.pid(), socketPath, source.URI, f.Outstanding())
	return h, nil
}

// BuildArgs returns the command line for one engine process.
func BuildArgs(s Settings, socketPath string, surface player.Surface, limit media.VideoSizeLimit) []string {
	args := []string{
		"--idle=yes",
		"--no-terminal",
		"--keep-open=yes",
		"--pause=yes", // Released by SetAutoPlay
		"--input-ipc-server=" + socketPath,
	}

	if surface.WindowID != 0 {
		args = append(args, "--wid="+strconv.FormatInt(surface.WindowID, 10))
	} else {
		args = append(args, "--force-window=yes")
		if surface.Title != "" {
			args = append(args, "--title="+surface.Title)
		}
	}

	if !limit.Unbounded() {
		args = append(args, "--ytdl-format="+ytdlFormat(limit))
	}

	return append(args, s.ExtraArgs...)
}

// ytdlFormat renders a size limit as a youtube-dl format selector.
func ytdlFormat(limit media.VideoSizeLimit) string {
	var filter string
	if limit.MaxWidth > 0 {
		filter += "[width<=" + strconv.Itoa(limit.MaxWidth) + "]"
	}
	if limit.MaxHeight > 0 {
		filter += "[height<=" + strconv.Itoa(limit.MaxHeight) + "]"
	}
	return "bestvideo" + filter + "+bestaudio/best" + filter
}

// process is a running engine.
type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

func startProcess(binary string, args []string) (*process, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// stop waits up to grace for the process to exit on its own, then kills it.
func (p *process) stop(grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	}

	zlog.Warn().Msgf("mpv: process did not exit after %s, killing: pid=%d", grace, p.pid())
	if err := p.cmd.Process.Kill(); err != nil {
		select {
		case <-p.exited:
			return nil
		default:
			return errors.Wrap(err, "failed to kill mpv")
		}
	}
	<-p.exited
	return nil
}
