// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/reelbox/internal/domain/media"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Control     ControlConfig     `yaml:"control"`
	Media       MediaConfig       `yaml:"media"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Player      PlayerConfig      `yaml:"player"`
	Surface     SurfaceConfig     `yaml:"surface"`
	Resume      ResumeConfig      `yaml:"resume"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig protects the signal endpoint.
type ControlConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// MediaConfig describes the media played by every session.
type MediaConfig struct {
	URI          string `yaml:"uri" validate:"required"`
	MimeType     string `yaml:"mime_type"` // Inferred from the URI when empty
	MaxVideoSize string `yaml:"max_video_size" default:"sd" validate:"oneof=sd none unbounded"`
}

// LifecycleConfig selects how host signals map to activation.
type LifecycleConfig struct {
	Policy              string `yaml:"policy" default:"split" validate:"oneof=split lazy"`
	PlatformVersion     *int   `yaml:"platform_version" default:"24" validate:"omitempty,gte=0"`
	ActivationThreshold int    `yaml:"activation_threshold" default:"24" validate:"gt=0"`
	PresentOnResume     *bool  `yaml:"present_on_resume" default:"true"`
}

// PlayerConfig lists the engine backends, tried in order.
type PlayerConfig struct {
	Backends []BackendConfig `yaml:"backends" validate:"required,min=1,dive"`
}

// BackendConfig represents a single engine backend.
type BackendConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=mpv sim"`
	Settings map[string]any `yaml:"settings"`
}

// SurfaceConfig identifies the render target.
type SurfaceConfig struct {
	WindowID int64  `yaml:"window_id" validate:"gte=0"`
	Title    string `yaml:"title" default:"reelbox"`
}

// ResumeConfig configures resume persistence.
type ResumeConfig struct {
	StateFile string `yaml:"state_file"` // Empty disables persistence
}

// DiagnosticsConfig configures the event recorder.
type DiagnosticsConfig struct {
	HistorySize int `yaml:"history_size" default:"100" validate:"gt=0,lte=10000"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("REELBOX_MEDIA_URI"); v != "" {
		c.Media.URI = v
	}
	if v := os.Getenv("REELBOX_CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("REELBOX_PLATFORM_VERSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid REELBOX_PLATFORM_VERSION %q", v)
		}
		c.Lifecycle.PlatformVersion = &n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if _, err := c.Source(); err != nil {
		return errors.Wrap(err, "invalid media")
	}

	return nil
}

// Source returns the configured media source.
func (c *Config) Source() (media.Source, error) {
	src, err := media.NewSource(c.Media.URI, c.Media.MimeType)
	if err != nil {
		return media.Source{}, err
	}
	if err := src.Validate(); err != nil {
		return media.Source{}, err
	}
	return src, nil
}

// VideoSizeLimit returns the configured rendition ceiling.
func (c *Config) VideoSizeLimit() media.VideoSizeLimit {
	limit, err := media.ParseVideoSizeLimit(c.Media.MaxVideoSize)
	if err != nil {
		// Rejected by Validate
		return media.VideoSizeLimit{}
	}
	return limit
}

// PlatformVersion returns the host platform version. Zero is a valid version.
func (c *Config) PlatformVersion() int {
	if c.Lifecycle.PlatformVersion == nil {
		return 0
	}
	return *c.Lifecycle.PlatformVersion
}

// PresentOnResume reports whether the presentation side effect is enabled.
func (c *Config) PresentOnResume() bool {
	return c.Lifecycle.PresentOnResume == nil || *c.Lifecycle.PresentOnResume
}
