package backend

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/infra/config"
	"github.com/osa030/reelbox/internal/infra/mpv"
	"github.com/osa030/reelbox/internal/infra/sim"
)

// Types lists the supported backend types.
var Types = []string{"mpv", "sim"}

// NewChainFromConfig creates a backend chain from configuration.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	if len(cfg.Player.Backends) == 0 {
		return nil, errors.New("no player backends configured")
	}

	var backends []Backend

	for i, bcfg := range cfg.Player.Backends {
		var b Backend
		var err error
		zlog.Debug().Msgf("creating player backend: index=%d type=%s settings=%+v", i+1, bcfg.Type, bcfg.Settings)
		switch bcfg.Type {
		case "mpv":
			b.Factory, err = mpv.NewFactory(bcfg.Settings, cfg.VideoSizeLimit())

		case "sim":
			b.Factory, err = sim.NewFactory(bcfg.Settings)

		default:
			return nil, errors.Newf("unsupported backend type: %s (backend index %d)", bcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create backend (index %d, type %s)", i, bcfg.Type)
		}

		b.Type = bcfg.Type
		backends = append(backends, b)

		zlog.Info().Msgf("registered player backend: index=%d type=%s", i+1, bcfg.Type)
	}

	return NewChain(backends), nil
}
