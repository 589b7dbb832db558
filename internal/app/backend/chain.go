// Package backend builds player factories from configuration.
package backend

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/domain/media"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// Backend is a factory with the name it was configured under.
type Backend struct {
	Type    string
	Factory player.Factory
}

// Prober is implemented by factories that can check their engine is usable.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// ProbeResult reports one backend's probe outcome.
type ProbeResult struct {
	Type    string
	Version string
	Err     error
}

// Chain tries backends in order until one produces a handle.
type Chain struct {
	backends []Backend
}

var _ player.Factory = (*Chain)(nil)

// NewChain creates a new backend chain.
func NewChain(backends []Backend) *Chain {
	return &Chain{
		backends: backends,
	}
}

// Acquire implements player.Factory. Errors from every backend are
// combined when none succeeds.
func (c *Chain) Acquire(ctx context.Context, surface player.Surface, source media.Source, state resume.State) (player.Handle, error) {
	if len(c.backends) == 0 {
		return nil, errors.New("no player backends configured")
	}

	var combined error
	for i, b := range c.backends {
		zlog.Debug().Msgf("backend: trying: index=%d total=%d type=%s", i+1, len(c.backends), b.Type)

		h, err := b.Factory.Acquire(ctx, surface, source, state)
		if err == nil && h != nil {
			if i > 0 {
				zlog.Info().Msgf("backend: using fallback: type=%s", b.Type)
			}
			return h, nil
		}
		if err == nil {
			err = errors.New("backend returned no handle")
		}

		zlog.Warn().Msgf("backend failed, trying next: type=%s error=%v", b.Type, err)
		combined = errors.CombineErrors(combined, errors.Wrapf(err, "%s", b.Type))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, combined
}

// Types returns the configured backend types in order.
func (c *Chain) Types() []string {
	return lo.Map(c.backends, func(b Backend, _ int) string {
		return b.Type
	})
}

// Outstanding sums the unreleased handles of backends that count them.
func (c *Chain) Outstanding() int {
	return lo.SumBy(c.backends, func(b Backend) int {
		if counter, ok := b.Factory.(interface{ Outstanding() int }); ok {
			return counter.Outstanding()
		}
		return 0
	})
}

// Probe checks every backend that supports it.
func (c *Chain) Probe(ctx context.Context) []ProbeResult {
	return lo.Map(c.backends, func(b Backend, _ int) ProbeResult {
		result := ProbeResult{Type: b.Type}
		if p, ok := b.Factory.(Prober); ok {
			result.Version, result.Err = p.Probe(ctx)
		}
		return result
	})
}
