// Package tip implements the tip-follower (spec §4.7): active only in
// continuous mode, it polls the source's latest height every 60s and
// extends the engine's target when the chain has advanced. Grounded on
// internal/syncer/syncer.go's polling-ticker loop.
package tip

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/internal/retry"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Source is the read surface the follower needs from the source node.
type Source interface {
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
}

// EngineTarget is the engine surface the follower mutates.
type EngineTarget interface {
	SetSyncTo(n model.BlockPosition)
	IsRunning() bool
}

// Follower periodically raises the engine's syncTo to track the
// source chain's tip.
type Follower struct {
	source   Source
	engine   EngineTarget
	interval time.Duration
	policy   retry.Policy
	executor *retry.Executor
	logger   zerolog.Logger
}

// New builds a Follower. interval is the probe period (60s per spec);
// policy bounds the retry attempts on a single failed probe (5
// exponential-backoff attempts, logged and deferred to the next tick on
// exhaustion).
func New(source Source, engine EngineTarget, interval time.Duration, policy retry.Policy, executor *retry.Executor, logger zerolog.Logger) *Follower {
	return &Follower{
		source: source, engine: engine, interval: interval,
		policy: policy, executor: executor,
		logger: logger.With().Str("component", "tip-follower").Logger(),
	}
}

// Run blocks, probing on every tick until ctx is cancelled. Callers run
// this in its own goroutine for the lifetime of the process. A tick does
// nothing while the engine isn't running, and the engine ignores the
// extension unless its run is continuous.
func (f *Follower) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Follower) tick(ctx context.Context) {
	if !f.engine.IsRunning() {
		return
	}

	var latest model.BlockPosition
	_, err := f.executor.Execute(ctx, f.policy, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		n, err := f.source.GetLatestAccepted(ctx)
		if err != nil {
			return err
		}
		latest = n
		return nil
	})
	if err != nil {
		f.logger.Warn().Err(err).Msg("tip probe failed, will retry next tick")
		return
	}

	f.engine.SetSyncTo(latest)
}
