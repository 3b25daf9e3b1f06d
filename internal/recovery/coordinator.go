// Package recovery implements the stateless recovery coordinator
// (spec §4.6): invoked whenever the engine observes a target-down
// error, it waits for the target to come back, then re-derives what the
// engine should do next purely from the target's actual on-chain state
// — never from the engine's memory of what it thought it was doing.
// Grounded on internal/syncer/syncer.go's reconnect-and-resume handling
// and on other_examples/5051e45f_...driver-state.go's stateful
// recovery-on-reset pattern, generalized into a pure query.
package recovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/internal/health"
	"github.com/starknet-replay/orchestrator/internal/rerr"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Target is the read surface the coordinator needs to query the
// target's actual state.
type Target interface {
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
	GetPreConfirmed(ctx context.Context) (model.BlockDescriptor, error)
}

// Coordinator resolves a target-down condition into a RecoveryAction.
type Coordinator struct {
	target  Target
	monitor *health.Monitor
	logger  zerolog.Logger
}

// New builds a Coordinator.
func New(target Target, monitor *health.Monitor, logger zerolog.Logger) *Coordinator {
	return &Coordinator{target: target, monitor: monitor, logger: logger.With().Str("component", "recovery").Logger()}
}

// Recover waits for the target to come back (bounded to 24h by the
// health monitor) and then queries its actual state to decide how the
// engine should proceed with intendedBlock (spec §4.6 steps 2-3).
func (c *Coordinator) Recover(ctx context.Context, intendedBlock model.BlockPosition) (model.RecoveryAction, error) {
	c.logger.Warn().Uint64("intended_block", uint64(intendedBlock)).Msg("waiting for target to recover")

	if !c.monitor.WaitForRecovery(ctx) {
		if ctx.Err() != nil {
			return model.RecoveryAction{}, ctx.Err()
		}
		return model.RecoveryAction{}, rerr.New(rerr.CodeRecoveryTimeout, "target did not recover within the wait cap")
	}

	c.logger.Info().Msg("target recovered, querying state")

	l, err := c.target.GetLatestAccepted(ctx)
	if err != nil {
		return model.RecoveryAction{}, fmt.Errorf("recovery: query target latest-accepted: %w", err)
	}

	pre, err := c.target.GetPreConfirmed(ctx)
	if err != nil {
		return model.RecoveryAction{}, fmt.Errorf("recovery: query target pre-confirmed: %w", err)
	}
	p := pre.Number
	yHashes := make([]model.Felt, 0, len(pre.Transactions))
	for _, tx := range pre.Transactions {
		yHashes = append(yHashes, tx.Hash)
	}

	action := decide(l, p, yHashes, intendedBlock)
	c.logger.Info().
		Uint64("latest_accepted", uint64(l)).
		Uint64("pre_confirmed", uint64(p)).
		Int("pre_confirmed_tx_count", len(yHashes)).
		Str("action", string(action.Kind)).
		Uint64("action_block", uint64(action.Block)).
		Msg("recovery decided")

	return action, nil
}

// decide implements spec §4.6 step 3's decision table exactly, as a
// pure function of the target's observed state.
func decide(l, p model.BlockPosition, yHashes []model.Felt, intendedBlock model.BlockPosition) model.RecoveryAction {
	if l >= intendedBlock {
		return model.SkipToBlock(l + 1)
	}
	if l < intendedBlock-1 {
		return model.SkipToBlock(l + 1)
	}
	// l == intendedBlock - 1
	if p != intendedBlock {
		return model.RestartBlock(l + 1)
	}
	if len(yHashes) == 0 {
		return model.RestartBlock(intendedBlock)
	}
	return model.ContinueBlock(intendedBlock, yHashes)
}
