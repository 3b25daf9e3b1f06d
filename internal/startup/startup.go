// Package startup implements startup recovery (spec §4.9): on process
// start, it reads the resume record and, if it says a sync was running,
// validates the two chains still agree at the target's last known
// height before re-entering the engine. Grounded on
// internal/syncer/syncer.go's checkpoint-driven resume-on-start path.
package startup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/internal/resume"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Source is the read surface needed to validate and re-resolve "latest".
type Source interface {
	GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error)
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
}

// Target is the read surface needed to find where the target left off.
type Target interface {
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
	GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error)
}

// Plan describes what startup decided to do. Callers hand it to the
// command surface (internal/command) to actually launch the engine,
// so the single-sync invariant is enforced in one place regardless of
// whether a run was started by an HTTP request or by startup recovery.
type Plan struct {
	ShouldResume bool
	SyncFrom     model.BlockPosition
	SyncTo       model.BlockPosition
	IsContinuous bool
}

// Resolve reads the resume record and decides whether/how to resume,
// validating chain agreement at the target's last known height (spec
// §4.9 steps 1-3). It does not itself run the engine — callers that
// want the classic behavior should call Run.
func Resolve(ctx context.Context, resumeStore *resume.Store, source Source, target Target) (Plan, error) {
	intent := resumeStore.Load()
	if intent.Status != model.StatusRunning {
		return Plan{ShouldResume: false}, nil
	}

	l, err := target.GetLatestAccepted(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("startup recovery: query target latest-accepted: %w", err)
	}

	targetBlock, err := target.GetBlock(ctx, l)
	if err != nil {
		return Plan{}, fmt.Errorf("startup recovery: fetch target block %d: %w", l, err)
	}

	sourceBlock, err := source.GetBlock(ctx, l)
	if err != nil {
		return Plan{}, fmt.Errorf("startup recovery: fetch source block %d: %w", l, err)
	}

	if targetBlock.Hash != sourceBlock.Hash || targetBlock.ParentHash != sourceBlock.ParentHash {
		return Plan{}, fmt.Errorf("startup recovery: chains disagree at block %d: target hash=%s parent=%s, source hash=%s parent=%s",
			l, targetBlock.Hash, targetBlock.ParentHash, sourceBlock.Hash, sourceBlock.ParentHash)
	}

	syncTo := model.BlockPosition(0)
	if intent.SyncTo != nil {
		syncTo = model.BlockPosition(*intent.SyncTo)
	}
	if intent.IsContinuous {
		latest, err := source.GetLatestAccepted(ctx)
		if err != nil {
			return Plan{}, fmt.Errorf("startup recovery: re-resolve latest: %w", err)
		}
		syncTo = latest
	}

	return Plan{
		ShouldResume: true,
		SyncFrom:     l + 1,
		SyncTo:       syncTo,
		IsContinuous: intent.IsContinuous,
	}, nil
}

// Resumer is the command surface's admission entry point for a resolved
// Plan. Satisfied by *internal/command.Surface.
type Resumer interface {
	ResumeFromStartup(syncFrom, syncTo model.BlockPosition, isContinuous bool) error
}

// Run resolves the plan and, if resumption is called for, admits it
// through resumer. It returns immediately once the run is launched
// (or once it's determined there is nothing to resume); it does not
// block for the run's duration.
func Run(ctx context.Context, resumeStore *resume.Store, source Source, target Target, resumer Resumer, logger zerolog.Logger) error {
	plan, err := Resolve(ctx, resumeStore, source, target)
	if err != nil {
		logger.Error().Err(err).Msg("startup recovery failed, refusing to resume")
		return err
	}
	if !plan.ShouldResume {
		logger.Info().Msg("no running sync to resume at startup")
		return nil
	}

	logger.Info().Uint64("sync_from", uint64(plan.SyncFrom)).Uint64("sync_to", uint64(plan.SyncTo)).Bool("continuous", plan.IsContinuous).Msg("resuming sync from resume record")
	return resumer.ResumeFromStartup(plan.SyncFrom, plan.SyncTo, plan.IsContinuous)
}
