// Package command implements the command surface (spec §4.8): admits
// start/cancel requests and enforces the single-sync invariant via a
// mutex-guarded optional, per the "Singleton engine" redesign note
// (SPEC_FULL.md/DESIGN.md). Grounded on internal/syncer/syncer.go's
// Start/Stop pair, generalized into a small mediator so the engine
// itself never needs to know whether it's being driven by HTTP, a
// startup re-entry, or a test.
package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/internal/rerr"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Engine is the subset of *internal/engine.Engine the surface drives.
type Engine interface {
	Run(ctx context.Context, syncFrom, syncTo model.BlockPosition, isContinuous bool) error
	RequestCancel(mode model.CancelMode)
	Snapshot() model.EngineState
	IsRunning() bool
}

// Source resolves "latest" end-block requests. A concrete end block is
// not checked against the source; it is only rejected when it lies
// before the start block.
type Source interface {
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
}

// History supplies recent block-replay summaries for status reporting.
// Satisfied by *internal/history.Store.
type History interface {
	Recent(n int) ([]model.BlockHistoryEntry, error)
}

// recentHistoryLimit bounds how many recent block entries Status reports.
const recentHistoryLimit = 10

// Surface mediates start/cancel/status commands against a single
// Engine, refusing concurrent starts.
type Surface struct {
	engine  Engine
	source  Source
	history History
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Surface over engine. history may be nil, in which case
// Status reports no recent blocks.
func New(engine Engine, source Source, history History, logger zerolog.Logger) *Surface {
	return &Surface{engine: engine, source: source, history: history, logger: logger.With().Str("component", "command").Logger()}
}

// StartResult is returned to the HTTP collaborator on a successful start.
type StartResult struct {
	SyncFrom     model.BlockPosition
	SyncTo       model.BlockPosition
	IsContinuous bool
}

// Start admits a start(endBlock) request. endBlock is either a concrete
// height or the sentinel isLatest=true for continuous mode. Returns
// sync-in-progress if an engine is already running.
func (s *Surface) Start(ctx context.Context, endBlock model.BlockPosition, isLatest bool) (StartResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return StartResult{}, rerr.New(rerr.CodeSyncInProgress, "a sync is already in progress")
	}

	syncFrom, err := s.engineStartHeight(ctx)
	if err != nil {
		s.mu.Unlock()
		return StartResult{}, err
	}

	syncTo := endBlock
	isContinuous := isLatest
	if isLatest {
		latest, err := s.source.GetLatestAccepted(ctx)
		if err != nil {
			s.mu.Unlock()
			return StartResult{}, fmt.Errorf("resolve latest for continuous start: %w", err)
		}
		syncTo = latest
	} else if endBlock < syncFrom {
		s.mu.Unlock()
		return StartResult{}, rerr.New(rerr.CodeInvalidBlock, fmt.Sprintf("endBlock %d is before the next block %d", endBlock, syncFrom))
	}

	s.launchLocked(syncFrom, syncTo, isContinuous)
	s.mu.Unlock()

	s.logger.Info().Uint64("sync_from", uint64(syncFrom)).Uint64("sync_to", uint64(syncTo)).Bool("continuous", isContinuous).Msg("sync started")
	return StartResult{SyncFrom: syncFrom, SyncTo: syncTo, IsContinuous: isContinuous}, nil
}

// ResumeFromStartup admits a resumption computed by startup recovery
// (spec §4.9), under the same single-sync gating as Start. Returns
// sync-in-progress if, implausibly, a sync is already running at
// process start.
func (s *Surface) ResumeFromStartup(syncFrom, syncTo model.BlockPosition, isContinuous bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return rerr.New(rerr.CodeSyncInProgress, "a sync is already in progress")
	}

	s.launchLocked(syncFrom, syncTo, isContinuous)
	s.logger.Info().Uint64("sync_from", uint64(syncFrom)).Uint64("sync_to", uint64(syncTo)).Bool("continuous", isContinuous).Msg("resumed sync from startup recovery")
	return nil
}

// launchLocked starts the engine run goroutine. Caller must hold s.mu
// and have already verified no run is in progress.
func (s *Surface) launchLocked(syncFrom, syncTo model.BlockPosition, isContinuous bool) {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.cancel = nil
			s.mu.Unlock()
		}()
		if err := s.engine.Run(runCtx, syncFrom, syncTo, isContinuous); err != nil {
			s.logger.Error().Err(err).Msg("engine run exited with error")
		}
	}()
}

// engineStartHeight reports where a fresh start should begin: the
// block the engine last reported as current (0 if it has never run),
// left to presync to reconcile precisely against the target.
func (s *Surface) engineStartHeight(ctx context.Context) (model.BlockPosition, error) {
	snap := s.engine.Snapshot()
	if snap.CurrentBlock == 0 {
		return 0, nil
	}
	return snap.CurrentBlock, nil
}

// Cancel requests cancellation in the given mode. completeCurrentBlock
// selects finish-block mode; otherwise immediate.
func (s *Surface) Cancel(completeCurrentBlock bool) (model.BlockPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return 0, fmt.Errorf("no sync in progress")
	}

	mode := model.CancelImmediate
	if completeCurrentBlock {
		mode = model.CancelFinishBlock
	}
	s.engine.RequestCancel(mode)

	return s.engine.Snapshot().CurrentBlock, nil
}

// StatusSnapshot bundles the engine-state snapshot with the most recent
// block-history entries, so an operator can see recent block timings
// without scraping Prometheus.
type StatusSnapshot struct {
	model.EngineState
	RecentBlocks []model.BlockHistoryEntry
}

// Status returns the current engine state snapshot plus up to
// recentHistoryLimit recent block-history entries.
func (s *Surface) Status() StatusSnapshot {
	snap := StatusSnapshot{EngineState: s.engine.Snapshot()}
	if s.history == nil {
		return snap
	}
	recent, err := s.history.Recent(recentHistoryLimit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load recent block history for status")
		return snap
	}
	snap.RecentBlocks = recent
	return snap
}
