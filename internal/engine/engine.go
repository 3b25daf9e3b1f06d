package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Engine is the block-replay state machine. At most one instance runs
// at a time per process (enforced by internal/command, not here — the
// Engine itself just refuses a concurrent Run call).
type Engine struct {
	deps Deps

	mu      sync.Mutex
	state   model.EngineState
	running bool
}

// New builds an Engine from its dependencies.
func New(deps Deps) *Engine {
	return &Engine{deps: deps}
}

// Snapshot returns a copy of the engine's current in-memory state.
func (e *Engine) Snapshot() model.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRunning reports whether a Run call is currently in progress.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// RequestCancel records a cancellation request under the given mode.
// The running loop observes it at its next checkpoint (spec §4.5
// "Cancellation"): immediate mode is checked between transaction
// injections, finish-block mode at block boundaries.
func (e *Engine) RequestCancel(mode model.CancelMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.CancelRequested = true
	e.state.CancelMode = mode
}

// SetSyncTo raises the engine's target height, used by the tip-follower
// (spec §4.7) to extend a continuous run. Lowering is ignored — the
// tip only ever moves forward — and so is any call during a fixed-range
// run. The resume record is updated to match, per invariant 2 (on-disk
// syncTo tracks the in-memory value while running).
func (e *Engine) SetSyncTo(n model.BlockPosition) {
	e.mu.Lock()
	if !e.state.IsContinuous || n <= e.state.SyncTo {
		e.mu.Unlock()
		return
	}
	e.state.SyncTo = n
	intent := e.intentLocked()
	e.mu.Unlock()

	if err := e.deps.Resume.Save(intent); err != nil {
		e.deps.Logger.Warn().Err(err).Msg("failed to persist extended syncTo")
	}
}

// intentLocked builds the resume-record intent from the current state.
// Caller must hold e.mu.
func (e *Engine) intentLocked() model.SyncIntent {
	syncTo := uint64(e.state.SyncTo)
	return model.SyncIntent{
		Status:       model.StatusRunning,
		SyncTo:       &syncTo,
		IsContinuous: e.state.IsContinuous,
	}
}

func (e *Engine) cancelRequested() (bool, model.CancelMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CancelRequested, e.state.CancelMode
}

func (e *Engine) syncTo() model.BlockPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SyncTo
}

func (e *Engine) setStatus(status model.EngineStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = status
	e.state.UpdatedAt = time.Now()
}

func (e *Engine) setCurrentBlock(n model.BlockPosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.CurrentBlock = n
	e.state.UpdatedAt = time.Now()
	currentBlockGauge.Set(float64(n))
}

func (e *Engine) incProcessed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ProcessedBlocks++
}

func (e *Engine) setCriticalError(ce model.CriticalError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.CriticalError = &ce
	e.state.Status = model.EngineFailed
	e.state.UpdatedAt = time.Now()
}

// beginRun initializes a fresh in-memory state and marks the engine
// running. Returns an error if a run is already in progress — this is
// the engine's own, narrower version of the command surface's
// single-sync invariant, so Run is never reentrant even if misused
// directly.
func (e *Engine) beginRun(syncFrom, syncTo model.BlockPosition, isContinuous bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("sync-in-progress: engine already running")
	}

	e.running = true
	e.state = model.EngineState{
		ID:             uuid.NewString(),
		Status:         model.EngineRunning,
		SyncFrom:       syncFrom,
		SyncTo:         syncTo,
		IsContinuous:   isContinuous,
		OriginalTarget: syncTo,
		CurrentBlock:   syncFrom,
		StartedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	return nil
}

func (e *Engine) endRun() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}
