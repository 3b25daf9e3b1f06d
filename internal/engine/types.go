// Package engine implements the block-replay engine (spec §4.5): the
// state machine that drives one block through align -> stamp header ->
// inject transactions -> close -> validate receipts -> verify hash ->
// advance, plus pre-sync alignment and cooperative cancellation.
// Grounded on internal/syncer/syncer.go for the outer mutex-guarded
// status/accessor shape, and on
// other_examples/5051e45f_...driver-state.go's eventLoop for the
// single-loop shape. Cancellation is a mutex-guarded flag that the loop
// checks at its checkpoints; there are no request channels.
package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/internal/audit"
	"github.com/starknet-replay/orchestrator/internal/events"
	"github.com/starknet-replay/orchestrator/internal/history"
	"github.com/starknet-replay/orchestrator/internal/resume"
	"github.com/starknet-replay/orchestrator/internal/retry"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// SourceFacade is the read surface the engine needs from the source
// node. Satisfied by *internal/rpc.Source.
type SourceFacade interface {
	GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error)
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
}

// TargetFacade is the read/admin surface the engine needs from the
// target node. Satisfied by *internal/rpc.Target.
type TargetFacade interface {
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
	GetPreConfirmed(ctx context.Context) (model.BlockDescriptor, error)
	GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error)
	AdminSetCustomHeader(ctx context.Context, n model.BlockPosition, timestamp uint64, gasPrices model.GasPrices, expectedHash common.Hash) error
	AdminCloseBlock(ctx context.Context) error
	AdminInject(ctx context.Context, tx model.Transaction) (common.Hash, error)
	GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error)
}

// RecoveryCoordinator resolves a target-down condition into a recovery
// action (spec §4.6). Satisfied by *internal/recovery.Coordinator.
type RecoveryCoordinator interface {
	Recover(ctx context.Context, intendedBlock model.BlockPosition) (model.RecoveryAction, error)
}

// Deps bundles everything the Engine needs to run. Events, audit, and
// history are observability sinks and must be non-nil; an
// events.Publisher or audit.Sink connected with an empty URL drops
// everything.
type Deps struct {
	Source   SourceFacade
	Target   TargetFacade
	Resume   *resume.Store
	Recovery RecoveryCoordinator
	Executor *retry.Executor
	Events   *events.Publisher
	Audit    *audit.Sink
	History  *history.Store
	Policies Policies
	Logger   zerolog.Logger
}

// Policies bundles the engine-level (non-RPC) timing knobs: the hash
// verification policy, receipt validation budget/policy, align retry
// count, and the continuous-mode idle sleep.
type Policies struct {
	HashMatch        retry.Policy
	ReceiptBatch     retry.Policy
	ReceiptBudget    time.Duration
	AlignMaxAttempts int
	IdleSleep        time.Duration
}
