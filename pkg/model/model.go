// Package model defines the data entities shared by the replay engine,
// the RPC facade, and the transaction adapters that plug into it.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BlockPosition is a non-negative block height. The engine always works
// on a single "current" position; positions are totally ordered.
type BlockPosition uint64

// BlockTag selects a named block instead of a concrete height.
type BlockTag string

const (
	TagLatest       BlockTag = "latest"
	TagPreConfirmed BlockTag = "pre_confirmed"
	TagL1Accepted   BlockTag = "l1_accepted"
)

// GasPrices carries the L1, L1-data and L2 gas price lanes, each in both
// wei and fri denominations, as returned by a block header.
type GasPrices struct {
	L1GasWei     *Felt
	L1GasFri     *Felt
	L1DataGasWei *Felt
	L1DataGasFri *Felt
	L2GasWei     *Felt
	L2GasFri     *Felt
}

// Felt is a 256-bit integer value, wide enough to hold a Starknet field
// element. hexutil.DecodeBig (see internal/rpc) produces these from the
// hex strings a node returns.
type Felt = common.Hash

// TxType identifies the shape of a transaction payload.
type TxType string

const (
	TxInvoke        TxType = "invoke"
	TxDeclare       TxType = "declare"
	TxDeployAccount TxType = "deploy_account"
	TxL1Handler     TxType = "l1_handler"
)

// TxVersion is the transaction version, 0 through 3.
type TxVersion uint8

// Transaction is an opaque payload plus the tag the engine uses to route
// it to an adapter. The engine never inspects Payload.
type Transaction struct {
	Type    TxType
	Version TxVersion
	Hash    common.Hash
	Payload []byte
}

// BlockDescriptor is a block as read from a node. A finalized descriptor
// has a non-zero Hash; a pending (pre-confirmed) descriptor does not.
type BlockDescriptor struct {
	Number       BlockPosition
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    uint64
	GasPrices    GasPrices
	Transactions []Transaction
}

// Finalized reports whether the descriptor carries a committed hash.
func (b BlockDescriptor) Finalized() bool {
	return b.Hash != (common.Hash{})
}

// SyncStatus is the engine's persisted run status.
type SyncStatus string

const (
	StatusRunning SyncStatus = "running"
	StatusIdle    SyncStatus = "idle"
)

// SyncTarget is the declared end of a sync run: a concrete height, or
// "follow the tip forever".
type SyncTarget struct {
	Block       BlockPosition
	Latest      bool
}

// SyncIntent is the engine's declared intent, persisted to the resume
// record so the process can restart without an external coordinator.
type SyncIntent struct {
	Status       SyncStatus `json:"status"`
	SyncTo       *uint64    `json:"syncTo"` // nil == not yet resolved; ignored if IsContinuous and unresolved
	IsContinuous bool       `json:"isContinuous"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// EngineStatus is the in-memory lifecycle status of a running engine.
type EngineStatus string

const (
	EngineRunning    EngineStatus = "running"
	EngineRecovering EngineStatus = "recovering"
	EngineCancelled  EngineStatus = "cancelled"
	EngineFailed     EngineStatus = "failed"
	EngineCompleted  EngineStatus = "completed"
)

// EngineState is the in-memory snapshot of a single engine run. At most
// one instance exists per process.
type EngineState struct {
	ID               string
	Status           EngineStatus
	SyncFrom         BlockPosition
	SyncTo           BlockPosition
	IsContinuous     bool
	OriginalTarget   BlockPosition
	CurrentBlock     BlockPosition
	ProcessedBlocks  uint64
	CancelRequested  bool
	CancelMode       CancelMode
	CriticalError    *CriticalError
	StartedAt        time.Time
	UpdatedAt        time.Time
}

// CancelMode selects when a cancel request takes effect.
type CancelMode string

const (
	CancelNone        CancelMode = ""
	CancelImmediate   CancelMode = "immediate"
	CancelFinishBlock CancelMode = "finish_block"
)

// CriticalError captures a fatal condition for operator surfacing, per
// spec §7 and scenario S4 (block number and both hashes for a
// hash-mismatch).
type CriticalError struct {
	Code        string
	Message     string
	Block       BlockPosition
	SourceHash  common.Hash
	TargetHash  common.Hash
	OccurredAt  time.Time
}

// RecoveryActionKind tags the variant returned by the recovery
// coordinator.
type RecoveryActionKind string

const (
	RecoveryRestartBlock  RecoveryActionKind = "restart_block"
	RecoveryContinueBlock RecoveryActionKind = "continue_block"
	RecoverySkipToBlock   RecoveryActionKind = "skip_to_block"
	RecoveryFailed        RecoveryActionKind = "failed"
)

// RecoveryAction is the tagged result of the recovery coordinator's
// stateless state query (spec §4.6).
type RecoveryAction struct {
	Kind             RecoveryActionKind
	Block            BlockPosition
	AlreadyInjected  []common.Hash
	Reason           string
}

func RestartBlock(n BlockPosition) RecoveryAction {
	return RecoveryAction{Kind: RecoveryRestartBlock, Block: n}
}

func ContinueBlock(n BlockPosition, injected []common.Hash) RecoveryAction {
	return RecoveryAction{Kind: RecoveryContinueBlock, Block: n, AlreadyInjected: injected}
}

func SkipToBlock(n BlockPosition) RecoveryAction {
	return RecoveryAction{Kind: RecoverySkipToBlock, Block: n}
}

func FailedRecovery(reason string) RecoveryAction {
	return RecoveryAction{Kind: RecoveryFailed, Reason: reason}
}

// Receipt carries the outcome of a single injected transaction.
type Receipt struct {
	TransactionHash common.Hash
	ExecutionStatus ExecutionStatus
}

// ExecutionStatus mirrors the target node's receipt execution_status
// field.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionReverted  ExecutionStatus = "REVERTED"
)

// Accepted reports whether status is one of the two values the engine
// treats as a normal (non-fatal) outcome. See SPEC_FULL.md open-question
// decision 1 for values outside this set.
func (s ExecutionStatus) Accepted() bool {
	return s == ExecutionSucceeded || s == ExecutionReverted
}

// BlockHistoryEntry summarizes one replayed block, used by
// internal/history and internal/audit.
type BlockHistoryEntry struct {
	Block        BlockPosition
	SourceHash   common.Hash
	TargetHash   common.Hash
	TxCount      int
	Duration     time.Duration
	RetryCount   int
	CompletedAt  time.Time
	Failed       bool
	FailureCode  string
}
