package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/internal/retry"
	"github.com/starknet-replay/orchestrator/pkg/adapter"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Policies bundles every operation-specific retry policy the facade
// uses, per spec §4.1's table.
type Policies struct {
	SourceBlockFetch   retry.Policy
	TargetHashPoll     retry.Policy
	HashMatch          retry.Policy
	ReceiptPollSerial  retry.Policy
	ReceiptPollBatch   retry.Policy
	TransactionInject  retry.Policy
}

// Source wraps the source node's read-only transport, fetching blocks
// through the retry executor with the source-fetch policy. Every read
// classifies its error (connection refused/DNS/reset/fetch-failed maps
// to target-down; everything else is transient and retryable).
type Source struct {
	transport Transport
	executor  *retry.Executor
	policy    retry.Policy
	logger    zerolog.Logger
}

// NewSource builds a Source facade.
func NewSource(transport Transport, executor *retry.Executor, policy retry.Policy, logger zerolog.Logger) *Source {
	return &Source{transport: transport, executor: executor, policy: policy, logger: logger.With().Str("component", "rpc.source").Logger()}
}

// GetBlock fetches a finalized block by number, retrying transient
// faults and surfacing target-down immediately.
func (s *Source) GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	var out model.BlockDescriptor
	_, err := s.executor.Execute(ctx, s.policy, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		block, err := s.transport.GetBlockByNumber(ctx, n)
		if err != nil {
			return classify(err)
		}
		out = block
		return nil
	})
	if err != nil {
		return model.BlockDescriptor{}, fmt.Errorf("source.getBlock(%d): %w", n, err)
	}
	return out, nil
}

// GetBlockByTag fetches a block by named tag (latest, pre_confirmed,
// l1_accepted).
func (s *Source) GetBlockByTag(ctx context.Context, tag model.BlockTag) (model.BlockDescriptor, error) {
	var out model.BlockDescriptor
	_, err := s.executor.Execute(ctx, s.policy, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		block, err := s.transport.GetBlockByTag(ctx, tag)
		if err != nil {
			return classify(err)
		}
		out = block
		return nil
	})
	if err != nil {
		return model.BlockDescriptor{}, fmt.Errorf("source.getBlockByTag(%s): %w", tag, err)
	}
	return out, nil
}

// GetLatestAccepted returns the source chain's latest accepted height.
func (s *Source) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	var out model.BlockPosition
	_, err := s.executor.Execute(ctx, s.policy, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		n, err := s.transport.GetLatestAccepted(ctx)
		if err != nil {
			return classify(err)
		}
		out = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("source.getLatestAccepted: %w", err)
	}
	return out, nil
}

// Target wraps the target node's read/admin surface plus the
// transaction dispatch table (pkg/adapter).
type Target struct {
	transport AdminTransport
	dispatch  *adapter.Table
	executor  *retry.Executor
	policies  Policies
	logger    zerolog.Logger
}

// NewTarget builds a Target facade.
func NewTarget(transport AdminTransport, dispatch *adapter.Table, executor *retry.Executor, policies Policies, logger zerolog.Logger) *Target {
	return &Target{transport: transport, dispatch: dispatch, executor: executor, policies: policies, logger: logger.With().Str("component", "rpc.target").Logger()}
}

// GetLatestAccepted returns the target's latest accepted height.
func (t *Target) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	var out model.BlockPosition
	_, err := t.executor.Execute(ctx, t.policies.TargetHashPoll, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		n, err := t.transport.GetLatestAccepted(ctx)
		if err != nil {
			return classify(err)
		}
		out = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("target.getLatestAccepted: %w", err)
	}
	return out, nil
}

// GetPreConfirmed returns the target's currently-assembling block.
func (t *Target) GetPreConfirmed(ctx context.Context) (model.BlockDescriptor, error) {
	var out model.BlockDescriptor
	_, err := t.executor.Execute(ctx, t.policies.TargetHashPoll, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		block, err := t.transport.GetBlockByTag(ctx, model.TagPreConfirmed)
		if err != nil {
			return classify(err)
		}
		out = block
		return nil
	})
	if err != nil {
		return model.BlockDescriptor{}, fmt.Errorf("target.getPreConfirmed: %w", err)
	}
	return out, nil
}

// GetBlock fetches the target's committed block by number, used for
// verify-hash (retried up to 400 attempts to tolerate finalization lag).
func (t *Target) GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	var out model.BlockDescriptor
	_, err := t.executor.Execute(ctx, t.policies.HashMatch, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		block, err := t.transport.GetBlockByNumber(ctx, n)
		if err != nil {
			return classify(err)
		}
		if !block.Finalized() {
			return fmt.Errorf("block %d not yet finalized on target", n)
		}
		out = block
		return nil
	})
	if err != nil {
		return model.BlockDescriptor{}, fmt.Errorf("target.getBlock(%d): %w", n, err)
	}
	return out, nil
}

// AdminSetCustomHeader instructs the target that the next block it
// builds has the given header fields (spec §4.3/§4.5 step 2).
func (t *Target) AdminSetCustomHeader(ctx context.Context, n model.BlockPosition, timestamp uint64, gasPrices model.GasPrices, expectedHash common.Hash) error {
	_, err := t.executor.Execute(ctx, t.policies.TargetHashPoll, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		return classify(t.transport.SetCustomHeader(ctx, n, timestamp, gasPrices, expectedHash))
	})
	if err != nil {
		return fmt.Errorf("target.adminSetCustomHeader(%d): %w", n, err)
	}
	return nil
}

// AdminCloseBlock finalizes the target's current pre-confirmed block.
func (t *Target) AdminCloseBlock(ctx context.Context) error {
	_, err := t.executor.Execute(ctx, t.policies.TargetHashPoll, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		return classify(t.transport.CloseBlock(ctx))
	})
	if err != nil {
		return fmt.Errorf("target.adminCloseBlock: %w", err)
	}
	return nil
}

// AdminInject routes tx through the dispatch table indexed by
// (type, version), under the transaction-inject policy. On a transport
// fault the caller is expected to probe health once and escalate
// (spec §4.1's "Transaction inject" row); AdminInject itself only
// retries and classifies.
func (t *Target) AdminInject(ctx context.Context, tx model.Transaction) (common.Hash, error) {
	var out common.Hash
	_, err := t.executor.Execute(ctx, t.policies.TransactionInject, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		hash, err := t.dispatch.Dispatch(ctx, tx)
		if err != nil {
			return classify(err)
		}
		out = hash
		return nil
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("target.adminInject(%s/%d, %s): %w", tx.Type, tx.Version, tx.Hash, err)
	}
	return out, nil
}

// GetReceipt returns a single transaction's receipt, retried under the
// serial receipt-poll policy.
func (t *Target) GetReceipt(ctx context.Context, hash common.Hash) (model.Receipt, error) {
	var out model.Receipt
	_, err := t.executor.Execute(ctx, t.policies.ReceiptPollSerial, retry.DefaultIsRetryable, func(ctx context.Context, attempt int) error {
		r, err := t.transport.GetReceipt(ctx, hash)
		if err != nil {
			return classify(err)
		}
		out = r
		return nil
	})
	if err != nil {
		return model.Receipt{}, fmt.Errorf("target.getReceipt(%s): %w", hash, err)
	}
	return out, nil
}

// GetBlockWithReceipts returns block n with all of its receipts in one
// call, used by the batch receipt validator (§4.5 step 5). The caller
// (internal/engine) wraps this in phased polling — this method itself
// makes a single attempt, classified but not retried, so the engine can
// drive its own budget-aware loop.
func (t *Target) GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error) {
	block, receipts, err := t.transport.GetBlockWithReceipts(ctx, n)
	if err != nil {
		return model.BlockDescriptor{}, nil, classify(err)
	}
	return block, receipts, nil
}
