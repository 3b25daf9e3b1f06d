package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starknet-replay/orchestrator/internal/rerr"
	"github.com/starknet-replay/orchestrator/internal/retry"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Run drives the engine loop from syncFrom through syncTo (or forever,
// if isContinuous), grounded on internal/syncer/syncer.go's Start loop
// shape. It blocks until the run completes, is cancelled, or fails.
// Callers (the command surface, startup recovery) run it in its own
// goroutine.
func (e *Engine) Run(ctx context.Context, syncFrom, syncTo model.BlockPosition, isContinuous bool) error {
	if err := e.beginRun(syncFrom, syncTo, isContinuous); err != nil {
		return err
	}
	defer e.endRun()

	logger := e.deps.Logger.With().Str("engine_id", e.state.ID).Logger()
	logger.Info().Uint64("from", uint64(syncFrom)).Uint64("to", uint64(syncTo)).Bool("continuous", isContinuous).Msg("engine starting")

	e.mu.Lock()
	startIntent := e.intentLocked()
	e.mu.Unlock()
	if err := e.deps.Resume.Save(startIntent); err != nil {
		logger.Warn().Err(err).Msg("failed to persist start-of-run resume record")
	}

	outcome, err := e.presync(ctx, syncFrom, syncTo)
	if err != nil {
		return e.finishOnErr(syncFrom, fmt.Errorf("pre-sync alignment: %w", err))
	}
	if outcome.done {
		return e.finishCompleted(syncFrom)
	}

	n := outcome.startBlock
	injected := outcome.alreadyInjected
	resumingSameBlock := false

	for {
		if !resumingSameBlock {
			if done, mode := e.cancelRequested(); done && mode == model.CancelFinishBlock {
				return e.finishCancelled(n)
			}
		}
		resumingSameBlock = false

		if !isContinuous && n > e.syncTo() {
			return e.finishCompleted(n)
		}
		if isContinuous && n > e.syncTo() {
			if done, _ := e.cancelRequested(); done {
				return e.finishCancelled(n)
			}
			if err := e.sleepIdle(ctx); err != nil {
				return e.finishOnErr(n, err)
			}
			continue
		}

		e.setCurrentBlock(n)
		start := time.Now()

		txCount, sourceHash, targetHash, err := e.replayBlock(ctx, n, injected)
		injected = nil // only the very first block (continue-block recovery) carries a prefix

		if err != nil {
			if rerr.Is(err, rerr.CodeTargetDown) {
				stalledAt := n
				action, rerrErr := e.recover(ctx, n)
				if rerrErr != nil {
					return e.finishOnErr(n, rerrErr)
				}
				n, injected = e.applyRecoveryAction(action)
				if action.Kind == model.RecoveryFailed {
					return e.finishOnErr(n, fmt.Errorf("recovery failed: %s", action.Reason))
				}
				// A finish-block cancel observed mid-recovery still honors
				// finishing the block recovery resumed on, so the top-of-loop
				// check is only skipped when recovery kept us on that same
				// block (restart/continue); a skip-to-block that moved past
				// it is a genuine new-block boundary.
				resumingSameBlock = n == stalledAt
				continue
			}
			return e.finishOnErr(n, err)
		}

		if herr := e.deps.History.Record(model.BlockHistoryEntry{
			Block: n, SourceHash: sourceHash, TargetHash: targetHash,
			TxCount: txCount, Duration: time.Since(start), CompletedAt: time.Now(),
		}); herr != nil {
			logger.Warn().Err(herr).Uint64("block", uint64(n)).Msg("failed to record block history")
		}
		e.deps.Audit.RecordBestEffort(ctx, model.BlockHistoryEntry{
			Block: n, SourceHash: sourceHash, TargetHash: targetHash,
			TxCount: txCount, Duration: time.Since(start), CompletedAt: time.Now(),
		})
		e.deps.Events.BlockCompleted(ctx, n, targetHash.Hex())
		blockDuration.Observe(time.Since(start).Seconds())
		processedBlocksCounter.Inc()
		e.incProcessed()

		if done, mode := e.cancelRequested(); done && mode == model.CancelImmediate {
			return e.finishCancelled(n + 1)
		}

		n++
	}
}

func (e *Engine) sleepIdle(ctx context.Context) error {
	t := time.NewTimer(e.deps.Policies.IdleSleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) finishCompleted(n model.BlockPosition) error {
	e.setStatus(model.EngineCompleted)
	e.deps.Resume.SaveIdle()
	e.deps.Logger.Info().Uint64("final_block", uint64(n)).Msg("engine run completed")
	return nil
}

func (e *Engine) finishCancelled(n model.BlockPosition) error {
	e.setStatus(model.EngineCancelled)
	e.deps.Resume.SaveIdle()
	e.deps.Logger.Info().Uint64("stopped_at", uint64(n)).Msg("engine run cancelled")
	return nil
}

func (e *Engine) finishOnErr(n model.BlockPosition, err error) error {
	code := "unknown"
	var re *rerr.Error
	if errors.As(err, &re) {
		code = string(re.Code)
	}
	engineErrors.WithLabelValues(code).Inc()
	e.deps.Events.BlockFailed(context.Background(), n, code)
	e.setCriticalError(model.CriticalError{Code: code, Message: err.Error(), Block: n, OccurredAt: time.Now()})
	e.deps.Resume.SaveIdle()
	e.deps.Logger.Error().Err(err).Uint64("block", uint64(n)).Str("code", code).Msg("engine run failed")
	return err
}

func (e *Engine) recover(ctx context.Context, intendedBlock model.BlockPosition) (model.RecoveryAction, error) {
	e.setStatus(model.EngineRecovering)
	recoveryInvocations.Inc()
	e.deps.Logger.Warn().Uint64("block", uint64(intendedBlock)).Msg("target down, invoking recovery coordinator")

	action, err := e.deps.Recovery.Recover(ctx, intendedBlock)
	if err != nil {
		return model.RecoveryAction{}, err
	}
	e.deps.Events.RecoveryAction(ctx, action)
	e.setStatus(model.EngineRunning)
	return action, nil
}

func (e *Engine) applyRecoveryAction(action model.RecoveryAction) (model.BlockPosition, []common.Hash) {
	switch action.Kind {
	case model.RecoveryRestartBlock, model.RecoverySkipToBlock:
		return action.Block, nil
	case model.RecoveryContinueBlock:
		return action.Block, action.AlreadyInjected
	default:
		return action.Block, nil
	}
}

// replayBlock runs the six-stage pipeline for block n (spec §4.5),
// returning the transaction count and both hashes on success.
// preInjected, when non-empty, is the already-injected prefix from a
// continue-block recovery action — injection resumes after it instead
// of restarting from the first transaction.
func (e *Engine) replayBlock(ctx context.Context, n model.BlockPosition, preInjected []common.Hash) (txCount int, sourceHash, targetHash common.Hash, err error) {
	if err := e.align(ctx, n); err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}

	var source model.BlockDescriptor
	if len(preInjected) == 0 {
		source, err = e.stampHeader(ctx, n)
		if err != nil {
			return 0, common.Hash{}, common.Hash{}, err
		}
	} else {
		source, err = e.deps.Source.GetBlock(ctx, n)
		if err != nil {
			return 0, common.Hash{}, common.Hash{}, err
		}
	}

	if err := e.injectTransactions(ctx, source, len(preInjected)); err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}

	if err := e.deps.Target.AdminCloseBlock(ctx); err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}

	if err := e.validateReceipts(ctx, n, source.Transactions); err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}

	targetHash, err = e.verifyHash(ctx, n, source.Hash)
	if err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}

	return len(source.Transactions), source.Hash, targetHash, nil
}

// align asserts target.latestAccepted + 1 == n, retrying up to
// AlignMaxAttempts times with a short linear back-off before escalating
// (spec §4.5 step 1). A target-down error here is returned as-is so the
// caller routes to recovery.
func (e *Engine) align(ctx context.Context, n model.BlockPosition) error {
	for attempt := 0; attempt < e.deps.Policies.AlignMaxAttempts; attempt++ {
		latest, err := e.deps.Target.GetLatestAccepted(ctx)
		if err != nil {
			return err
		}
		if latest+1 == n {
			return nil
		}
		if attempt == e.deps.Policies.AlignMaxAttempts-1 {
			break
		}
		t := time.NewTimer(time.Duration(attempt+1) * 500 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return rerr.Wrap(rerr.CodeTargetDown, fmt.Sprintf("align failed: target not at height %d-1 after %d attempts", n, e.deps.Policies.AlignMaxAttempts), nil)
}

// stampHeader fetches block n from the source and stamps its header
// fields onto the target's next pre-confirmed block (spec §4.5 step 2).
// The fetched descriptor is reused by the caller for injection, so the
// source is only fetched once per block.
func (e *Engine) stampHeader(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	source, err := e.deps.Source.GetBlock(ctx, n)
	if err != nil {
		return model.BlockDescriptor{}, err
	}
	if err := e.deps.Target.AdminSetCustomHeader(ctx, n, source.Timestamp, source.GasPrices, source.Hash); err != nil {
		return model.BlockDescriptor{}, err
	}
	return source, nil
}

// injectTransactions injects source.Transactions[skip:] sequentially,
// the next call starting only once the previous has returned (spec
// §4.5 step 3). Immediate-cancel is checked between injections.
func (e *Engine) injectTransactions(ctx context.Context, source model.BlockDescriptor, skip int) error {
	for i := skip; i < len(source.Transactions); i++ {
		if done, mode := e.cancelRequested(); done && mode == model.CancelImmediate {
			return fmt.Errorf("cancelled during injection of transaction %d of block %d", i, source.Number)
		}

		tx := source.Transactions[i]
		if _, err := e.deps.Target.AdminInject(ctx, tx); err != nil {
			if rerr.Is(err, rerr.CodeTargetDown) {
				return err
			}
			return rerr.Wrap(rerr.CodeInjectFailed, fmt.Sprintf("inject tx %d (%s) of block %d", i, tx.Hash, source.Number), err)
		}
	}
	return nil
}

// validateReceipts batch-fetches block n's receipts under phased
// polling (spec §4.5 step 5), verifying every injected hash is present
// with an accepted execution status. An unexpected status value raises
// inject-failed immediately, without waiting out the budget.
func (e *Engine) validateReceipts(ctx context.Context, n model.BlockPosition, txs []model.Transaction) error {
	want := make(map[common.Hash]struct{}, len(txs))
	for _, tx := range txs {
		want[tx.Hash] = struct{}{}
	}

	_, err := e.deps.Executor.ExecutePhased(ctx, e.deps.Policies.ReceiptBatch, e.deps.Policies.ReceiptBudget, 500*time.Millisecond,
		func(err error) bool {
			if rerr.Is(err, rerr.CodeInjectFailed) {
				return false
			}
			return retry.DefaultIsRetryable(err)
		},
		func(ctx context.Context, attempt int) error {
			_, receipts, err := e.deps.Target.GetBlockWithReceipts(ctx, n)
			if err != nil {
				return err
			}

			got := make(map[common.Hash]model.Receipt, len(receipts))
			for _, r := range receipts {
				got[r.TransactionHash] = r
			}

			for hash := range want {
				r, ok := got[hash]
				if !ok {
					return fmt.Errorf("receipt for %s not yet present", hash)
				}
				if !r.ExecutionStatus.Accepted() {
					return rerr.New(rerr.CodeInjectFailed, fmt.Sprintf("transaction %s rejected with status %s", hash, r.ExecutionStatus))
				}
			}
			return nil
		})
	if err != nil {
		if rerr.Is(err, rerr.CodeInjectFailed) {
			return err
		}
		return rerr.Wrap(rerr.CodeReceiptTimeout, fmt.Sprintf("receipts for block %d did not converge within budget", n), err)
	}
	return nil
}

// verifyHash fetches the target's block n hash (retried up to 400
// attempts to tolerate finalization lag) and compares it to the
// source's (spec §4.5 step 6). A mismatch is fatal and non-retryable.
func (e *Engine) verifyHash(ctx context.Context, n model.BlockPosition, sourceHash common.Hash) (common.Hash, error) {
	target, err := e.deps.Target.GetBlock(ctx, n)
	if err != nil {
		return common.Hash{}, err
	}
	if target.Hash != sourceHash {
		ce := model.CriticalError{
			Code: string(rerr.CodeHashMismatch), Block: n,
			SourceHash: sourceHash, TargetHash: target.Hash, OccurredAt: time.Now(),
		}
		e.deps.Events.CriticalError(ctx, ce)
		return common.Hash{}, rerr.New(rerr.CodeHashMismatch, fmt.Sprintf("block %d: source=%s target=%s", n, sourceHash, target.Hash))
	}
	return target.Hash, nil
}
