package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

var errNotFound = errors.New("not found")

// fakeSource is an in-memory source chain: block N's hash is
// deterministic, so tests can assert the target matches it without a
// real node.
type fakeSource struct {
	mu     sync.Mutex
	blocks map[model.BlockPosition]model.BlockDescriptor
	latest model.BlockPosition
}

func newFakeSource(n model.BlockPosition) *fakeSource {
	s := &fakeSource{blocks: make(map[model.BlockPosition]model.BlockDescriptor), latest: n}
	for i := model.BlockPosition(1); i <= n; i++ {
		s.blocks[i] = fakeBlock(i)
	}
	return s
}

func fakeBlock(n model.BlockPosition) model.BlockDescriptor {
	hash := common.BigToHash(new(big.Int).SetUint64(uint64(n)))
	return model.BlockDescriptor{
		Number:    n,
		Hash:      hash,
		Timestamp: uint64(n) * 10,
		Transactions: []model.Transaction{
			{Type: model.TxInvoke, Version: 1, Hash: common.BigToHash(new(big.Int).SetUint64(uint64(n)*1000 + 1))},
			{Type: model.TxInvoke, Version: 1, Hash: common.BigToHash(new(big.Int).SetUint64(uint64(n)*1000 + 2))},
		},
	}
}

func (s *fakeSource) GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[n]
	if !ok {
		return model.BlockDescriptor{}, errNotFound
	}
	return b, nil
}

func (s *fakeSource) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, nil
}

// fakeTarget replays a fakeSource's blocks faithfully: stamping,
// injecting, and closing produces a block whose hash equals the
// source's, so the engine's verify-hash step passes without a real
// Starknet devnet.
type fakeTarget struct {
	mu        sync.Mutex
	latest    model.BlockPosition
	pending   *model.BlockDescriptor
	committed map[model.BlockPosition]model.BlockDescriptor
	receipts  map[model.BlockPosition][]model.Receipt

	failTargetDownOnce bool
	injectErr          error

	// badStatusBlock, when non-zero, makes the first receipt of that
	// block's commit report an execution status outside
	// {SUCCEEDED, REVERTED}, and receiptCalls counts how many times
	// GetBlockWithReceipts was asked for it.
	badStatusBlock model.BlockPosition
	receiptCalls   int
}

func newFakeTarget(latest model.BlockPosition) *fakeTarget {
	return &fakeTarget{
		latest:    latest,
		committed: make(map[model.BlockPosition]model.BlockDescriptor),
		receipts:  make(map[model.BlockPosition][]model.Receipt),
	}
}

func (t *fakeTarget) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, nil
}

func (t *fakeTarget) GetPreConfirmed(ctx context.Context) (model.BlockDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return model.BlockDescriptor{Number: t.latest + 1}, nil
	}
	return *t.pending, nil
}

func (t *fakeTarget) GetBlock(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.committed[n]
	if !ok {
		return model.BlockDescriptor{Number: n}, nil // unfinalized (zero hash)
	}
	return b, nil
}

func (t *fakeTarget) AdminSetCustomHeader(ctx context.Context, n model.BlockPosition, timestamp uint64, gasPrices model.GasPrices, expectedHash common.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = &model.BlockDescriptor{Number: n, Timestamp: timestamp, GasPrices: gasPrices, Hash: expectedHash}
	return nil
}

func (t *fakeTarget) AdminCloseBlock(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return errNotFound
	}
	n := t.pending.Number
	t.committed[n] = *t.pending
	receipts := make([]model.Receipt, len(t.pending.Transactions))
	for i, tx := range t.pending.Transactions {
		status := model.ExecutionSucceeded
		if i == 0 && n == t.badStatusBlock {
			status = "UNKNOWN"
		}
		receipts[i] = model.Receipt{TransactionHash: tx.Hash, ExecutionStatus: status}
	}
	t.receipts[n] = receipts
	t.latest = n
	t.pending = nil
	return nil
}

func (t *fakeTarget) AdminInject(ctx context.Context, tx model.Transaction) (common.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.injectErr != nil {
		return common.Hash{}, t.injectErr
	}
	if t.pending == nil {
		return common.Hash{}, errNotFound
	}
	t.pending.Transactions = append(t.pending.Transactions, tx)
	return tx.Hash, nil
}

func (t *fakeTarget) GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiptCalls++
	b, ok := t.committed[n]
	if !ok {
		return model.BlockDescriptor{}, nil, errNotFound
	}
	return b, t.receipts[n], nil
}

type fakeRecovery struct {
	action model.RecoveryAction
	err    error
}

func (f *fakeRecovery) Recover(ctx context.Context, intendedBlock model.BlockPosition) (model.RecoveryAction, error) {
	return f.action, f.err
}
