package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starknet-replay/orchestrator/internal/rerr"
	"github.com/starknet-replay/orchestrator/internal/retry"
	"github.com/starknet-replay/orchestrator/pkg/adapter"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

type fakeTransport struct {
	getByNumber func(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error)
	getByTag    func(ctx context.Context, tag model.BlockTag) (model.BlockDescriptor, error)
	latest      func(ctx context.Context) (model.BlockPosition, error)
}

func (f *fakeTransport) GetBlockByNumber(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	return f.getByNumber(ctx, n)
}
func (f *fakeTransport) GetBlockByTag(ctx context.Context, tag model.BlockTag) (model.BlockDescriptor, error) {
	return f.getByTag(ctx, tag)
}
func (f *fakeTransport) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	return f.latest(ctx)
}

func noSleepExecutorForTest() *retry.Executor {
	return retry.NewExecutor()
}

func TestSourceGetBlockRetriesTransientFaults(t *testing.T) {
	calls := 0
	want := model.BlockDescriptor{Number: 10, Hash: common.HexToHash("0xaa")}
	transport := &fakeTransport{
		getByNumber: func(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
			calls++
			if calls < 2 {
				return model.BlockDescriptor{}, errors.New("temporary read error")
			}
			return want, nil
		},
	}

	src := NewSource(transport, noSleepExecutorForTest(), retry.Policy{Kind: retry.Fixed, MaxAttempts: 5}, zerolog.Nop())
	got, err := src.GetBlock(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 2, calls)
}

func TestSourceGetBlockClassifiesConnectionFailureAsTargetDown(t *testing.T) {
	transport := &fakeTransport{
		getByNumber: func(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
			return model.BlockDescriptor{}, errors.New("connection refused")
		},
	}

	src := NewSource(transport, noSleepExecutorForTest(), retry.Policy{Kind: retry.Fixed, MaxAttempts: 5}, zerolog.Nop())
	_, err := src.GetBlock(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, rerr.Is(err, rerr.CodeTargetDown))
}

type fakeAdminTransport struct {
	fakeTransport
	setHeader    func(ctx context.Context, n model.BlockPosition, ts uint64, gp model.GasPrices, hash common.Hash) error
	closeBlock   func(ctx context.Context) error
	getReceipt   func(ctx context.Context, hash common.Hash) (model.Receipt, error)
	withReceipts func(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error)
}

func (f *fakeAdminTransport) SetCustomHeader(ctx context.Context, n model.BlockPosition, ts uint64, gp model.GasPrices, hash common.Hash) error {
	return f.setHeader(ctx, n, ts, gp, hash)
}
func (f *fakeAdminTransport) CloseBlock(ctx context.Context) error { return f.closeBlock(ctx) }
func (f *fakeAdminTransport) GetReceipt(ctx context.Context, hash common.Hash) (model.Receipt, error) {
	return f.getReceipt(ctx, hash)
}
func (f *fakeAdminTransport) GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error) {
	return f.withReceipts(ctx, n)
}

func defaultPolicies() Policies {
	fast := retry.Policy{Kind: retry.Fixed, MaxAttempts: 3}
	return Policies{
		TargetHashPoll:    fast,
		HashMatch:         fast,
		ReceiptPollSerial: fast,
		ReceiptPollBatch:  retry.Policy{Kind: retry.Fixed, Base: 0, MaxAttempts: 3},
		TransactionInject: fast,
	}
}

func TestTargetGetBlockWaitsForFinalization(t *testing.T) {
	calls := 0
	finalized := model.BlockDescriptor{Number: 5, Hash: common.HexToHash("0xbb")}
	transport := &fakeAdminTransport{fakeTransport: fakeTransport{
		getByNumber: func(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
			calls++
			if calls < 2 {
				return model.BlockDescriptor{Number: 5}, nil // pending, no hash yet
			}
			return finalized, nil
		},
	}}

	tgt := NewTarget(transport, adapter.NewTable(), noSleepExecutorForTest(), defaultPolicies(), zerolog.Nop())
	got, err := tgt.GetBlock(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, finalized, got)
}

func TestTargetAdminInjectDispatchesThroughTable(t *testing.T) {
	tbl := adapter.NewTable()
	want := common.HexToHash("0xcc")
	tbl.Register(model.TxInvoke, 1, func(ctx context.Context, tx model.Transaction) (common.Hash, error) {
		return want, nil
	})

	transport := &fakeAdminTransport{}
	tgt := NewTarget(transport, tbl, noSleepExecutorForTest(), defaultPolicies(), zerolog.Nop())

	got, err := tgt.AdminInject(context.Background(), model.Transaction{Type: model.TxInvoke, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
