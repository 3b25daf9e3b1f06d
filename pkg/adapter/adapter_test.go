package adapter

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	tbl := NewTable()
	want := common.HexToHash("0xabc")
	tbl.Register(model.TxInvoke, 1, func(ctx context.Context, tx model.Transaction) (common.Hash, error) {
		return want, nil
	})

	got, err := tbl.Dispatch(context.Background(), model.Transaction{Type: model.TxInvoke, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDispatchUnregisteredPairFails(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Dispatch(context.Background(), model.Transaction{Type: model.TxDeclare, Version: 2})
	require.Error(t, err)
}

func TestHasHandlerDistinguishesVersions(t *testing.T) {
	tbl := NewTable()
	tbl.Register(model.TxInvoke, 1, func(ctx context.Context, tx model.Transaction) (common.Hash, error) {
		return common.Hash{}, nil
	})

	assert.True(t, tbl.HasHandler(model.TxInvoke, 1))
	assert.False(t, tbl.HasHandler(model.TxInvoke, 3))
	assert.False(t, tbl.HasHandler(model.TxDeclare, 1))
}

func TestRegisterTwiceReplacesHandler(t *testing.T) {
	tbl := NewTable()
	tbl.Register(model.TxInvoke, 1, func(ctx context.Context, tx model.Transaction) (common.Hash, error) {
		return common.HexToHash("0x1"), nil
	})
	tbl.Register(model.TxInvoke, 1, func(ctx context.Context, tx model.Transaction) (common.Hash, error) {
		return common.HexToHash("0x2"), nil
	})

	got, err := tbl.Dispatch(context.Background(), model.Transaction{Type: model.TxInvoke, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x2"), got)
}
