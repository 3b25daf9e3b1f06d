package events

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

func TestConnectDisabledWhenURLEmpty(t *testing.T) {
	p, err := Connect("", zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, p.Healthy())
}

func TestPublishNoopOnDisabledPublisher(t *testing.T) {
	p, err := Connect("", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), Event{Kind: KindBlockCompleted, Block: 1}))
}

func TestDisabledPublisherConvenienceMethodsDoNotPanic(t *testing.T) {
	p, err := Connect("", zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		p.BlockCompleted(ctx, 1, "0x1")
		p.BlockFailed(ctx, 2, "target-down")
		p.RecoveryAction(ctx, model.RecoveryAction{Block: 3, Kind: model.RecoverySkipToBlock, Reason: "stale target"})
		p.CriticalError(ctx, model.CriticalError{
			Block: 4, Code: "hash-mismatch", Message: "mismatch",
			SourceHash: common.HexToHash("0xaa"), TargetHash: common.HexToHash("0xbb"),
		})
		p.Close()
	})
}

func TestConnectFailsFastOnUnreachableURL(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:0", zerolog.Nop())
	require.Error(t, err)
}
