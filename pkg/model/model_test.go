package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestBlockDescriptorFinalized(t *testing.T) {
	pending := BlockDescriptor{Number: 10}
	assert.False(t, pending.Finalized())

	finalized := BlockDescriptor{Number: 10, Hash: common.HexToHash("0x1")}
	assert.True(t, finalized.Finalized())
}

func TestExecutionStatusAccepted(t *testing.T) {
	assert.True(t, ExecutionSucceeded.Accepted())
	assert.True(t, ExecutionReverted.Accepted())
	assert.False(t, ExecutionStatus("REJECTED").Accepted())
}

func TestRecoveryActionConstructors(t *testing.T) {
	r := RestartBlock(5)
	assert.Equal(t, RecoveryRestartBlock, r.Kind)
	assert.Equal(t, BlockPosition(5), r.Block)

	hashes := []common.Hash{common.HexToHash("0x1")}
	c := ContinueBlock(6, hashes)
	assert.Equal(t, RecoveryContinueBlock, c.Kind)
	assert.Equal(t, hashes, c.AlreadyInjected)

	s := SkipToBlock(7)
	assert.Equal(t, RecoverySkipToBlock, s.Kind)

	f := FailedRecovery("target never recovered")
	assert.Equal(t, RecoveryFailed, f.Kind)
	assert.Equal(t, "target never recovered", f.Reason)
}
