package history

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(n model.BlockPosition) model.BlockHistoryEntry {
	return model.BlockHistoryEntry{Block: n, SourceHash: common.BigToHash(nil), TargetHash: common.BigToHash(nil)}
}

func TestRecordAndRecentOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	for _, n := range []model.BlockPosition{1, 2, 3} {
		require.NoError(t, s.Record(entry(n)))
	}

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, model.BlockPosition(3), recent[0].Block)
	assert.Equal(t, model.BlockPosition(2), recent[1].Block)
	assert.Equal(t, model.BlockPosition(1), recent[2].Block)
}

func TestRecentRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	for n := model.BlockPosition(1); n <= 5; n++ {
		require.NoError(t, s.Record(entry(n)))
	}

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, model.BlockPosition(5), recent[0].Block)
}

func TestRecordPrunesBeyondRetentionBound(t *testing.T) {
	s := openTestStore(t)
	for n := model.BlockPosition(1); n <= keep+10; n++ {
		require.NoError(t, s.Record(entry(n)))
	}

	recent, err := s.Recent(keep + 50)
	require.NoError(t, err)
	assert.Len(t, recent, keep)
	assert.Equal(t, model.BlockPosition(keep+10), recent[0].Block)
}

func TestRecordOverwritesSameBlock(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record(model.BlockHistoryEntry{Block: 1, TxCount: 1}))
	require.NoError(t, s.Record(model.BlockHistoryEntry{Block: 1, TxCount: 9}))

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 9, recent[0].TxCount)
}
