package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

func TestLoadMissingFileIsIdle(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	intent := s.Load()
	assert.Equal(t, model.StatusIdle, intent.Status)
}

func TestLoadCorruptFileIsIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := New(path)
	intent := s.Load()
	assert.Equal(t, model.StatusIdle, intent.Status)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "resume.json")
	s := New(path)

	syncTo := uint64(100)
	require.NoError(t, s.Save(model.SyncIntent{
		Status:       model.StatusRunning,
		SyncTo:       &syncTo,
		IsContinuous: false,
	}))

	got := s.Load()
	assert.Equal(t, model.StatusRunning, got.Status)
	require.NotNil(t, got.SyncTo)
	assert.Equal(t, uint64(100), *got.SyncTo)
	assert.False(t, got.IsContinuous)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSaveIdleOverwritesPriorIntent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.json")
	s := New(path)

	syncTo := uint64(50)
	require.NoError(t, s.Save(model.SyncIntent{Status: model.StatusRunning, SyncTo: &syncTo}))
	require.NoError(t, s.SaveIdle())

	got := s.Load()
	assert.Equal(t, model.StatusIdle, got.Status)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.json")
	s := New(path)

	require.NoError(t, s.SaveIdle())

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "atomic rename should leave no .tmp file")
}
