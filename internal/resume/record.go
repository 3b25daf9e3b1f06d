// Package resume implements the on-disk resume record (spec §4.4): a
// single JSON file holding the engine's declared intent, written
// atomically (temp file + rename) so a crash mid-write never corrupts
// it. Grounded on internal/db/checkpoint.go's JSON-marshal-to-store
// shape and on the FileStateStore.SaveLastID atomic-write idiom
// (other_examples/310f84f9_...engine.go).
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Store reads and writes the resume record at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex
}

// New builds a Store for the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the resume record. A missing or corrupt file is treated as
// status=idle, per spec §4.4 ("reads are best-effort").
func (s *Store) Load() model.SyncIntent {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.SyncIntent{Status: model.StatusIdle}
	}

	var intent model.SyncIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return model.SyncIntent{Status: model.StatusIdle}
	}
	if intent.Status == "" {
		intent.Status = model.StatusIdle
	}
	return intent
}

// Save writes the resume record atomically: write to a temp file in the
// same directory, fsync, then rename over the target path. Rename is
// atomic on POSIX filesystems, so a reader never observes a partially
// written file.
func (s *Store) Save(intent model.SyncIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent.UpdatedAt = time.Now()

	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal resume record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create resume record dir: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp resume record: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp resume record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp resume record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp resume record: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename resume record: %w", err)
	}
	return nil
}

// SaveIdle writes status=idle, preserving no other fields — the
// terminal state written at clean stop, completion, and shutdown.
func (s *Store) SaveIdle() error {
	return s.Save(model.SyncIntent{Status: model.StatusIdle})
}
