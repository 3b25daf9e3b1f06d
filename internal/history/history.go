// Package history is a local embedded cache of recent block-replay
// summaries, so the command surface's status() call can report recent
// timings without re-deriving them from the in-memory engine state or
// round-tripping to the audit database. Grounded directly on
// internal/db/checkpoint.go's bucket-per-key bbolt wrapper.
package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

const bucketName = "block_history"

// keep bounds how many recent entries are retained; older ones are
// pruned on each insert.
const keep = 200

// Store is a bbolt-backed ring of recent BlockHistoryEntry values.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Record stores one block's replay summary, pruning the oldest entry
// once the ring exceeds its bound.
func (s *Store) Record(entry model.BlockHistoryEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal history entry: %w", err)
		}

		key := blockKey(entry.Block)
		if err := b.Put(key, data); err != nil {
			return err
		}

		return prune(b)
	})
}

// Recent returns up to n of the most recently recorded entries, newest
// first.
func (s *Store) Recent(n int) ([]model.BlockHistoryEntry, error) {
	var entries []model.BlockHistoryEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e model.BlockHistoryEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, e)
			if len(entries) >= n {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(n model.BlockPosition) []byte {
	return []byte(fmt.Sprintf("%020d", uint64(n)))
}

// prune removes the oldest keys beyond the retention bound. Called
// inside the same write transaction as Record to keep the ring bounded
// without a separate maintenance goroutine.
func prune(b *bbolt.Bucket) error {
	var keys [][]byte
	if err := b.ForEach(func(k, _ []byte) error {
		cp := append([]byte(nil), k...)
		keys = append(keys, cp)
		return nil
	}); err != nil {
		return err
	}

	if len(keys) <= keep {
		return nil
	}

	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })
	for _, k := range keys[:len(keys)-keep] {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
