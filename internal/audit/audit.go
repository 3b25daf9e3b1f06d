// Package audit is a durable, queryable ledger of completed and failed
// blocks for operator reporting, backed by Postgres via pgx. It is
// strictly supplementary: a write failure here is logged and ignored,
// never fatal, and nothing in the engine or recovery coordinator reads
// it back — the file-based resume record remains the only state the
// engine's correctness depends on (spec's "file persistence vs external
// store" design note). When no database URL is configured, Sink is a
// no-op so the orchestrator still runs file-only.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS replay_block_history (
	block        BIGINT PRIMARY KEY,
	source_hash  TEXT NOT NULL,
	target_hash  TEXT NOT NULL,
	tx_count     INT NOT NULL,
	duration_ms  BIGINT NOT NULL,
	retry_count  INT NOT NULL,
	failed       BOOLEAN NOT NULL,
	failure_code TEXT NOT NULL DEFAULT '',
	completed_at TIMESTAMPTZ NOT NULL
)`

const upsertSQL = `
INSERT INTO replay_block_history
	(block, source_hash, target_hash, tx_count, duration_ms, retry_count, failed, failure_code, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (block) DO UPDATE SET
	source_hash = EXCLUDED.source_hash,
	target_hash = EXCLUDED.target_hash,
	tx_count = EXCLUDED.tx_count,
	duration_ms = EXCLUDED.duration_ms,
	retry_count = EXCLUDED.retry_count,
	failed = EXCLUDED.failed,
	failure_code = EXCLUDED.failure_code,
	completed_at = EXCLUDED.completed_at`

// Sink records block-replay outcomes for operator reporting.
type Sink struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Connect opens a pool against dsn and ensures the ledger table exists.
// An empty dsn yields a disabled (nil-pool) Sink whose Record is a no-op.
func Connect(ctx context.Context, dsn string, logger zerolog.Logger) (*Sink, error) {
	s := &Sink{logger: logger.With().Str("component", "audit").Logger()}
	if dsn == "" {
		s.logger.Info().Msg("audit sink disabled (no AUDIT_DATABASE_URL)")
		return s, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	s.pool = pool
	s.logger.Info().Msg("audit sink connected")
	return s, nil
}

// Record upserts one block's history entry. Errors are returned to the
// caller, which (per package policy) should log and discard them rather
// than fail the replay pipeline.
func (s *Sink) Record(ctx context.Context, entry model.BlockHistoryEntry) error {
	if s.pool == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, upsertSQL,
		int64(entry.Block),
		entry.SourceHash.Hex(),
		entry.TargetHash.Hex(),
		entry.TxCount,
		entry.Duration.Milliseconds(),
		entry.RetryCount,
		entry.Failed,
		entry.FailureCode,
		entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit entry for block %d: %w", entry.Block, err)
	}
	return nil
}

// RecordBestEffort calls Record and logs (without propagating) any
// error, for call sites in the hot path that must never fail the
// replay on an audit-sink outage.
func (s *Sink) RecordBestEffort(ctx context.Context, entry model.BlockHistoryEntry) {
	if err := s.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Uint64("block", uint64(entry.Block)).Msg("failed to record audit entry")
	}
}

// Close releases the underlying connection pool, if any.
func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Enabled reports whether the sink is backed by a real database.
func (s *Sink) Enabled() bool { return s.pool != nil }

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 5 * time.Second

// Ping verifies connectivity within pingTimeout. A disabled sink
// always reports success.
func (s *Sink) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}
