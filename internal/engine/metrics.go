package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level promauto metrics, grounded on internal/syncer/syncer.go
// and internal/processor/block_events_processor.go's declaration style.
var (
	currentBlockGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replay_engine_current_block",
		Help: "Block number the engine is currently replaying",
	})

	processedBlocksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_engine_blocks_processed_total",
		Help: "Total number of blocks successfully replayed",
	})

	blockDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "replay_engine_block_duration_seconds",
		Help:    "Time taken to replay a single block end to end",
		Buckets: prometheus.DefBuckets,
	})

	engineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_engine_errors_total",
		Help: "Total number of engine errors by class",
	}, []string{"error_code"})

	recoveryInvocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_engine_recovery_invocations_total",
		Help: "Total number of times the recovery coordinator was invoked",
	})
)
