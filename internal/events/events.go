// Package events publishes the engine's lifecycle events to NATS
// JetStream, making testable property 1 (spec §8: "the sequence of
// emitted block-completed events") a literal, observable stream instead
// of just an internal counter. Grounded on internal/nats/publisher.go:
// same stream create-or-update, same per-event dedup message-ID scheme
// (<kind>-N, e.g. block.completed-N, instead of txHash-logIndex). Purely observational — nothing
// in the engine reads events back, so it can never become a second
// source of truth alongside the resume record.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

const (
	streamName           = "REPLAY"
	streamSubjectPattern = "REPLAY.*"
	streamCreateTimeout  = 10 * time.Second
)

// Kind labels a lifecycle event.
type Kind string

const (
	KindBlockCompleted  Kind = "block.completed"
	KindBlockFailed     Kind = "block.failed"
	KindRecoveryAction  Kind = "recovery.action"
	KindCriticalError   Kind = "critical.error"
)

// Event is the envelope published for every lifecycle transition.
type Event struct {
	Kind      Kind      `json:"kind"`
	Block     uint64    `json:"block"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes lifecycle events to NATS JetStream with
// per-event deduplication.
type Publisher struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger zerolog.Logger
}

// Connect dials natsURL and ensures the REPLAY stream exists. An empty
// natsURL yields a disabled (nil-conn) Publisher whose Publish is a
// no-op, so the engine runs without an event bus if one isn't
// configured.
func Connect(natsURL string, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{logger: logger.With().Str("component", "events").Logger()}
	if natsURL == "" {
		p.logger.Info().Msg("event bus disabled (no NATS url configured)")
		return p, nil
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("starknet-replay-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{streamSubjectPattern},
		MaxAge:     7 * 24 * time.Hour,
		Storage:    jetstream.FileStorage,
		Duplicates: 10 * time.Minute,
		Retention:  jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create replay stream: %w", err)
	}

	p.nc = nc
	p.js = js
	p.logger.Info().Str("stream", streamName).Msg("event publisher initialized")
	return p, nil
}

// Publish emits ev, deduplicated by kind+block within the stream's
// duplicate window. A disabled Publisher silently drops the event.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p.js == nil {
		return nil
	}

	ev.Timestamp = time.Now()
	subject := fmt.Sprintf("%s.%s", streamName, ev.Kind)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msgID := fmt.Sprintf("%s-%d", ev.Kind, ev.Block)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Uint64("block", ev.Block).Msg("failed to publish event")
		return fmt.Errorf("publish to nats: %w", err)
	}
	return nil
}

// PublishBestEffort calls Publish and logs (without propagating) any
// error — lifecycle events must never block or fail the replay pipeline.
func (p *Publisher) PublishBestEffort(ctx context.Context, ev Event) {
	if err := p.Publish(ctx, ev); err != nil {
		p.logger.Warn().Err(err).Msg("event publish failed")
	}
}

// BlockCompleted publishes a block.completed event.
func (p *Publisher) BlockCompleted(ctx context.Context, n model.BlockPosition, hash string) {
	p.PublishBestEffort(ctx, Event{Kind: KindBlockCompleted, Block: uint64(n), Data: map[string]string{"hash": hash}})
}

// BlockFailed publishes a block.failed event.
func (p *Publisher) BlockFailed(ctx context.Context, n model.BlockPosition, code string) {
	p.PublishBestEffort(ctx, Event{Kind: KindBlockFailed, Block: uint64(n), Data: map[string]string{"code": code}})
}

// RecoveryAction publishes a recovery.action event.
func (p *Publisher) RecoveryAction(ctx context.Context, action model.RecoveryAction) {
	p.PublishBestEffort(ctx, Event{Kind: KindRecoveryAction, Block: uint64(action.Block), Data: map[string]string{"kind": string(action.Kind), "reason": action.Reason}})
}

// CriticalError publishes a critical.error event carrying both hashes
// and the block number, per scenario S4.
func (p *Publisher) CriticalError(ctx context.Context, ce model.CriticalError) {
	p.PublishBestEffort(ctx, Event{Kind: KindCriticalError, Block: uint64(ce.Block), Data: map[string]string{
		"code":        ce.Code,
		"message":     ce.Message,
		"source_hash": ce.SourceHash.Hex(),
		"target_hash": ce.TargetHash.Hex(),
	}})
}

// Close closes the NATS connection, if one was established.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Healthy reports whether the underlying NATS connection is up. A
// disabled publisher reports healthy (it has nothing to be unhealthy
// about).
func (p *Publisher) Healthy() bool {
	return p.nc == nil || p.nc.IsConnected()
}
