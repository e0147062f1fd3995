package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leaseflow/db"
)

// Publisher delivers a message to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// Relay drains pending outbox rows and hands them to a Publisher. Several
// relays may run at once; rows are claimed with SKIP LOCKED.
type Relay struct {
	pool      db.TxBeginner
	publisher Publisher
	cfg       RelayConfig
	logger    *slog.Logger
}

func NewRelay(pool db.TxBeginner, publisher Publisher, cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Relay{
		pool:      pool,
		publisher: publisher,
		cfg:       cfg,
		logger:    slog.Default().With("module", "outbox"),
	}
}

// Run flushes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			r.logger.ErrorContext(ctx, "outbox flush failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many rows were marked processed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id::text, topic, partition_key, payload, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY seq
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim batch: %w", err)
	}
	batch := make([]Message, 0, r.cfg.BatchSize)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.PartitionKey, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan: %w", err)
		}
		m.Status = StatusPending
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: iterate: %w", err)
	}

	processed := 0
	for _, m := range batch {
		if err := r.publisher.Publish(ctx, m); err != nil {
			next := StatusPending
			if m.Attempts+1 >= r.cfg.MaxAttempts {
				next = StatusDead
			}
			r.logger.WarnContext(ctx, "outbox publish failed",
				"id", m.ID, "topic", m.Topic, "attempts", m.Attempts+1, "status", next, "error", err.Error())
			if _, err := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1, last_attempt = NOW(), status = $2 WHERE id = $1::uuid`, m.ID, next); err != nil {
				return processed, fmt.Errorf("outbox: record attempt: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', last_attempt = NOW() WHERE id = $1::uuid`, m.ID); err != nil {
			return processed, fmt.Errorf("outbox: mark processed: %w", err)
		}
		processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit batch: %w", err)
	}
	if len(batch) > 0 {
		r.logger.InfoContext(ctx, "outbox batch flushed", "claimed", len(batch), "processed", processed)
	}
	return processed, nil
}
