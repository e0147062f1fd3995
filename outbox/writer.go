package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	TopicResolutionProposed  = "resolution.proposed"
	TopicResolutionFeePaid   = "resolution.fee_paid"
	TopicResolutionAppealed  = "resolution.appealed"
	TopicResolutionFinalized = "resolution.finalized"
	TopicParamsUpdated       = "params.updated"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID           string
	Topic        string
	PartitionKey string
	Payload      []byte
	Status       string
	Attempts     int
	CreatedAt    time.Time
}

// Writer appends outbox rows inside the caller's transaction.
type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic, partitionKey string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, partition_key, payload) VALUES ($1, $2, $3::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, partitionKey, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}
