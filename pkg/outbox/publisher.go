package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/autoassign/pkg/repo"
)

type Publisher interface {
	// Enqueue inserts msg with tx. Re-enqueueing an EventID is a no-op that returns the stored sequence.
	Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (sequence int64, err error)
}

type publisher struct{}

func NewPublisher() Publisher { return publisher{} }

func (publisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (int64, error) {
	if err := validateMessage(table, msg); err != nil {
		return 0, err
	}
	q := `INSERT INTO ` + table.Sanitize() + ` (tenant_id, topic, payload, event_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		RETURNING sequence`
	var seq int64
	if err := tx.QueryRow(ctx, q, msg.TenantID, msg.Topic, msg.Payload, msg.EventID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("outbox: enqueue %s: %w", msg.Topic, err)
	}
	enqueued.WithLabelValues(TableLabel(table), msg.Topic).Inc()
	return seq, nil
}

func validateMessage(table pgx.Identifier, msg Message) error {
	switch {
	case len(table) == 0:
		return invalid("table is required")
	case msg.TenantID == uuid.Nil:
		return invalid("tenant_id is required")
	case msg.EventID == uuid.Nil:
		return invalid("event_id is required")
	case msg.Topic == "":
		return invalid("topic is required")
	}
	return nil
}
