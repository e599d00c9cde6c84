// Package outbox stores events in a Postgres table in the same transaction as
// the state change that produced them, and relays them to a Dispatcher later.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrInvalidConfig = errors.New("outbox: invalid configuration")

func invalid(what string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, what)
}

type Message struct {
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Payload  json.RawMessage
}

// Meta describes a relayed row. Attempts counts the current delivery.
type Meta struct {
	Table    pgx.Identifier
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

// DispatcherFunc adapts a plain func to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error { return f(ctx, msg) }

// TableLabel is the dotted table name used in logs and metric labels.
func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}

var (
	enqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outbox",
		Name:      "enqueued_total",
		Help:      "Messages written to an outbox table.",
	}, []string{"table", "topic"})
	delivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outbox",
		Name:      "deliveries_total",
		Help:      "Relay delivery attempts by outcome (ok, retry, dead).",
	}, []string{"table", "topic", "outcome"})
	deliverySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outbox",
		Name:      "delivery_seconds",
		Help:      "Dispatcher latency per delivery attempt.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"table", "topic"})
)
