package outbox

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// RelayOptions zero values fall back to the defaults noted per field.
type RelayOptions struct {
	PollInterval    time.Duration // 1s
	BatchSize       int           // 100
	LockTTL         time.Duration // 1m; claimed rows older than this are reclaimed
	MaxAttempts     int           // 25; rows reaching it are left unpublished with last_error set
	BaseBackoff     time.Duration // 1s
	MaxBackoff      time.Duration // 1m
	JitterMax       time.Duration // 200ms
	LastErrorMaxLen int           // 2048 bytes
	DispatchTimeout time.Duration // 30s

	Logger *logrus.Entry
	Rand   *rand.Rand
}

func (o RelayOptions) withDefaults() RelayOptions {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&o.PollInterval, time.Second)
	def(&o.LockTTL, time.Minute)
	def(&o.BaseBackoff, time.Second)
	def(&o.MaxBackoff, time.Minute)
	def(&o.JitterMax, 200*time.Millisecond)
	def(&o.DispatchTimeout, 30*time.Second)
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 25
	}
	if o.LastErrorMaxLen <= 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.Logger == nil {
		silent := logrus.New()
		silent.SetLevel(logrus.PanicLevel)
		o.Logger = logrus.NewEntry(silent)
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
	return o
}

// Relay delivers unpublished rows of one outbox table at least once, in
// (available_at, sequence) order per batch. Several relays may share a table.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	label      string
	dispatcher Dispatcher
	opts       RelayOptions
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	switch {
	case pool == nil:
		return nil, invalid("pool is required")
	case len(table) == 0:
		return nil, invalid("table is required")
	case dispatcher == nil:
		return nil, invalid("dispatcher is required")
	}
	return &Relay{
		pool:       pool,
		table:      table,
		label:      TableLabel(table),
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
	}, nil
}

// Run processes a batch every PollInterval until ctx ends, then returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for {
			n, err := r.ProcessOnce(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				r.opts.Logger.WithError(err).Warn("outbox: batch failed")
				break
			}
			// A full batch means more rows are probably waiting.
			if n < r.opts.BatchSize {
				break
			}
		}
	}
}

type claimedRow struct {
	id      uuid.UUID
	meta    Meta
	payload []byte
}

// ProcessOnce claims and delivers one batch and returns the number of claimed rows.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	rows, err := r.claim(ctx)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		r.deliver(ctx, row)
	}
	return len(rows), nil
}

func (r *Relay) claim(ctx context.Context) ([]claimedRow, error) {
	now := time.Now()
	t := r.table.Sanitize()
	q := `WITH due AS (
			SELECT id FROM ` + t + `
			 WHERE published_at IS NULL
			   AND available_at <= $1
			   AND attempts < $2
			   AND (locked_at IS NULL OR locked_at < $3)
			 ORDER BY available_at, sequence
			 LIMIT $4
			 FOR UPDATE SKIP LOCKED
		)
		UPDATE ` + t + ` o
		   SET locked_at = $1, attempts = o.attempts + 1
		  FROM due
		 WHERE o.id = due.id
		RETURNING o.id, o.tenant_id, o.topic, o.payload, o.event_id, o.sequence, o.attempts, o.available_at`
	res, err := r.pool.Query(ctx, q, now, r.opts.MaxAttempts, now.Add(-r.opts.LockTTL), r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim from %s: %w", r.label, err)
	}

	type ordered struct {
		claimedRow
		availableAt time.Time
	}
	items, err := pgx.CollectRows(res, func(row pgx.CollectableRow) (ordered, error) {
		var o ordered
		o.meta.Table = r.table
		err := row.Scan(&o.id, &o.meta.TenantID, &o.meta.Topic, &o.payload, &o.meta.EventID, &o.meta.Sequence, &o.meta.Attempts, &o.availableAt)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: scan claimed rows: %w", err)
	}
	// UPDATE ... RETURNING does not keep the CTE order.
	slices.SortFunc(items, func(a, b ordered) int {
		if c := a.availableAt.Compare(b.availableAt); c != 0 {
			return c
		}
		return cmp.Compare(a.meta.Sequence, b.meta.Sequence)
	})
	out := make([]claimedRow, len(items))
	for i, it := range items {
		out[i] = it.claimedRow
	}
	return out, nil
}

func (r *Relay) deliver(ctx context.Context, row claimedRow) {
	log := r.opts.Logger.WithFields(logrus.Fields{
		"table":     r.label,
		"topic":     row.meta.Topic,
		"event_id":  row.meta.EventID,
		"tenant_id": row.meta.TenantID,
		"attempt":   row.meta.Attempts,
	})

	dctx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	start := time.Now()
	err := r.dispatcher.Dispatch(dctx, DispatchedMessage{Meta: row.meta, Payload: row.payload})
	cancel()
	deliverySeconds.WithLabelValues(r.label, row.meta.Topic).Observe(time.Since(start).Seconds())

	var (
		outcome string
		set     string
		args    []any
	)
	switch {
	case err == nil:
		outcome, set = "ok", `published_at = now(), locked_at = NULL, last_error = NULL`
	case row.meta.Attempts >= r.opts.MaxAttempts:
		outcome, set = "dead", `locked_at = NULL, last_error = $2`
		args = []any{clip(err.Error(), r.opts.LastErrorMaxLen)}
		log.WithError(err).Error("outbox: giving up on message")
	default:
		wait := Backoff(row.meta.Attempts, r.opts.BaseBackoff, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax)
		outcome, set = "retry", `locked_at = NULL, last_error = $2, available_at = $3`
		args = []any{clip(err.Error(), r.opts.LastErrorMaxLen), time.Now().Add(wait)}
		log.WithError(err).WithField("retry_in", wait).Warn("outbox: dispatch failed")
	}
	delivered.WithLabelValues(r.label, row.meta.Topic, outcome).Inc()

	q := `UPDATE ` + r.table.Sanitize() + ` SET ` + set + ` WHERE id = $1 AND published_at IS NULL`
	if _, uErr := r.pool.Exec(ctx, q, append([]any{row.id}, args...)...); uErr != nil && !errors.Is(uErr, context.Canceled) {
		log.WithError(uErr).Warn("outbox: settle failed")
	}
}
