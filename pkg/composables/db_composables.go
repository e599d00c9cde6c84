package composables

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/autoassign/pkg/constants"
	"github.com/iota-uz/autoassign/pkg/repo"
)

var ErrNoPool = errors.New("no database pool found in context")

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(constants.PoolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

func useTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(constants.TxKey).(pgx.Tx)
	return tx, ok && tx != nil
}

// HasTx reports whether ctx carries an open transaction.
func HasTx(ctx context.Context) bool {
	_, ok := useTx(ctx)
	return ok
}

// UseTx returns the open transaction, or the pool when ctx carries none.
func UseTx(ctx context.Context) (repo.Tx, error) {
	if tx, ok := useTx(ctx); ok {
		return tx, nil
	}
	return UsePool(ctx)
}

// InTenantTx runs fn inside a transaction bound to the tenant in ctx.
// Nested calls join the outer transaction; only the outermost call commits.
func InTenantTx(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if tx, ok := useTx(ctx); ok {
		if err := ApplyTenantRLS(ctx, tx); err != nil {
			return err
		}
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, rbErr)
		}
	}()

	txCtx := WithTx(ctx, tx)
	if err = ApplyTenantRLS(txCtx, tx); err != nil {
		return err
	}
	if err = fn(txCtx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func InTenantTxResult[T any](ctx context.Context, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = fn(txCtx)
		return err
	})
	return out, err
}
