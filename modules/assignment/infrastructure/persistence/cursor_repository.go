package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/pkg/composables"
)

const (
	advanceTenantCursorQuery = `
		UPDATE assignment_defaults
		SET rotation_cursor = (rotation_cursor % $2 + 1) % $2, updated_at = now()
		WHERE tenant_id = $1
		RETURNING rotation_cursor`

	lockDefaultsKeyShareQuery = `SELECT 1 FROM assignment_defaults WHERE tenant_id = $1 FOR KEY SHARE`

	advanceScopedCursorQuery = `
		INSERT INTO assignment_rotation_cursors (tenant_id, scope, rotation_cursor)
		VALUES ($1, $2, 1 % $3)
		ON CONFLICT (tenant_id, scope) DO UPDATE
		SET rotation_cursor = (assignment_rotation_cursors.rotation_cursor % $3 + 1) % $3, updated_at = now()
		RETURNING rotation_cursor`

	lockDefaultsForUpdateQuery = `SELECT 1 FROM assignment_defaults WHERE tenant_id = $1 FOR UPDATE`
	resetTenantCursorQuery     = `UPDATE assignment_defaults SET rotation_cursor = 0, updated_at = now() WHERE tenant_id = $1`
	resetScopedCursorsQuery    = `UPDATE assignment_rotation_cursors SET rotation_cursor = 0, updated_at = now() WHERE tenant_id = $1`
)

// PgCursorStore keeps the tenant cursor on assignment_defaults and every other scope in
// assignment_rotation_cursors. Each advance is a single row-locking statement.
type PgCursorStore struct{}

func NewPgCursorStore() *PgCursorStore {
	return &PgCursorStore{}
}

func (s *PgCursorStore) Advance(ctx context.Context, tenantID uuid.UUID, scope rotation.Scope, n int) (rotation.Advance, error) {
	if n <= 0 {
		return rotation.Advance{}, nil
	}
	ctx = composables.WithTenantID(ctx, tenantID)
	if scope.IsTenant() {
		return s.advanceTenant(ctx, tenantID, n)
	}
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (rotation.Advance, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return rotation.Advance{}, err
		}
		// KEY SHARE conflicts only with the FOR UPDATE taken by Reset and Mutate.
		var one int
		if err := tx.QueryRow(txCtx, lockDefaultsKeyShareQuery, tenantID).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return rotation.Advance{}, assignmentdefault.ErrNotFound
			}
			return rotation.Advance{}, gerrors.Wrap(err, "lock assignment defaults")
		}
		var next int64
		if err := tx.QueryRow(txCtx, advanceScopedCursorQuery, tenantID, string(scope), n).Scan(&next); err != nil {
			return rotation.Advance{}, gerrors.Wrapf(err, "advance cursor %s", scope)
		}
		return rotation.FromNext(next, n), nil
	})
}

func (s *PgCursorStore) advanceTenant(ctx context.Context, tenantID uuid.UUID, n int) (rotation.Advance, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (rotation.Advance, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return rotation.Advance{}, err
		}
		var next int64
		if err := tx.QueryRow(txCtx, advanceTenantCursorQuery, tenantID, n).Scan(&next); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return rotation.Advance{}, assignmentdefault.ErrNotFound
			}
			return rotation.Advance{}, gerrors.Wrap(err, "advance tenant cursor")
		}
		return rotation.FromNext(next, n), nil
	})
}

// Reset zeroes the tenant cursor and every scoped cursor while holding the defaults row,
// so no advance interleaves between the two updates.
func (s *PgCursorStore) Reset(ctx context.Context, tenantID uuid.UUID) error {
	ctx = composables.WithTenantID(ctx, tenantID)
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		var one int
		if err := tx.QueryRow(txCtx, lockDefaultsForUpdateQuery, tenantID).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return assignmentdefault.ErrNotFound
			}
			return gerrors.Wrap(err, "lock assignment defaults")
		}
		if _, err := tx.Exec(txCtx, resetTenantCursorQuery, tenantID); err != nil {
			return gerrors.Wrap(err, "reset tenant cursor")
		}
		if _, err := tx.Exec(txCtx, resetScopedCursorsQuery, tenantID); err != nil {
			return gerrors.Wrap(err, "reset scoped cursors")
		}
		return nil
	})
}
