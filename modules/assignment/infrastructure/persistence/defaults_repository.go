package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence/models"
	"github.com/iota-uz/autoassign/pkg/composables"
	"github.com/iota-uz/autoassign/pkg/repo"
)

const (
	selectDefaultsQuery = `
		SELECT tenant_id, enable_automatic_assignment, default_user_id, round_robin_enabled,
		       team_scoping_enabled, rotation_cursor, created_at, updated_at
		FROM assignment_defaults
		WHERE tenant_id = $1`

	insertDefaultsQuery = `
		INSERT INTO assignment_defaults (tenant_id, enable_automatic_assignment, default_user_id, round_robin_enabled,
		                                 team_scoping_enabled, rotation_cursor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		ON CONFLICT (tenant_id) DO NOTHING`

	updateDefaultsQuery = `
		UPDATE assignment_defaults SET
			enable_automatic_assignment = $2,
			default_user_id = $3,
			round_robin_enabled = $4,
			team_scoping_enabled = $5,
			updated_at = $6
		WHERE tenant_id = $1`
)

type DefaultsRepository struct{}

func NewDefaultsRepository() assignmentdefault.Repository {
	return &DefaultsRepository{}
}

func (r *DefaultsRepository) GetOrCreate(ctx context.Context, initial *assignmentdefault.AssignmentDefault) (*assignmentdefault.AssignmentDefault, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*assignmentdefault.AssignmentDefault, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return nil, err
		}

		found, err := fetchDefaults(txCtx, tx, selectDefaultsQuery)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, assignmentdefault.ErrNotFound) {
			return nil, err
		}

		row := toDBDefault(initial)
		if _, err := tx.Exec(
			txCtx,
			insertDefaultsQuery,
			tenantID,
			row.EnableAutomaticAssignment,
			row.DefaultUserID,
			row.RoundRobinEnabled,
			row.TeamScopingEnabled,
			time.Now(),
		); err != nil {
			return nil, gerrors.Wrap(err, "insert assignment defaults")
		}
		// A concurrent insert may have won; either way the stored row is authoritative.
		return fetchDefaults(txCtx, tx, selectDefaultsQuery)
	})
}

func (r *DefaultsRepository) Mutate(
	ctx context.Context,
	fn func(d *assignmentdefault.AssignmentDefault) error,
) (*assignmentdefault.AssignmentDefault, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*assignmentdefault.AssignmentDefault, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		current, err := fetchDefaults(txCtx, tx, selectDefaultsQuery+` FOR UPDATE`)
		if err != nil {
			return nil, err
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		current.UpdatedAt = time.Now()
		row := toDBDefault(current)
		if _, err := tx.Exec(
			txCtx,
			updateDefaultsQuery,
			current.TenantID,
			row.EnableAutomaticAssignment,
			row.DefaultUserID,
			row.RoundRobinEnabled,
			row.TeamScopingEnabled,
			row.UpdatedAt,
		); err != nil {
			return nil, gerrors.Wrap(err, "update assignment defaults")
		}
		return current, nil
	})
}

func fetchDefaults(ctx context.Context, tx repo.Tx, query string) (*assignmentdefault.AssignmentDefault, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var row models.AssignmentDefault
	if err := tx.QueryRow(ctx, query, tenantID).Scan(
		&row.TenantID,
		&row.EnableAutomaticAssignment,
		&row.DefaultUserID,
		&row.RoundRobinEnabled,
		&row.TeamScopingEnabled,
		&row.RotationCursor,
		&row.CreatedAt,
		&row.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assignmentdefault.ErrNotFound
		}
		return nil, gerrors.Wrap(err, "fetch assignment defaults")
	}
	return toDomainDefault(&row), nil
}
