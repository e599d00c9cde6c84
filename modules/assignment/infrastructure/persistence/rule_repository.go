package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence/models"
	"github.com/iota-uz/autoassign/pkg/composables"
)

const (
	selectRulesQuery = `
		SELECT id, tenant_id, name, priority, conditions, target_user_id, target_team_id, is_active, created_at, updated_at
		FROM assignment_rules`

	upsertRuleQuery = `
		INSERT INTO assignment_rules (tenant_id, name, priority, conditions, target_user_id, target_team_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			priority = EXCLUDED.priority,
			conditions = EXCLUDED.conditions,
			target_user_id = EXCLUDED.target_user_id,
			target_team_id = EXCLUDED.target_team_id,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	ruleVersionQuery = `
		SELECT COUNT(*), COALESCE((EXTRACT(EPOCH FROM MAX(updated_at)) * 1000000)::bigint, 0)
		FROM assignment_rules
		WHERE tenant_id = $1`
)

type RuleRepository struct{}

func NewRuleRepository() rule.Repository {
	return &RuleRepository{}
}

// Version is the rule count and the latest updated_at in microseconds.
// assignment_rules_touch keeps updated_at current for edits made outside this repository.
func (r *RuleRepository) Version(ctx context.Context) (rule.Version, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (rule.Version, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return rule.Version{}, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return rule.Version{}, err
		}
		var v rule.Version
		if err := tx.QueryRow(txCtx, ruleVersionQuery, tenantID).Scan(&v.Count, &v.Stamp); err != nil {
			return rule.Version{}, gerrors.Wrap(err, "assignment rules version")
		}
		return v, nil
	})
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*rule.Rule, error) {
	return r.query(ctx, selectRulesQuery+` WHERE tenant_id = $1 AND is_active ORDER BY priority, id`)
}

func (r *RuleRepository) List(ctx context.Context) ([]*rule.Rule, error) {
	return r.query(ctx, selectRulesQuery+` WHERE tenant_id = $1 ORDER BY priority, id`)
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*rule.Rule, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*rule.Rule, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return nil, err
		}
		row, err := scanRule(tx.QueryRow(txCtx, selectRulesQuery+` WHERE tenant_id = $1 AND id = $2`, tenantID, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, rule.ErrRuleNotFound
			}
			return nil, gerrors.Wrap(err, "get assignment rule")
		}
		return toDomainRule(row)
	})
}

func (r *RuleRepository) Upsert(ctx context.Context, rl *rule.Rule) error {
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return err
		}
		rl.TenantID = tenantID
		row, err := toDBRule(rl)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.QueryRow(
			txCtx,
			upsertRuleQuery,
			row.TenantID,
			row.Name,
			row.Priority,
			row.Conditions,
			row.TargetUserID,
			row.TargetTeamID,
			row.IsActive,
			now,
		).Scan(&rl.ID, &rl.CreatedAt, &rl.UpdatedAt)
	})
}

func (r *RuleRepository) query(ctx context.Context, sql string) ([]*rule.Rule, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*rule.Rule, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return nil, err
		}
		rows, err := tx.Query(txCtx, sql, tenantID)
		if err != nil {
			return nil, gerrors.Wrap(err, "list assignment rules")
		}
		defer rows.Close()

		var out []*rule.Rule
		for rows.Next() {
			row, err := scanRule(rows)
			if err != nil {
				return nil, err
			}
			rl, err := toDomainRule(row)
			if err != nil {
				return nil, err
			}
			out = append(out, rl)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func scanRule(row pgx.Row) (*models.AssignmentRule, error) {
	var m models.AssignmentRule
	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.Name,
		&m.Priority,
		&m.Conditions,
		&m.TargetUserID,
		&m.TargetTeamID,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
