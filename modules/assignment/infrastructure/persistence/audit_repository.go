package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence/models"
	"github.com/iota-uz/autoassign/pkg/composables"
	"github.com/iota-uz/autoassign/pkg/outbox"
	"github.com/iota-uz/autoassign/pkg/repo"
)

// OutboxTable receives one assignment.decided message per audit row.
var OutboxTable = pgx.Identifier{"public", "assignment_outbox"}

const (
	insertAuditQuery = `
		INSERT INTO assignment_audits (tenant_id, record_type, record_id, assigned_user_id, rule_id, assignment_type, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	selectAuditsQuery = `
		SELECT id, tenant_id, record_type, record_id, assigned_user_id, rule_id, assignment_type, context, created_at
		FROM assignment_audits`
)

type AuditRepository struct {
	publisher outbox.Publisher
}

// NewAuditRepository builds the repository. A nil publisher disables the outbox write.
func NewAuditRepository(publisher outbox.Publisher) audit.Repository {
	return &AuditRepository{publisher: publisher}
}

func (r *AuditRepository) Create(ctx context.Context, a *audit.Audit) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	a.TenantID = tenantID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	row, err := toDBAudit(a)
	if err != nil {
		return err
	}

	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(
			txCtx,
			insertAuditQuery,
			row.TenantID,
			row.RecordType,
			row.RecordID,
			row.AssignedUserID,
			row.RuleID,
			row.AssignmentType,
			row.Context,
			row.CreatedAt,
		).Scan(&a.ID, &a.CreatedAt); err != nil {
			return gerrors.Wrap(err, "insert assignment audit")
		}
		if r.publisher == nil {
			return nil
		}
		event := audit.NewDecidedEvent(a)
		payload, err := json.Marshal(event)
		if err != nil {
			return gerrors.Wrap(err, "marshal assignment event")
		}
		_, err = r.publisher.Enqueue(txCtx, tx, OutboxTable, outbox.Message{
			TenantID: tenantID,
			Topic:    audit.TopicDecided,
			EventID:  event.EventID,
			Payload:  payload,
		})
		return err
	})
}

func (r *AuditRepository) List(ctx context.Context, params *audit.FindParams) ([]*audit.Audit, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*audit.Audit, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return nil, err
		}

		where, args := buildAuditFilters(params, tenantID)
		query := selectAuditsQuery + `
			WHERE ` + strings.Join(where, " AND ") + `
			ORDER BY created_at DESC, id DESC`
		if params != nil {
			query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
		}

		rows, err := tx.Query(txCtx, query, args...)
		if err != nil {
			return nil, gerrors.Wrap(err, "list assignment audits")
		}
		defer rows.Close()

		var results []*audit.Audit
		for rows.Next() {
			var row models.AssignmentAudit
			if err := rows.Scan(
				&row.ID,
				&row.TenantID,
				&row.RecordType,
				&row.RecordID,
				&row.AssignedUserID,
				&row.RuleID,
				&row.AssignmentType,
				&row.Context,
				&row.CreatedAt,
			); err != nil {
				return nil, err
			}
			a, err := toDomainAudit(&row)
			if err != nil {
				return nil, err
			}
			results = append(results, a)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return results, nil
	})
}

func (r *AuditRepository) Count(ctx context.Context, params *audit.FindParams) (int64, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (int64, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return 0, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return 0, err
		}
		where, args := buildAuditFilters(params, tenantID)

		var count int64
		if err := tx.QueryRow(txCtx, `
			SELECT COUNT(*) FROM assignment_audits
			WHERE `+strings.Join(where, " AND "),
			args...,
		).Scan(&count); err != nil {
			return 0, gerrors.Wrap(err, "count assignment audits")
		}
		return count, nil
	})
}

func (r *AuditRepository) Stats(ctx context.Context, params *audit.StatsParams) (*audit.Stats, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*audit.Stats, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return nil, err
		}
		var find *audit.FindParams
		if params != nil {
			find = &audit.FindParams{RecordType: params.RecordType, From: params.From, To: params.To}
		}
		where, args := buildAuditFilters(find, tenantID)
		whereSQL := strings.Join(where, " AND ")

		stats := &audit.Stats{ByType: map[audit.AssignmentType]int64{}}
		if err := tx.QueryRow(txCtx, `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE assigned_user_id IS NULL)
			FROM assignment_audits
			WHERE `+whereSQL,
			args...,
		).Scan(&stats.Total, &stats.Unassigned); err != nil {
			return nil, gerrors.Wrap(err, "audit totals")
		}

		typeRows, err := tx.Query(txCtx, `
			SELECT assignment_type, COUNT(*) FROM assignment_audits
			WHERE `+whereSQL+`
			GROUP BY assignment_type`,
			args...,
		)
		if err != nil {
			return nil, gerrors.Wrap(err, "audit stats by type")
		}
		for typeRows.Next() {
			var t string
			var n int64
			if err := typeRows.Scan(&t, &n); err != nil {
				typeRows.Close()
				return nil, err
			}
			stats.ByType[audit.AssignmentType(t)] = n
		}
		typeRows.Close()
		if err := typeRows.Err(); err != nil {
			return nil, err
		}

		ruleRows, err := tx.Query(txCtx, `
			SELECT rule_id, COUNT(*) FROM assignment_audits
			WHERE `+whereSQL+` AND rule_id IS NOT NULL
			GROUP BY rule_id
			ORDER BY COUNT(*) DESC, rule_id`,
			args...,
		)
		if err != nil {
			return nil, gerrors.Wrap(err, "audit stats by rule")
		}
		stats.ByRule, err = pgx.CollectRows(ruleRows, func(row pgx.CollectableRow) (audit.RuleCount, error) {
			var m models.AssignmentAudit
			var c audit.RuleCount
			if err := row.Scan(&m.RuleID, &c.Count); err != nil {
				return c, err
			}
			c.RuleID = int64Ptr(m.RuleID)
			return c, nil
		})
		if err != nil {
			return nil, err
		}

		userRows, err := tx.Query(txCtx, `
			SELECT assigned_user_id, COUNT(*) FROM assignment_audits
			WHERE `+whereSQL+`
			GROUP BY assigned_user_id
			ORDER BY assigned_user_id IS NULL, COUNT(*) DESC, assigned_user_id`,
			args...,
		)
		if err != nil {
			return nil, gerrors.Wrap(err, "audit stats by user")
		}
		stats.ByUser, err = pgx.CollectRows(userRows, func(row pgx.CollectableRow) (audit.UserCount, error) {
			var m models.AssignmentAudit
			var c audit.UserCount
			if err := row.Scan(&m.AssignedUserID, &c.Count); err != nil {
				return c, err
			}
			c.UserID = uintPtr(m.AssignedUserID)
			return c, nil
		})
		if err != nil {
			return nil, err
		}
		return stats, nil
	})
}

func buildAuditFilters(params *audit.FindParams, tenantID uuid.UUID) ([]string, []interface{}) {
	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2
	if params == nil {
		return where, args
	}

	if params.RecordType != "" {
		where = append(where, fmt.Sprintf("record_type = $%d", argPos))
		args = append(args, string(params.RecordType))
		argPos++
	}
	if id := strings.TrimSpace(params.RecordID); id != "" {
		where = append(where, fmt.Sprintf("record_id = $%d", argPos))
		args = append(args, id)
		argPos++
	}
	if params.AssignedUserID != nil {
		where = append(where, fmt.Sprintf("assigned_user_id = $%d", argPos))
		args = append(args, int64(*params.AssignedUserID))
		argPos++
	}
	if params.RuleID != nil {
		where = append(where, fmt.Sprintf("rule_id = $%d", argPos))
		args = append(args, *params.RuleID)
		argPos++
	}
	if params.AssignmentType != "" {
		where = append(where, fmt.Sprintf("assignment_type = $%d", argPos))
		args = append(args, string(params.AssignmentType))
		argPos++
	}
	if params.VisibleUserIDs != nil {
		ids := make([]int64, 0, len(params.VisibleUserIDs))
		for _, id := range params.VisibleUserIDs {
			ids = append(ids, int64(id))
		}
		where = append(where, fmt.Sprintf("(assigned_user_id IS NULL OR assigned_user_id = ANY($%d))", argPos))
		args = append(args, ids)
		argPos++
	}
	if params.From != nil && !params.From.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *params.From)
		argPos++
	}
	if params.To != nil && !params.To.IsZero() {
		where = append(where, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *params.To)
	}
	return where, args
}
