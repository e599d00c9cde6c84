package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence/models"
	"github.com/iota-uz/autoassign/pkg/composables"
)

const (
	selectUsersQuery = `SELECT id, tenant_id, first_name, last_name, email, status FROM users`

	selectTeamQuery = `SELECT id, tenant_id, name FROM groups WHERE id = $1`

	selectTeamMembersQuery = `SELECT user_id FROM group_users WHERE group_id = $1 ORDER BY user_id`

	selectMembershipsQuery = `
		SELECT gu.group_id, gu.user_id
		FROM group_users gu
		JOIN groups g ON g.id = gu.group_id
		WHERE g.tenant_id = $1
		ORDER BY gu.group_id, gu.user_id`
)

type MemberRepository struct{}

func NewMemberRepository() member.Repository {
	return &MemberRepository{}
}

func (r *MemberRepository) ListActive(ctx context.Context) ([]*member.Member, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryUsers(ctx, selectUsersQuery+` WHERE tenant_id = $1 AND status = 'active' ORDER BY id`, tenantID)
}

func (r *MemberRepository) ListByIDs(ctx context.Context, ids []uint) ([]*member.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	raw := make([]int64, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, int64(id))
	}
	return r.queryUsers(ctx, selectUsersQuery+` WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id`, tenantID, raw)
}

func (r *MemberRepository) GetByID(ctx context.Context, id uint) (*member.Member, error) {
	users, err := r.queryUsers(ctx, selectUsersQuery+` WHERE id = $1`, int64(id))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, member.ErrMemberNotFound
	}
	return users[0], nil
}

func (r *MemberRepository) GetTeam(ctx context.Context, id uuid.UUID) (*member.Team, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*member.Team, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		var row models.Group
		if err := tx.QueryRow(txCtx, selectTeamQuery, id).Scan(&row.ID, &row.TenantID, &row.Name); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, member.ErrTeamNotFound
			}
			return nil, gerrors.Wrap(err, "get team")
		}
		rows, err := tx.Query(txCtx, selectTeamMembersQuery, id)
		if err != nil {
			return nil, gerrors.Wrap(err, "list team members")
		}
		ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uint, error) {
			var userID int64
			err := row.Scan(&userID)
			return uint(userID), err
		})
		if err != nil {
			return nil, err
		}
		return &member.Team{
			ID:        id,
			TenantID:  parseTenantID(row.TenantID),
			Name:      row.Name,
			MemberIDs: ids,
		}, nil
	})
}

func (r *MemberRepository) Memberships(ctx context.Context) ([]member.TeamMembership, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]member.TeamMembership, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return nil, err
		}
		rows, err := tx.Query(txCtx, selectMembershipsQuery, tenantID)
		if err != nil {
			return nil, gerrors.Wrap(err, "list team memberships")
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (member.TeamMembership, error) {
			var m member.TeamMembership
			var userID int64
			err := row.Scan(&m.TeamID, &userID)
			m.UserID = uint(userID)
			return m, err
		})
	})
}

func (r *MemberRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*member.Member, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*member.Member, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		rows, err := tx.Query(txCtx, query, args...)
		if err != nil {
			return nil, gerrors.Wrap(err, "query users")
		}
		defer rows.Close()

		var out []*member.Member
		for rows.Next() {
			var row models.User
			var id int64
			if err := rows.Scan(&id, &row.TenantID, &row.FirstName, &row.LastName, &row.Email, &row.Status); err != nil {
				return nil, err
			}
			row.ID = uint(id)
			out = append(out, toDomainMember(&row))
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}
