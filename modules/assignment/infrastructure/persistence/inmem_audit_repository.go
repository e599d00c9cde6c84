package persistence

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/pkg/composables"
)

type auditKey struct {
	tenantID uuid.UUID
	id       int64
}

type InmemAuditRepository struct {
	storage *guardedMap[auditKey, *audit.Audit]
	seq     atomic.Int64
}

func NewInmemAuditRepository() *InmemAuditRepository {
	return &InmemAuditRepository{storage: newGuardedMap[auditKey, *audit.Audit]()}
}

func (r *InmemAuditRepository) Create(ctx context.Context, a *audit.Audit) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	a.TenantID = tenantID
	a.ID = r.seq.Add(1)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	stored := *a
	r.storage.Store(auditKey{tenantID: tenantID, id: a.ID}, &stored)
	return nil
}

func (r *InmemAuditRepository) List(ctx context.Context, params *audit.FindParams) ([]*audit.Audit, error) {
	rows, err := r.filter(ctx, params)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return rows, nil
	}
	if params.Offset > 0 {
		if params.Offset >= len(rows) {
			return nil, nil
		}
		rows = rows[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(rows) {
		rows = rows[:params.Limit]
	}
	return rows, nil
}

func (r *InmemAuditRepository) Count(ctx context.Context, params *audit.FindParams) (int64, error) {
	rows, err := r.filter(ctx, params)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (r *InmemAuditRepository) Stats(ctx context.Context, params *audit.StatsParams) (*audit.Stats, error) {
	var find *audit.FindParams
	if params != nil {
		find = &audit.FindParams{RecordType: params.RecordType, From: params.From, To: params.To}
	}
	rows, err := r.filter(ctx, find)
	if err != nil {
		return nil, err
	}

	stats := &audit.Stats{ByType: map[audit.AssignmentType]int64{}}
	byRule := map[int64]int64{}
	byUser := map[uint]int64{}
	for _, a := range rows {
		stats.Total++
		stats.ByType[a.AssignmentType]++
		if a.RuleID != nil {
			byRule[*a.RuleID]++
		}
		if a.AssignedUserID == nil {
			stats.Unassigned++
		} else {
			byUser[*a.AssignedUserID]++
		}
	}
	for id, n := range byRule {
		ruleID := id
		stats.ByRule = append(stats.ByRule, audit.RuleCount{RuleID: &ruleID, Count: n})
	}
	sort.Slice(stats.ByRule, func(i, j int) bool {
		if stats.ByRule[i].Count != stats.ByRule[j].Count {
			return stats.ByRule[i].Count > stats.ByRule[j].Count
		}
		return *stats.ByRule[i].RuleID < *stats.ByRule[j].RuleID
	})
	for id, n := range byUser {
		userID := id
		stats.ByUser = append(stats.ByUser, audit.UserCount{UserID: &userID, Count: n})
	}
	sort.Slice(stats.ByUser, func(i, j int) bool {
		if stats.ByUser[i].Count != stats.ByUser[j].Count {
			return stats.ByUser[i].Count > stats.ByUser[j].Count
		}
		return *stats.ByUser[i].UserID < *stats.ByUser[j].UserID
	})
	if stats.Unassigned > 0 {
		stats.ByUser = append(stats.ByUser, audit.UserCount{Count: stats.Unassigned})
	}
	return stats, nil
}

func (r *InmemAuditRepository) filter(ctx context.Context, params *audit.FindParams) ([]*audit.Audit, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var visible map[uint]struct{}
	if params != nil && params.VisibleUserIDs != nil {
		visible = make(map[uint]struct{}, len(params.VisibleUserIDs))
		for _, id := range params.VisibleUserIDs {
			visible[id] = struct{}{}
		}
	}

	var out []*audit.Audit
	for _, a := range r.storage.All(nil) {
		if a.TenantID != tenantID || !matchesAudit(a, params, visible) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func matchesAudit(a *audit.Audit, p *audit.FindParams, visible map[uint]struct{}) bool {
	if p == nil {
		return true
	}
	if p.RecordType != "" && a.RecordType != p.RecordType {
		return false
	}
	if p.RecordID != "" && a.RecordID != p.RecordID {
		return false
	}
	if p.AssignedUserID != nil && (a.AssignedUserID == nil || *a.AssignedUserID != *p.AssignedUserID) {
		return false
	}
	if p.RuleID != nil && (a.RuleID == nil || *a.RuleID != *p.RuleID) {
		return false
	}
	if p.AssignmentType != "" && a.AssignmentType != p.AssignmentType {
		return false
	}
	if visible != nil && a.AssignedUserID != nil {
		if _, ok := visible[*a.AssignedUserID]; !ok {
			return false
		}
	}
	if p.From != nil && !p.From.IsZero() && a.CreatedAt.Before(*p.From) {
		return false
	}
	if p.To != nil && !p.To.IsZero() && a.CreatedAt.After(*p.To) {
		return false
	}
	return true
}
