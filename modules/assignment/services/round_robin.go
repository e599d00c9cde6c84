package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
)

// Selection is one round-robin hand-out.
type Selection struct {
	UserID        uint
	Scope         rotation.Scope
	Cursor        int
	NextCursor    int64
	EligibleCount int
}

func (s Selection) context() map[string]any {
	return map[string]any{
		"scope":          string(s.Scope),
		"cursor":         s.Cursor,
		"next_cursor":    s.NextCursor,
		"eligible_count": s.EligibleCount,
	}
}

type Distributor struct {
	cursors rotation.CursorStore
}

func NewDistributor(cursors rotation.CursorStore) *Distributor {
	return &Distributor{cursors: cursors}
}

// Next hands out eligible[cursor mod len] for the scope and advances its cursor atomically.
// An empty eligible list selects nobody and leaves the cursor untouched.
func (d *Distributor) Next(ctx context.Context, tenantID uuid.UUID, scope rotation.Scope, eligible []uint) (Selection, bool, error) {
	if !scope.Valid() {
		return Selection{}, false, invalidInput("invalid rotation scope "+string(scope), nil)
	}
	list := normalizeEligible(eligible)
	if len(list) == 0 {
		return Selection{}, false, nil
	}
	adv, err := d.cursors.Advance(ctx, tenantID, scope, len(list))
	if err != nil {
		return Selection{}, false, mapError(err)
	}
	if scope.IsTenant() {
		scope = rotation.TenantScope
	}
	kind, _, _ := strings.Cut(string(scope), ":")
	recordCursorAdvance(kind)
	return Selection{
		UserID:        list[adv.Index],
		Scope:         scope,
		Cursor:        adv.Index,
		NextCursor:    adv.Next,
		EligibleCount: len(list),
	}, true, nil
}

// normalizeEligible deduplicates ids, drops zero and sorts ascending.
func normalizeEligible(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
