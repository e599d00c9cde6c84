package rotation

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Scope names an independent rotation: the tenant-wide one, or one per team or rule.
type Scope string

const TenantScope Scope = "tenant"

func TeamScope(teamID uuid.UUID) Scope {
	return Scope("team:" + teamID.String())
}

func RuleScope(ruleID int64) Scope {
	return Scope("rule:" + strconv.FormatInt(ruleID, 10))
}

func (s Scope) IsTenant() bool {
	return s == TenantScope || s == ""
}

func (s Scope) Valid() bool {
	if s.IsTenant() {
		return true
	}
	kind, id, ok := strings.Cut(string(s), ":")
	if !ok || id == "" {
		return false
	}
	switch kind {
	case "team":
		_, err := uuid.Parse(id)
		return err == nil
	case "rule":
		_, err := strconv.ParseInt(id, 10, 64)
		return err == nil
	default:
		return false
	}
}

// Advance is the outcome of one atomic read-select-advance.
type Advance struct {
	// Index is the position handed out, already reduced modulo the list length.
	Index int
	// Next is the cursor persisted for the following call.
	Next int64
}

// Step computes the advance for a stored cursor over a list of n entries.
func Step(cursor int64, n int) Advance {
	if n <= 0 {
		return Advance{}
	}
	if cursor < 0 {
		cursor = 0
	}
	idx := cursor % int64(n)
	return Advance{Index: int(idx), Next: (idx + 1) % int64(n)}
}

// FromNext recovers the advance from a cursor an atomic update already stored.
func FromNext(next int64, n int) Advance {
	return Advance{Index: int((next + int64(n) - 1) % int64(n)), Next: next}
}

// CursorStore keeps rotation cursors. Advance must be atomic per (tenant, scope).
type CursorStore interface {
	Advance(ctx context.Context, tenantID uuid.UUID, scope Scope, n int) (Advance, error)
	// Reset sets every cursor of the tenant to zero.
	Reset(ctx context.Context, tenantID uuid.UUID) error
}
