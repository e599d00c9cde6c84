package services

import (
	"sort"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
)

// TeamAccess restricts eligible users and visible audit rows to the requester's teams.
// The zero value allows everything.
type TeamAccess struct {
	restricted bool
	allowed    map[uint]struct{}
}

// NewTeamAccess builds the predicate. Disabled scoping or an anonymous requester yields the identity.
func NewTeamAccess(requesterID *uint, enabled bool, memberships []member.TeamMembership) TeamAccess {
	if !enabled || requesterID == nil {
		return TeamAccess{}
	}
	teams := make(map[uuid.UUID]struct{})
	for _, m := range memberships {
		if m.UserID == *requesterID {
			teams[m.TeamID] = struct{}{}
		}
	}
	allowed := map[uint]struct{}{*requesterID: {}}
	for _, m := range memberships {
		if _, ok := teams[m.TeamID]; ok {
			allowed[m.UserID] = struct{}{}
		}
	}
	return TeamAccess{restricted: true, allowed: allowed}
}

func (a TeamAccess) Restricted() bool {
	return a.restricted
}

func (a TeamAccess) AllowsUser(id uint) bool {
	if !a.restricted {
		return true
	}
	_, ok := a.allowed[id]
	return ok
}

// AllowsAudit reports whether the row is visible. Unassigned rows are always visible.
func (a TeamAccess) AllowsAudit(row *audit.Audit) bool {
	if row == nil {
		return false
	}
	if row.AssignedUserID == nil {
		return true
	}
	return a.AllowsUser(*row.AssignedUserID)
}

// VisibleUserIDs returns nil when unrestricted, otherwise the allowed ids ascending.
func (a TeamAccess) VisibleUserIDs() []uint {
	if !a.restricted {
		return nil
	}
	ids := make([]uint, 0, len(a.allowed))
	for id := range a.allowed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a TeamAccess) FilterUsers(ids []uint) []uint {
	if !a.restricted {
		return ids
	}
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if a.AllowsUser(id) {
			out = append(out, id)
		}
	}
	return out
}
