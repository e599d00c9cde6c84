package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
)

// EligibleUser is one entry of the ordered eligible list.
type EligibleUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func teamAccessFor(ctx context.Context, members member.Repository, enabled bool, requesterID *uint) (TeamAccess, error) {
	if !enabled || requesterID == nil {
		return TeamAccess{}, nil
	}
	memberships, err := members.Memberships(ctx)
	if err != nil {
		return TeamAccess{}, mapError(err)
	}
	return NewTeamAccess(requesterID, enabled, memberships), nil
}

// eligibleMembers returns active tenant members allowed by access, ascending by id. ctx must carry the tenant.
func eligibleMembers(ctx context.Context, tenantID uuid.UUID, members member.Repository, access TeamAccess) ([]*member.Member, error) {
	active, err := members.ListActive(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	byID := make(map[uint]*member.Member, len(active))
	ids := make([]uint, 0, len(active))
	for _, m := range active {
		if m.TenantID != tenantID || !m.IsActive() || !access.AllowsUser(m.ID) {
			continue
		}
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	ids = normalizeEligible(ids)
	out := make([]*member.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

func memberIDs(ms []*member.Member) []uint {
	ids := make([]uint, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	return ids
}

type EligibilityService struct {
	members  member.Repository
	defaults *DefaultsService
}

func NewEligibilityService(members member.Repository, defaults *DefaultsService) *EligibilityService {
	return &EligibilityService{members: members, defaults: defaults}
}

// ListEligibleUsers returns the users round robin would rotate over, ordered by id.
// requesterID is optional and only narrows the list when team scoping is enabled.
func (s *EligibilityService) ListEligibleUsers(ctx context.Context, tenantID uuid.UUID, requesterID *uint) ([]EligibleUser, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defaults, err := s.defaults.getOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	access, err := teamAccessFor(ctx, s.members, defaults.TeamScopingEnabled, requesterID)
	if err != nil {
		return nil, err
	}
	ms, err := eligibleMembers(ctx, tenantID, s.members, access)
	if err != nil {
		return nil, err
	}
	out := make([]EligibleUser, 0, len(ms))
	for _, m := range ms {
		out = append(out, EligibleUser{ID: m.ID, Name: m.FullName(), Email: m.Email})
	}
	return out, nil
}
