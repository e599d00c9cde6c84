package persistence

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/pkg/composables"
)

type InmemMemberRepository struct {
	members *guardedMap[uint, *member.Member]
	teams   *guardedMap[uuid.UUID, *member.Team]
}

func NewInmemMemberRepository() *InmemMemberRepository {
	return &InmemMemberRepository{
		members: newGuardedMap[uint, *member.Member](),
		teams:   newGuardedMap[uuid.UUID, *member.Team](),
	}
}

func (r *InmemMemberRepository) AddMember(m *member.Member) {
	cp := *m
	r.members.Store(m.ID, &cp)
}

func (r *InmemMemberRepository) AddTeam(t *member.Team) {
	cp := *t
	cp.MemberIDs = append([]uint(nil), t.MemberIDs...)
	r.teams.Store(t.ID, &cp)
}

func (r *InmemMemberRepository) SetStatus(id uint, status member.Status) {
	if m, found := r.members.Load(id); found {
		cp := *m
		cp.Status = status
		r.members.Store(id, &cp)
	}
}

func (r *InmemMemberRepository) ListActive(ctx context.Context) ([]*member.Member, error) {
	all, err := r.tenantMembers(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.IsActive() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *InmemMemberRepository) ListByIDs(ctx context.Context, ids []uint) ([]*member.Member, error) {
	all, err := r.tenantMembers(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := all[:0]
	for _, m := range all {
		if _, ok := wanted[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *InmemMemberRepository) GetByID(_ context.Context, id uint) (*member.Member, error) {
	m, found := r.members.Load(id)
	if !found {
		return nil, member.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *InmemMemberRepository) GetTeam(_ context.Context, id uuid.UUID) (*member.Team, error) {
	t, found := r.teams.Load(id)
	if !found {
		return nil, member.ErrTeamNotFound
	}
	cp := *t
	cp.MemberIDs = append([]uint(nil), t.MemberIDs...)
	return &cp, nil
}

func (r *InmemMemberRepository) Memberships(ctx context.Context) ([]member.TeamMembership, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var out []member.TeamMembership
	for _, t := range r.teams.All(nil) {
		if t.TenantID != tenantID {
			continue
		}
		for _, uid := range t.MemberIDs {
			out = append(out, member.TeamMembership{TeamID: t.ID, UserID: uid})
		}
	}
	return out, nil
}

func (r *InmemMemberRepository) tenantMembers(ctx context.Context) ([]*member.Member, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var out []*member.Member
	for _, m := range r.members.All(nil) {
		if m.TenantID == tenantID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
