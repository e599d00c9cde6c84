package member

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrTeamNotFound   = errors.New("team not found")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Member is a tenant user as seen by the assignment engine.
type Member struct {
	ID        uint
	TenantID  uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Status    Status
}

func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

type Team struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	MemberIDs []uint
}

type TeamMembership struct {
	TeamID uuid.UUID
	UserID uint
}

type Repository interface {
	// ListActive returns active members of the tenant in context ordered by id.
	ListActive(ctx context.Context) ([]*Member, error)
	// ListByIDs returns members of the tenant in context among ids.
	ListByIDs(ctx context.Context, ids []uint) ([]*Member, error)
	// GetByID looks a user up regardless of tenant so callers can detect cross-tenant references.
	GetByID(ctx context.Context, id uint) (*Member, error)
	// GetTeam looks a team up regardless of tenant.
	GetTeam(ctx context.Context, id uuid.UUID) (*Team, error)
	// Memberships returns every team membership of the tenant in context.
	Memberships(ctx context.Context) ([]TeamMembership, error)
}
