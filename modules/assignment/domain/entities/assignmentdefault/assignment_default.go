package assignmentdefault

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("assignment defaults not found")

// AssignmentDefault is the per-tenant assignment configuration. Exactly one exists per tenant.
type AssignmentDefault struct {
	TenantID                  uuid.UUID
	EnableAutomaticAssignment bool
	DefaultUserID             *uint
	RoundRobinEnabled         bool
	TeamScopingEnabled        bool
	// RotationCursor is stored already reduced modulo the eligible list length it was last advanced against.
	RotationCursor int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Settings are the values a lazily created row starts with.
type Settings struct {
	AutomaticAssignment bool
	RoundRobin          bool
	TeamScoping         bool
}

func New(tenantID uuid.UUID, s Settings) *AssignmentDefault {
	now := time.Now()
	return &AssignmentDefault{
		TenantID:                  tenantID,
		EnableAutomaticAssignment: s.AutomaticAssignment,
		RoundRobinEnabled:         s.RoundRobin,
		TeamScopingEnabled:        s.TeamScoping,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

// Update lists the recognized mutable fields. Nil means unchanged.
type Update struct {
	EnableAutomaticAssignment *bool
	DefaultUserID             *uint
	ClearDefaultUser          bool
	RoundRobinEnabled         *bool
	TeamScopingEnabled        *bool
}

func (u Update) IsEmpty() bool {
	return u.EnableAutomaticAssignment == nil &&
		u.DefaultUserID == nil &&
		!u.ClearDefaultUser &&
		u.RoundRobinEnabled == nil &&
		u.TeamScopingEnabled == nil
}

func (d *AssignmentDefault) Apply(u Update) {
	if u.EnableAutomaticAssignment != nil {
		d.EnableAutomaticAssignment = *u.EnableAutomaticAssignment
	}
	if u.ClearDefaultUser {
		d.DefaultUserID = nil
	} else if u.DefaultUserID != nil {
		id := *u.DefaultUserID
		d.DefaultUserID = &id
	}
	if u.RoundRobinEnabled != nil {
		d.RoundRobinEnabled = *u.RoundRobinEnabled
	}
	if u.TeamScopingEnabled != nil {
		d.TeamScopingEnabled = *u.TeamScopingEnabled
	}
}

// Repository stores defaults of the tenant in context.
type Repository interface {
	// GetOrCreate returns the existing row or inserts initial. Concurrent callers observe one row.
	GetOrCreate(ctx context.Context, initial *AssignmentDefault) (*AssignmentDefault, error)
	// Mutate applies fn while holding the row exclusively and persists the result.
	Mutate(ctx context.Context, fn func(d *AssignmentDefault) error) (*AssignmentDefault, error)
}
