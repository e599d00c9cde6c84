package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AssignmentType string

const (
	TypeRule       AssignmentType = "rule"
	TypeRoundRobin AssignmentType = "round_robin"
	TypeDefault    AssignmentType = "default"
	TypeManual     AssignmentType = "manual"
)

func (t AssignmentType) Valid() bool {
	switch t {
	case TypeRule, TypeRoundRobin, TypeDefault, TypeManual:
		return true
	}
	return false
}

type RecordType string

const (
	RecordLead    RecordType = "lead"
	RecordDeal    RecordType = "deal"
	RecordContact RecordType = "contact"
)

// Audit is one immutable assignment decision.
type Audit struct {
	ID             int64
	TenantID       uuid.UUID
	RecordType     RecordType
	RecordID       string
	AssignedUserID *uint // nil when no eligible target existed
	RuleID         *int64
	AssignmentType AssignmentType
	Context        map[string]any
	CreatedAt      time.Time
}

func (a *Audit) IsUnassigned() bool {
	return a.AssignedUserID == nil
}

type FindParams struct {
	RecordType     RecordType
	RecordID       string
	AssignedUserID *uint
	RuleID         *int64
	AssignmentType AssignmentType
	From           *time.Time
	To             *time.Time
	// VisibleUserIDs restricts rows to these assignees plus unassigned rows when non-nil.
	VisibleUserIDs []uint
	Limit          int
	Offset         int
}

type StatsParams struct {
	RecordType RecordType
	From       *time.Time
	To         *time.Time
}

type RuleCount struct {
	RuleID *int64
	Count  int64
}

type UserCount struct {
	UserID *uint
	Count  int64
}

type Stats struct {
	Total      int64
	Unassigned int64
	ByType     map[AssignmentType]int64
	ByRule     []RuleCount
	ByUser     []UserCount
}

// Repository appends and queries audit rows of the tenant in context.
type Repository interface {
	Create(ctx context.Context, a *Audit) error
	List(ctx context.Context, params *FindParams) ([]*Audit, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
	Stats(ctx context.Context, params *StatsParams) (*Stats, error)
}
