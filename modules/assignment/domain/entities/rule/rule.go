package rule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrRuleNotFound = errors.New("assignment rule not found")

type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetTeam TargetKind = "team"
)

// Target is either a single user or a team resolved by rotation.
type Target struct {
	Kind   TargetKind
	UserID uint
	TeamID uuid.UUID
}

func UserTarget(id uint) Target {
	return Target{Kind: TargetUser, UserID: id}
}

func TeamTarget(id uuid.UUID) Target {
	return Target{Kind: TargetTeam, TeamID: id}
}

func (t Target) String() string {
	if t.Kind == TargetTeam {
		return "team:" + t.TeamID.String()
	}
	return "user:" + strconv.FormatUint(uint64(t.UserID), 10)
}

func (t Target) Validate() error {
	switch t.Kind {
	case TargetUser:
		if t.UserID == 0 {
			return fmt.Errorf("user target requires a user id")
		}
	case TargetTeam:
		if t.TeamID == uuid.Nil {
			return fmt.Errorf("team target requires a team id")
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

type Rule struct {
	ID         int64
	TenantID   uuid.UUID
	Name       string
	Priority   int
	Conditions []Condition
	Target     Target
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	for _, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// Matches reports whether every condition holds for attrs.
// A rule without conditions matches every record.
func (r *Rule) Matches(attrs Attributes) bool {
	for _, c := range r.Conditions {
		if !Evaluate(c, attrs) {
			return false
		}
	}
	return true
}

// Sort orders rules by (priority, id) in place.
func Sort(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// FirstMatch returns the first active rule in (priority, id) order whose conditions all hold.
func FirstMatch(rules []*Rule, attrs Attributes) (*Rule, bool) {
	ordered := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.IsActive {
			ordered = append(ordered, r)
		}
	}
	Sort(ordered)
	for _, r := range ordered {
		if r.Matches(attrs) {
			return r, true
		}
	}
	return nil, false
}

// Version identifies a tenant's rule set. Any insert, update or delete changes it.
type Version struct {
	Count int64
	Stamp int64
}

// Repository reads rules of the tenant in context.
type Repository interface {
	Version(ctx context.Context) (Version, error)
	ListActive(ctx context.Context) ([]*Rule, error)
	List(ctx context.Context) ([]*Rule, error)
	GetByID(ctx context.Context, id int64) (*Rule, error)
	// Upsert inserts or replaces the rule with the same name.
	Upsert(ctx context.Context, r *Rule) error
}
