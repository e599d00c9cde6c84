package services

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/composables"
	"github.com/iota-uz/autoassign/pkg/eventbus"
)

type fixture struct {
	tenantID uuid.UUID
	members  *persistence.InmemMemberRepository
	store    *persistence.InmemAssignmentStore
	rules    *persistence.InmemRuleRepository
	audits   audit.Repository
	bus      eventbus.EventBus

	defaults    *DefaultsService
	audit       *AuditService
	assignment  *AssignmentService
	exporter    *AuditExporter
	ruleService *RuleService
	eligibility *EligibilityService
}

type fixtureOptions struct {
	settings   assignmentdefault.Settings
	authorizer authz.Authorizer
	audits     func(audit.Repository) audit.Repository
	retry      RetryPolicy
	maxRows    int
}

type fixtureOption func(*fixtureOptions)

func withSettings(s assignmentdefault.Settings) fixtureOption {
	return func(o *fixtureOptions) { o.settings = s }
}

func withAuthorizer(a authz.Authorizer) fixtureOption {
	return func(o *fixtureOptions) { o.authorizer = a }
}

func withAuditRepo(wrap func(audit.Repository) audit.Repository) fixtureOption {
	return func(o *fixtureOptions) { o.audits = wrap }
}

func withMaxRows(n int) fixtureOption {
	return func(o *fixtureOptions) { o.maxRows = n }
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	o := &fixtureOptions{
		settings:   assignmentdefault.Settings{AutomaticAssignment: true, RoundRobin: true},
		authorizer: authz.AllowAll(),
		retry:      RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: time.Millisecond},
		maxRows:    1000,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := quietLogger()
	f := &fixture{
		tenantID: uuid.New(),
		members:  persistence.NewInmemMemberRepository(),
		store:    persistence.NewInmemAssignmentStore(),
		rules:    persistence.NewInmemRuleRepository(),
		bus:      eventbus.NewEventPublisher(logger),
	}
	f.audits = persistence.NewInmemAuditRepository()
	if o.audits != nil {
		f.audits = o.audits(f.audits)
	}

	cursors := f.store.Cursors()
	f.defaults = NewDefaultsService(f.store.Defaults(), f.members, cursors, o.authorizer, o.settings, logger)
	distributor := NewDistributor(cursors)
	evaluator := NewRuleEvaluator(f.rules, f.members, distributor, time.Minute)
	f.audit = NewAuditService(f.audits, f.members, f.defaults, o.authorizer, f.bus, o.retry, 25, 100, logger)
	f.audit.sleep = func(context.Context, time.Duration) error { return nil }
	f.assignment = NewAssignmentService(f.defaults, f.members, evaluator, distributor, f.audit, logger)
	f.exporter = NewAuditExporter(f.audit, f.members, f.rules, o.maxRows)
	f.ruleService = NewRuleService(f.rules, f.members, evaluator, o.authorizer, logger)
	f.eligibility = NewEligibilityService(f.members, f.defaults)
	return f
}

// ctx is bound to the fixture tenant.
func (f *fixture) ctx() context.Context {
	return composables.WithTenantID(context.Background(), f.tenantID)
}

func (f *fixture) addUser(id uint, first string) {
	f.addUserIn(f.tenantID, id, first, member.StatusActive)
}

func (f *fixture) addUserIn(tenantID uuid.UUID, id uint, first string, status member.Status) {
	f.members.AddMember(&member.Member{
		ID:        id,
		TenantID:  tenantID,
		FirstName: first,
		LastName:  "Doe",
		Email:     first + "@example.com",
		Status:    status,
	})
}

func (f *fixture) addTeam(tenantID uuid.UUID, ids ...uint) uuid.UUID {
	id := uuid.New()
	f.members.AddTeam(&member.Team{ID: id, TenantID: tenantID, Name: "team-" + id.String()[:8], MemberIDs: ids})
	return id
}

func (f *fixture) addRule(t *testing.T, name string, priority int, target rule.Target, conds ...rule.Condition) *rule.Rule {
	t.Helper()
	r := &rule.Rule{
		Name:       name,
		Priority:   priority,
		Conditions: conds,
		Target:     target,
		IsActive:   true,
	}
	require.NoError(t, f.rules.Upsert(f.ctx(), r))
	return r
}

func (f *fixture) assign(t *testing.T, recordID string, attrs rule.Attributes) *Outcome {
	t.Helper()
	out, err := f.assignment.Assign(context.Background(), f.tenantID, Record{
		Type:       audit.RecordLead,
		ID:         recordID,
		Attributes: attrs,
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func (f *fixture) auditsFor(t *testing.T, recordID string) []*audit.Audit {
	t.Helper()
	rows, err := f.audits.List(f.ctx(), &audit.FindParams{RecordID: recordID})
	require.NoError(t, err)
	return rows
}

func equals(field string, value any) rule.Condition {
	return rule.Condition{Field: field, Operator: rule.OpEquals, Value: value}
}

func uintPtr(v uint) *uint { return &v }

// failingAuditRepo rejects the first failures inserts, then delegates.
type failingAuditRepo struct {
	audit.Repository
	failures int64
	attempts atomic.Int64
}

var errAuditDown = errors.New("audit store unavailable")

func (r *failingAuditRepo) Create(ctx context.Context, a *audit.Audit) error {
	if r.attempts.Add(1) <= r.failures {
		return errAuditDown
	}
	return r.Repository.Create(ctx, a)
}

type denyAll struct {
	requests []authz.Request
}

func (d *denyAll) Authorize(_ context.Context, req authz.Request) error {
	d.requests = append(d.requests, req)
	return authz.ErrForbidden
}
