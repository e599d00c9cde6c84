package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/pkg/authz"
)

func seedDecisions(t *testing.T, f *fixture) {
	t.Helper()
	f.addUser(1, "Alice")
	f.addUser(2, "Bob")
	f.addUser(3, "Carol")
	f.addRule(t, "vip", 1, rule.UserTarget(3), equals("tier", "vip"))
	for i := 0; i < 4; i++ {
		f.assign(t, fmt.Sprintf("rr-%d", i), nil)
	}
	f.assign(t, "vip-1", rule.Attributes{"tier": "vip"})
}

func TestListAudits_PaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	seedDecisions(t, f)

	page, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{}, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, page.Total)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Rows, 2)
	require.Equal(t, "vip-1", page.Rows[0].RecordID)
	require.Greater(t, page.Rows[0].ID, page.Rows[1].ID)

	last, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{}, 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Rows, 1)
	require.Equal(t, "rr-0", last.Rows[0].RecordID)
}

func TestListAudits_ClampsPageSize(t *testing.T) {
	f := newFixture(t)
	seedDecisions(t, f)

	page, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 25, page.PerPage)

	page, err = f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{}, 1, 10_000)
	require.NoError(t, err)
	require.Equal(t, 100, page.PerPage)
}

func TestListAudits_Filters(t *testing.T) {
	f := newFixture(t)
	seedDecisions(t, f)

	page, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{AssignmentType: audit.TypeRule}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, uint(3), *page.Rows[0].AssignedUserID)

	page, err = f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{AssignedUserID: uintPtr(1)}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	future := time.Now().Add(time.Hour)
	page, err = f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{DateFrom: &future}, 1, 10)
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

func TestListAudits_RejectsMalformedFilters(t *testing.T) {
	f := newFixture(t)
	from := time.Now()
	to := from.Add(-time.Hour)

	_, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{DateFrom: &from, DateTo: &to}, 1, 10)
	require.True(t, IsKind(err, KindValidation))

	_, err = f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{AssignmentType: "magic"}, 1, 10)
	require.True(t, IsKind(err, KindValidation))
}

func TestListAudits_TeamScopingHidesOtherTeams(t *testing.T) {
	f := newFixture(t, withSettings(assignmentdefault.Settings{AutomaticAssignment: true, RoundRobin: true, TeamScoping: true}))
	seedDecisions(t, f)
	f.addTeam(f.tenantID, 1, 2)
	_, err := f.defaults.UpdateDefaults(context.Background(), f.tenantID, UpdateDefaultsDTO{RoundRobinEnabled: new(bool)})
	require.NoError(t, err)
	f.assign(t, "nobody", nil)

	page, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{RequesterID: uintPtr(2)}, 1, 50)
	require.NoError(t, err)
	for _, row := range page.Rows {
		if row.AssignedUserID != nil {
			require.Contains(t, []uint{1, 2}, *row.AssignedUserID)
		}
	}
	// Two rows went to Carol, who is outside the requester's team.
	require.EqualValues(t, 4, page.Total)

	all, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{}, 1, 50)
	require.NoError(t, err)
	require.EqualValues(t, 6, all.Total)
}

func TestGetAssignmentStats(t *testing.T) {
	f := newFixture(t, withSettings(assignmentdefault.Settings{AutomaticAssignment: true, RoundRobin: true}))
	seedDecisions(t, f)

	stats, err := f.audit.GetAssignmentStats(context.Background(), f.tenantID, StatsFilter{RecordType: audit.RecordLead})
	require.NoError(t, err)
	require.EqualValues(t, 5, stats.Total)
	require.Zero(t, stats.Unassigned)
	require.EqualValues(t, 4, stats.ByType[audit.TypeRoundRobin])
	require.EqualValues(t, 1, stats.ByType[audit.TypeRule])
	require.Len(t, stats.ByRule, 1)
	require.EqualValues(t, 1, stats.ByRule[0].Count)

	byUser := map[uint]int64{}
	for _, uc := range stats.ByUser {
		require.NotNil(t, uc.UserID)
		byUser[*uc.UserID] = uc.Count
	}
	require.Equal(t, map[uint]int64{1: 2, 2: 1, 3: 2}, byUser)

	stats, err = f.audit.GetAssignmentStats(context.Background(), f.tenantID, StatsFilter{RecordType: audit.RecordDeal})
	require.NoError(t, err)
	require.Zero(t, stats.Total)
}

func TestAuditQueries_RequireAuthorization(t *testing.T) {
	deny := &denyAll{}
	f := newFixture(t, withAuthorizer(deny))

	_, err := f.audit.ListAudits(context.Background(), f.tenantID, AuditFilter{}, 1, 10)
	require.True(t, IsKind(err, KindForbidden))
	_, err = f.audit.GetAssignmentStats(context.Background(), f.tenantID, StatsFilter{})
	require.True(t, IsKind(err, KindForbidden))

	require.Len(t, deny.requests, 2)
	for _, req := range deny.requests {
		require.Equal(t, authz.ObjectAssignmentAudits, req.Object)
		require.Equal(t, authz.ActionView, req.Action)
		require.Equal(t, authz.SubjectForUser(f.tenantID, 0), req.Subject)
	}
}

func TestRecord_RejectsUnknownAssignmentType(t *testing.T) {
	f := newFixture(t)
	err := f.audit.Record(context.Background(), f.tenantID, &audit.Audit{
		RecordType:     audit.RecordLead,
		RecordID:       "x",
		AssignmentType: "psychic",
	})
	require.True(t, IsKind(err, KindValidation))
}

func TestRecord_StopsRetryingWhenContextEnds(t *testing.T) {
	failing := &failingAuditRepo{failures: 100}
	f := newFixture(t, withAuditRepo(func(r audit.Repository) audit.Repository {
		failing.Repository = r
		return failing
	}))
	f.audit.sleep = sleepCtx
	f.audit.retry = RetryPolicy{MaxAttempts: 5, Backoff: time.Hour, MaxBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.audit.Record(ctx, f.tenantID, &audit.Audit{
		RecordType:     audit.RecordLead,
		RecordID:       "x",
		AssignmentType: audit.TypeManual,
	})
	require.True(t, IsKind(err, KindPersistence))
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, failing.attempts.Load())
}
