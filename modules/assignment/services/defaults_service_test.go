package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/composables"
)

func TestGetDefaults_CreatesOnceWithInitialSettings(t *testing.T) {
	f := newFixture(t, withSettings(assignmentdefault.Settings{AutomaticAssignment: true, TeamScoping: true}))

	g, ctx := errgroup.WithContext(context.Background())
	results := make([]*assignmentdefault.AssignmentDefault, 20)
	for i := range results {
		g.Go(func() error {
			d, err := f.defaults.GetDefaults(ctx, f.tenantID)
			results[i] = d
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, d := range results {
		require.Equal(t, f.tenantID, d.TenantID)
		require.True(t, d.EnableAutomaticAssignment)
		require.False(t, d.RoundRobinEnabled)
		require.True(t, d.TeamScopingEnabled)
		require.Nil(t, d.DefaultUserID)
		require.Zero(t, d.RotationCursor)
		require.Equal(t, results[0].CreatedAt, d.CreatedAt)
	}
}

func TestUpdateDefaults(t *testing.T) {
	f := newFixture(t)
	f.addUser(1, "Alice")

	off := false
	d, err := f.defaults.UpdateDefaults(context.Background(), f.tenantID, UpdateDefaultsDTO{
		DefaultUserID:     uintPtr(1),
		RoundRobinEnabled: &off,
	})
	require.NoError(t, err)
	require.Equal(t, uint(1), *d.DefaultUserID)
	require.False(t, d.RoundRobinEnabled)
	require.True(t, d.EnableAutomaticAssignment)

	d, err = f.defaults.UpdateDefaults(context.Background(), f.tenantID, UpdateDefaultsDTO{ClearDefaultUser: true})
	require.NoError(t, err)
	require.Nil(t, d.DefaultUserID)
	require.False(t, d.RoundRobinEnabled)
}

func TestUpdateDefaults_RejectsBadDefaultUser(t *testing.T) {
	f := newFixture(t)
	f.addUserIn(f.tenantID, 2, "Sam", member.StatusSuspended)
	f.addUserIn(uuid.New(), 3, "Mallory", member.StatusActive)

	cases := []struct {
		name   string
		userID uint
		code   string
	}{
		{name: "missing", userID: 99, code: CodeInvalidInput},
		{name: "inactive", userID: 2, code: CodeInvalidInput},
		{name: "other tenant", userID: 3, code: CodeCrossTenantReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.defaults.UpdateDefaults(context.Background(), f.tenantID, UpdateDefaultsDTO{DefaultUserID: uintPtr(tc.userID)})
			require.True(t, IsKind(err, KindValidation))
			var se *ServiceError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tc.code, se.Code)
		})
	}

	d, err := f.defaults.GetDefaults(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.Nil(t, d.DefaultUserID)
}

func TestUpdateDefaults_RejectsEmptyAndConflictingInput(t *testing.T) {
	f := newFixture(t)
	f.addUser(1, "Alice")

	_, err := f.defaults.UpdateDefaults(context.Background(), f.tenantID, UpdateDefaultsDTO{})
	require.True(t, IsKind(err, KindValidation))

	_, err = f.defaults.UpdateDefaults(context.Background(), f.tenantID, UpdateDefaultsDTO{
		DefaultUserID:    uintPtr(1),
		ClearDefaultUser: true,
	})
	require.True(t, IsKind(err, KindValidation))
}

func TestDecodeUpdateDefaults(t *testing.T) {
	dto, err := DecodeUpdateDefaults([]byte(`{"enable_automatic_assignment": false, "default_user_id": 4}`))
	require.NoError(t, err)
	require.False(t, *dto.EnableAutomaticAssignment)
	require.Equal(t, uint(4), *dto.DefaultUserID)
	require.False(t, dto.ClearDefaultUser)

	dto, err = DecodeUpdateDefaults([]byte(`{"default_user_id": null}`))
	require.NoError(t, err)
	require.True(t, dto.ClearDefaultUser)
	require.Nil(t, dto.DefaultUserID)

	_, err = DecodeUpdateDefaults([]byte(`{"rotation_cursor": 3}`))
	require.True(t, IsKind(err, KindValidation))
}

func TestToggleAutomaticAssignment(t *testing.T) {
	f := newFixture(t)

	d, err := f.defaults.ToggleAutomaticAssignment(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.False(t, d.EnableAutomaticAssignment)

	d, err = f.defaults.ToggleAutomaticAssignment(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.True(t, d.EnableAutomaticAssignment)
}

func TestResetRoundRobinCounters_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addUser(1, "Alice")
	f.addUser(2, "Bob")
	f.addUser(3, "Carol")
	team := f.addTeam(f.tenantID, 2, 3)

	f.assign(t, "a", nil)
	f.assign(t, "b", nil)
	_, err := f.store.Cursors().Advance(f.ctx(), f.tenantID, rotation.TeamScope(team), 2)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.defaults.ResetRoundRobinCounters(context.Background(), f.tenantID))
		d, err := f.defaults.GetDefaults(context.Background(), f.tenantID)
		require.NoError(t, err)
		require.Zero(t, d.RotationCursor)
	}

	out := f.assign(t, "c", nil)
	require.Equal(t, uint(1), *out.UserID)
	adv, err := f.store.Cursors().Advance(f.ctx(), f.tenantID, rotation.TeamScope(team), 2)
	require.NoError(t, err)
	require.Zero(t, adv.Index)
}

func TestResetRoundRobinCounters_SerializesWithAdvances(t *testing.T) {
	f := newFixture(t)
	for id := uint(1); id <= 3; id++ {
		f.addUser(id, fmt.Sprintf("user%d", id))
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 30; i++ {
		recordID := fmt.Sprintf("lead-%d", i)
		g.Go(func() error {
			_, err := f.assignment.Assign(ctx, f.tenantID, Record{Type: "lead", ID: recordID})
			return err
		})
		if i%10 == 0 {
			g.Go(func() error {
				return f.defaults.ResetRoundRobinCounters(ctx, f.tenantID)
			})
		}
	}
	require.NoError(t, g.Wait())

	d, err := f.defaults.GetDefaults(context.Background(), f.tenantID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, d.RotationCursor, int64(0))
	require.Less(t, d.RotationCursor, int64(3))
}

func TestDefaultsAdminOperations_RequireAuthorization(t *testing.T) {
	deny := &denyAll{}
	f := newFixture(t, withAuthorizer(deny))
	f.addUser(1, "Alice")
	ctx := composables.WithUserID(context.Background(), 7)

	_, err := f.defaults.UpdateDefaults(ctx, f.tenantID, UpdateDefaultsDTO{DefaultUserID: uintPtr(1)})
	require.True(t, IsKind(err, KindForbidden))
	_, err = f.defaults.ToggleAutomaticAssignment(ctx, f.tenantID)
	require.True(t, IsKind(err, KindForbidden))
	err = f.defaults.ResetRoundRobinCounters(ctx, f.tenantID)
	require.True(t, IsKind(err, KindForbidden))

	require.Len(t, deny.requests, 3)
	require.Equal(t, authz.SubjectForUser(f.tenantID, 7), deny.requests[0].Subject)
	require.Equal(t, authz.ObjectAssignmentDefaults, deny.requests[0].Object)
	require.Equal(t, authz.ActionUpdate, deny.requests[0].Action)
	require.Equal(t, authz.ActionToggle, deny.requests[1].Action)
	require.Equal(t, authz.ActionReset, deny.requests[2].Action)

	// Reads are not guarded.
	d, err := f.defaults.GetDefaults(ctx, f.tenantID)
	require.NoError(t, err)
	require.True(t, d.EnableAutomaticAssignment)
}

func TestDefaults_ScopeViolation(t *testing.T) {
	f := newFixture(t)
	ctx := composables.WithTenantID(context.Background(), uuid.New())

	_, err := f.defaults.GetDefaults(ctx, f.tenantID)
	require.True(t, IsKind(err, KindScopeViolation))
	_, err = f.defaults.ToggleAutomaticAssignment(ctx, f.tenantID)
	require.True(t, IsKind(err, KindScopeViolation))
}

// gatedDefaultsRepo holds GetOrCreate until release is closed, honoring the caller's ctx meanwhile.
type gatedDefaultsRepo struct {
	assignmentdefault.Repository
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (r *gatedDefaultsRepo) GetOrCreate(ctx context.Context, initial *assignmentdefault.AssignmentDefault) (*assignmentdefault.AssignmentDefault, error) {
	if r.calls.Add(1) == 1 {
		close(r.entered)
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.Repository.GetOrCreate(ctx, initial)
}

func TestGetDefaults_CancelledCallerDoesNotFailJoinedCaller(t *testing.T) {
	f := newFixture(t)
	repo := &gatedDefaultsRepo{
		Repository: f.store.Defaults(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := NewDefaultsService(repo, f.members, f.store.Cursors(), authz.AllowAll(),
		assignmentdefault.Settings{AutomaticAssignment: true}, quietLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetDefaults(firstCtx, f.tenantID)
		firstErr <- err
	}()
	<-repo.entered

	type result struct {
		d   *assignmentdefault.AssignmentDefault
		err error
	}
	second := make(chan result, 1)
	go func() {
		d, err := svc.GetDefaults(context.Background(), f.tenantID)
		second <- result{d, err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(10 * time.Millisecond)
	close(repo.release)
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, f.tenantID, got.d.TenantID)
	require.True(t, got.d.EnableAutomaticAssignment)
}
