package persistence_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence"
	"github.com/iota-uz/autoassign/pkg/composables"
)

func seededStore(t *testing.T) (*persistence.InmemAssignmentStore, context.Context, uuid.UUID) {
	t.Helper()
	store := persistence.NewInmemAssignmentStore()
	tenantID := uuid.New()
	ctx := composables.WithTenantID(context.Background(), tenantID)
	_, err := store.Defaults().GetOrCreate(ctx, assignmentdefault.New(tenantID, assignmentdefault.Settings{
		AutomaticAssignment: true,
		RoundRobin:          true,
	}))
	require.NoError(t, err)
	return store, ctx, tenantID
}

func TestInmemCursorStore_AdvanceWraps(t *testing.T) {
	store, ctx, tenantID := seededStore(t)
	cursors := store.Cursors()

	var got []int
	for range 7 {
		adv, err := cursors.Advance(ctx, tenantID, rotation.TenantScope, 3)
		require.NoError(t, err)
		got = append(got, adv.Index)
	}
	require.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)

	d, err := store.Defaults().GetOrCreate(ctx, assignmentdefault.New(tenantID, assignmentdefault.Settings{}))
	require.NoError(t, err)
	require.EqualValues(t, 1, d.RotationCursor)
}

func TestInmemCursorStore_ScopesAreIndependent(t *testing.T) {
	store, ctx, tenantID := seededStore(t)
	cursors := store.Cursors()
	team := rotation.TeamScope(uuid.New())

	adv, err := cursors.Advance(ctx, tenantID, rotation.TenantScope, 4)
	require.NoError(t, err)
	require.Equal(t, 0, adv.Index)
	adv, err = cursors.Advance(ctx, tenantID, rotation.TenantScope, 4)
	require.NoError(t, err)
	require.Equal(t, 1, adv.Index)

	adv, err = cursors.Advance(ctx, tenantID, team, 2)
	require.NoError(t, err)
	require.Equal(t, 0, adv.Index)
	require.EqualValues(t, 1, adv.Next)
}

func TestInmemCursorStore_ResetIsIdempotent(t *testing.T) {
	store, ctx, tenantID := seededStore(t)
	cursors := store.Cursors()
	team := rotation.TeamScope(uuid.New())

	_, err := cursors.Advance(ctx, tenantID, rotation.TenantScope, 5)
	require.NoError(t, err)
	_, err = cursors.Advance(ctx, tenantID, team, 5)
	require.NoError(t, err)

	require.NoError(t, cursors.Reset(ctx, tenantID))
	require.NoError(t, cursors.Reset(ctx, tenantID))

	adv, err := cursors.Advance(ctx, tenantID, rotation.TenantScope, 5)
	require.NoError(t, err)
	require.Equal(t, 0, adv.Index)
	adv, err = cursors.Advance(ctx, tenantID, team, 5)
	require.NoError(t, err)
	require.Equal(t, 0, adv.Index)
}

func TestInmemCursorStore_MissingDefaults(t *testing.T) {
	store := persistence.NewInmemAssignmentStore()
	_, err := store.Cursors().Advance(context.Background(), uuid.New(), rotation.TenantScope, 2)
	require.ErrorIs(t, err, assignmentdefault.ErrNotFound)
}

func TestInmemCursorStore_ConcurrentAdvanceHandsOutEachIndexOnce(t *testing.T) {
	store, ctx, tenantID := seededStore(t)
	cursors := store.Cursors()

	const n = 5
	const calls = 100
	var mu sync.Mutex
	counts := make(map[int]int)
	g, gctx := errgroup.WithContext(ctx)
	for range calls {
		g.Go(func() error {
			adv, err := cursors.Advance(gctx, tenantID, rotation.TenantScope, n)
			if err != nil {
				return err
			}
			mu.Lock()
			counts[adv.Index]++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for i := range n {
		require.Equal(t, calls/n, counts[i], "index %d", i)
	}
}

func TestInmemCursorStore_LockHonoursContext(t *testing.T) {
	store, ctx, tenantID := seededStore(t)

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = store.Defaults().Mutate(ctx, func(*assignmentdefault.AssignmentDefault) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked
	defer close(release)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := store.Cursors().Advance(short, tenantID, rotation.TenantScope, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInmemDefaultsRepository_MutateKeepsCursor(t *testing.T) {
	store, ctx, tenantID := seededStore(t)
	_, err := store.Cursors().Advance(ctx, tenantID, rotation.TenantScope, 3)
	require.NoError(t, err)

	updated, err := store.Defaults().Mutate(ctx, func(d *assignmentdefault.AssignmentDefault) error {
		d.RotationCursor = 99
		d.EnableAutomaticAssignment = false
		return nil
	})
	require.NoError(t, err)
	require.False(t, updated.EnableAutomaticAssignment)
	require.EqualValues(t, 1, updated.RotationCursor)

	ids := []int{}
	for range 3 {
		adv, err := store.Cursors().Advance(ctx, tenantID, rotation.TenantScope, 3)
		require.NoError(t, err)
		ids = append(ids, adv.Index)
	}
	sort.Ints(ids)
	require.Equal(t, []int{0, 1, 2}, ids)
}
