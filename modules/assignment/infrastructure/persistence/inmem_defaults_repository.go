package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/pkg/composables"
)

// tenantState holds everything the in-memory store keeps for one tenant behind one mutex,
// so defaults mutations and cursor advances of a tenant are serialized.
type tenantState struct {
	mu       chanMutex
	defaults *assignmentdefault.AssignmentDefault
	scoped   map[rotation.Scope]int64
}

// InmemAssignmentStore backs both the defaults repository and the cursor store in tests and
// single-process deployments.
type InmemAssignmentStore struct {
	tenants *guardedMap[uuid.UUID, *tenantState]
}

func NewInmemAssignmentStore() *InmemAssignmentStore {
	return &InmemAssignmentStore{tenants: newGuardedMap[uuid.UUID, *tenantState]()}
}

func (s *InmemAssignmentStore) Defaults() assignmentdefault.Repository {
	return &InmemDefaultsRepository{store: s}
}

func (s *InmemAssignmentStore) Cursors() rotation.CursorStore {
	return &InmemCursorStore{store: s}
}

func (s *InmemAssignmentStore) state(tenantID uuid.UUID) *tenantState {
	return s.tenants.LoadOrCreate(tenantID, func() *tenantState {
		return &tenantState{mu: newChanMutex(), scoped: map[rotation.Scope]int64{}}
	})
}

type InmemDefaultsRepository struct {
	store *InmemAssignmentStore
}

func (r *InmemDefaultsRepository) GetOrCreate(
	ctx context.Context,
	initial *assignmentdefault.AssignmentDefault,
) (*assignmentdefault.AssignmentDefault, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	st := r.store.state(tenantID)
	if err := st.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	if st.defaults == nil {
		created := *initial
		created.TenantID = tenantID
		created.RotationCursor = 0
		now := time.Now()
		created.CreatedAt, created.UpdatedAt = now, now
		st.defaults = &created
	}
	return copyDefaults(st.defaults), nil
}

func (r *InmemDefaultsRepository) Mutate(
	ctx context.Context,
	fn func(d *assignmentdefault.AssignmentDefault) error,
) (*assignmentdefault.AssignmentDefault, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	st := r.store.state(tenantID)
	if err := st.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	if st.defaults == nil {
		return nil, assignmentdefault.ErrNotFound
	}
	working := copyDefaults(st.defaults)
	if err := fn(working); err != nil {
		return nil, err
	}
	// The cursor is owned by the cursor store.
	working.RotationCursor = st.defaults.RotationCursor
	working.UpdatedAt = time.Now()
	st.defaults = working
	return copyDefaults(working), nil
}

func copyDefaults(d *assignmentdefault.AssignmentDefault) *assignmentdefault.AssignmentDefault {
	out := *d
	if d.DefaultUserID != nil {
		id := *d.DefaultUserID
		out.DefaultUserID = &id
	}
	return &out
}
