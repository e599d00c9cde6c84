package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
)

type InmemCursorStore struct {
	store *InmemAssignmentStore
}

func (s *InmemCursorStore) Advance(ctx context.Context, tenantID uuid.UUID, scope rotation.Scope, n int) (rotation.Advance, error) {
	if n <= 0 {
		return rotation.Advance{}, nil
	}
	st := s.store.state(tenantID)
	if err := st.mu.Lock(ctx); err != nil {
		return rotation.Advance{}, err
	}
	defer st.mu.Unlock()

	if st.defaults == nil {
		return rotation.Advance{}, assignmentdefault.ErrNotFound
	}
	if scope.IsTenant() {
		adv := rotation.Step(st.defaults.RotationCursor, n)
		st.defaults.RotationCursor = adv.Next
		return adv, nil
	}
	adv := rotation.Step(st.scoped[scope], n)
	st.scoped[scope] = adv.Next
	return adv, nil
}

func (s *InmemCursorStore) Reset(ctx context.Context, tenantID uuid.UUID) error {
	st := s.store.state(tenantID)
	if err := st.mu.Lock(ctx); err != nil {
		return err
	}
	defer st.mu.Unlock()

	if st.defaults == nil {
		return assignmentdefault.ErrNotFound
	}
	st.defaults.RotationCursor = 0
	for scope := range st.scoped {
		st.scoped[scope] = 0
	}
	return nil
}

// chanMutex is a mutex whose Lock gives up when ctx is done.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	return make(chanMutex, 1)
}

func (m chanMutex) Lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) Unlock() {
	<-m
}
