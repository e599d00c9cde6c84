package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseTenantID(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenantID)

	_, err = UseTenantID(WithTenantID(context.Background(), uuid.Nil))
	require.ErrorIs(t, err, ErrNoTenantID)

	id := uuid.New()
	got, err := UseTenantID(WithTenantID(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestUseUserID(t *testing.T) {
	_, err := UseUserID(context.Background())
	require.ErrorIs(t, err, ErrNoUser)

	got, err := UseUserID(WithUserID(context.Background(), 7))
	require.NoError(t, err)
	require.Equal(t, uint(7), got)
}

func TestUseTx_WithoutPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

type stubTx struct{ pgx.Tx }

func TestHasTx(t *testing.T) {
	require.False(t, HasTx(context.Background()))
	require.True(t, HasTx(WithTx(context.Background(), stubTx{})))
}

func TestUseLogger_FallsBackToStandardLogger(t *testing.T) {
	require.NotNil(t, UseLogger(context.Background()))

	entry := logrus.New().WithField("component", "test")
	require.Same(t, entry, UseLogger(WithLogger(context.Background(), entry)))
}

func TestApplyTenantRLS_DisabledIsNoop(t *testing.T) {
	SetRLSEnforced(false)
	require.NoError(t, ApplyTenantRLS(context.Background(), nil))
}

func TestInTenantTx_RequiresPool(t *testing.T) {
	called := false
	err := InTenantTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, called)
}

func TestSetRLSEnforced(t *testing.T) {
	t.Cleanup(func() { SetRLSEnforced(false) })
	SetRLSEnforced(true)
	require.True(t, RLSEnforced())
	require.Error(t, ApplyTenantRLS(context.Background(), nil))
}
