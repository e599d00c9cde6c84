package rotation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStep_WrapsAndStoresReducedCursor(t *testing.T) {
	require.Equal(t, Advance{Index: 0, Next: 1}, Step(0, 3))
	require.Equal(t, Advance{Index: 2, Next: 0}, Step(2, 3))
	require.Equal(t, Advance{Index: 1, Next: 2}, Step(7, 3), "cursor past a shrunk list wraps")
	require.Equal(t, Advance{}, Step(5, 0))
}

func TestFromNext_InvertsStep(t *testing.T) {
	for n := 1; n <= 5; n++ {
		for cursor := int64(0); cursor < 12; cursor++ {
			adv := Step(cursor, n)
			require.Equal(t, adv, FromNext(adv.Next, n))
		}
	}
}

func TestScope(t *testing.T) {
	teamID := uuid.New()
	require.True(t, TenantScope.IsTenant())
	require.True(t, TeamScope(teamID).Valid())
	require.True(t, RuleScope(42).Valid())
	require.Equal(t, Scope("rule:42"), RuleScope(42))
	require.False(t, Scope("team:not-a-uuid").Valid())
	require.False(t, Scope("user:1").Valid())
}
