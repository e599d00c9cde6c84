package itf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeDBName(t *testing.T) {
	require.Equal(t, "testassign_concurrent_round_robin", sanitizeDBName("TestAssign/Concurrent round-robin"))
	require.Equal(t, "test_db", sanitizeDBName("///"))
	require.Equal(t, "t_1abc", sanitizeDBName("1abc"))

	long := sanitizeDBName(strings.Repeat("VeryLongTestName/", 10))
	require.LessOrEqual(t, len(long), maxDBNameLength)
	require.NotEqual(t, long, sanitizeDBName(strings.Repeat("VeryLongTestName/", 11)))
}
