package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_LoadsExistingFilesOnly(t *testing.T) {
	tmp := t.TempDir()
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "AUTOASSIGN_TEST_ENV_LOAD=ok\n")

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmp))

	_ = os.Unsetenv("AUTOASSIGN_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("AUTOASSIGN_TEST_ENV_LOAD"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	n, err := LoadEnv([]string{filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestParse_AssignmentDefaults(t *testing.T) {
	c := &Configuration{}
	require.NoError(t, env.Parse(c))
	require.NoError(t, c.validate())

	require.Equal(t, 3, c.Assignment.AuditMaxAttempts)
	require.Equal(t, 50*time.Millisecond, c.Assignment.AuditRetryBackoff)
	require.Equal(t, CursorBackendPostgres, c.Assignment.ScopedCursorBackend)
	require.True(t, c.Assignment.DefaultAutoEnabled)
	require.True(t, c.Assignment.DefaultRoundRobin)
	require.False(t, c.Assignment.DefaultTeamScoping)
	require.False(t, c.RLSEnforced())
}

func TestValidate_RejectsUnknownModes(t *testing.T) {
	base := func() *Configuration {
		c := &Configuration{}
		require.NoError(t, env.Parse(c))
		return c
	}

	c := base()
	c.Assignment.ScopedCursorBackend = "memcached"
	require.ErrorContains(t, c.validate(), "ASSIGNMENT_SCOPED_CURSOR_BACKEND")

	c = base()
	c.Authz.Mode = "strict"
	require.ErrorContains(t, c.validate(), "AUTHZ_MODE")

	c = base()
	c.RLSEnforce = "enforce"
	require.ErrorContains(t, c.validate(), "non-superuser")

	c = base()
	c.Assignment.AuditMaxAttempts = 0
	require.ErrorContains(t, c.validate(), "ASSIGNMENT_AUDIT_MAX_ATTEMPTS")

	c = base()
	c.Assignment.ScopedCursorBackend = " Redis "
	require.NoError(t, c.validate())
	require.Equal(t, CursorBackendRedis, c.Assignment.ScopedCursorBackend)
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
