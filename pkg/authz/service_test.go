package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, flags FlagProvider) *Service {
	t.Helper()
	svc, err := NewService(Config{
		ModelPath:  filepath.Join("testdata", "model.conf"),
		PolicyPath: filepath.Join("testdata", "policy.csv"),
		Flags:      flags,
	})
	require.NoError(t, err)
	return svc
}

func request(userID uint, object, action string) Request {
	return NewRequest(SubjectForUser(uuid.Nil, userID), DomainFromTenant(uuid.Nil), object, action)
}

func TestServiceAuthorize_Enforce(t *testing.T) {
	svc := newTestService(t, staticFlags(ModeEnforce))
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, request(1, ObjectAssignmentDefaults, ActionReset)))
	require.NoError(t, svc.Authorize(ctx, request(2, ObjectAssignmentAudits, ActionView)))

	err := svc.Authorize(ctx, request(2, ObjectAssignmentAudits, ActionExport))
	require.ErrorIs(t, err, ErrForbidden)
	require.Contains(t, err.Error(), "export on assignment.audits")
}

func TestServiceAuthorize_ShadowAndDisabledLetDenialsThrough(t *testing.T) {
	for _, mode := range []Mode{ModeShadow, ModeDisabled} {
		svc := newTestService(t, staticFlags(mode))
		require.NoError(t, svc.Authorize(context.Background(), request(99, ObjectAssignmentRules, ActionImport)))
	}
}

func TestServiceCheckIgnoresMode(t *testing.T) {
	svc := newTestService(t, staticFlags(ModeShadow))
	ok, err := svc.Check(request(99, ObjectAssignmentRules, ActionImport))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileFlagProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authz_flags.yaml")
	p := NewFileFlagProvider(path, ModeEnforce)
	require.Equal(t, ModeEnforce, p.ModeFor(ObjectAssignmentRules))

	write := func(body string, at time.Time) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		require.NoError(t, os.Chtimes(path, at, at))
	}
	base := time.Now().Add(-time.Hour)

	write("mode: shadow\nobjects:\n  Assignment.Rules: enforce\n", base)
	require.Equal(t, ModeShadow, p.ModeFor(ObjectAssignmentAudits))
	require.Equal(t, ModeEnforce, p.ModeFor(ObjectAssignmentRules))

	write("mode: disabled\n", base.Add(time.Minute))
	require.Equal(t, ModeDisabled, p.ModeFor(ObjectAssignmentRules))

	// Removing the file keeps the last flags.
	require.NoError(t, os.Remove(path))
	require.Equal(t, ModeDisabled, p.ModeFor(ObjectAssignmentAudits))
}

func TestServiceUsesPerObjectFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authz_flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: shadow\nobjects:\n  assignment.audits: enforce\n"), 0o644))
	svc := newTestService(t, NewFileFlagProvider(path, ModeShadow))

	require.NoError(t, svc.Authorize(context.Background(), request(2, ObjectAssignmentRules, ActionImport)))
	require.ErrorIs(t, svc.Authorize(context.Background(), request(2, ObjectAssignmentAudits, ActionExport)), ErrForbidden)
}

func TestAllowAll(t *testing.T) {
	require.NoError(t, AllowAll().Authorize(context.Background(), Request{}))
}
