package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSubjectForUser(t *testing.T) {
	require.Equal(t, "tenant:global:user:42", SubjectForUser(uuid.Nil, 42))

	tenantID := uuid.MustParse("274b29c7-86cb-4da1-85a3-3a221fe62a72")
	require.Equal(t, "tenant:274b29c7-86cb-4da1-85a3-3a221fe62a72:user:system", SubjectForUser(tenantID, 0))
}

func TestNewRequestNormalizes(t *testing.T) {
	req := NewRequest("s", "d", " Assignment.AUDITS ", " Export ")
	require.Equal(t, ObjectAssignmentAudits, req.Object)
	require.Equal(t, ActionExport, req.Action)
	require.Equal(t, "*", NewRequest("s", "d", "o", "").Action)
}

func TestParseMode(t *testing.T) {
	require.Equal(t, ModeEnforce, ParseMode(" ENFORCE"))
	require.Equal(t, ModeDisabled, ParseMode("disabled"))
	require.Equal(t, ModeShadow, ParseMode("bogus"))
}
