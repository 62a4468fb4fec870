package access

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/auth"
)

func TestBuildMatrixSkipsPublicRoutes(t *testing.T) {
	m := BuildMatrix(Routes())
	for _, row := range m.Rows {
		assert.NotEqual(t, PathLogin, row.Path)
		assert.Len(t, row.Allowed, len(auth.AllRoles()))
	}
}

func TestBuildMatrixFollowsPredicate(t *testing.T) {
	m := BuildMatrix([]Route{
		{Path: "/open"},
		{Path: "/hr-only", Roles: auth.Roles(auth.RoleHR)},
	})
	require.Len(t, m.Rows, 2)
	for _, ok := range m.Rows[0].Allowed {
		assert.True(t, ok)
	}
	for i, role := range m.Roles {
		assert.Equal(t, role == auth.RoleHR, m.Rows[1].Allowed[i], "role %s", role)
	}
}

func TestMatrixWriteText(t *testing.T) {
	var buf bytes.Buffer
	m := BuildMatrix([]Route{{Path: "/hr-only", Roles: auth.Roles(auth.RoleHR)}})
	require.NoError(t, m.WriteText(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "superadmin")
	assert.Contains(t, lines[1], "/hr-only")
	assert.Contains(t, lines[1], "x")
}

func TestMatrixWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BuildMatrix(Routes()).WritePDF(&buf, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}
