package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleAdmin, PermissionCreateProject))
	assert.True(t, HasPermission(RoleAdmin, PermissionReplayOutbox))
	assert.False(t, HasPermission(RoleUser, PermissionCreateProject))
	assert.False(t, HasPermission(RoleUser, PermissionReplayOutbox))
	assert.False(t, HasPermission("ghost", PermissionCreateProject))
}

func TestCheckPermission(t *testing.T) {
	require.NoError(t, CheckPermission(RoleAdmin, PermissionReplayOutbox))

	err := CheckPermission(RoleUser, PermissionReplayOutbox)
	require.Error(t, err)

	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, RoleUser, denied.Role)
	assert.Equal(t, PermissionReplayOutbox, denied.Permission)
}
