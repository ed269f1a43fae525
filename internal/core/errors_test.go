// SPDX-License-Identifier: MIT

package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("lease", 7)))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("handler: %w", Errf(KindPermissionDenied, "not yours"))
	assert.Equal(t, KindPermissionDenied, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindPermissionDenied))
	assert.False(t, IsKind(wrapped, KindNotFound))
}

func TestInsufficientCapacityCarriesFound(t *testing.T) {
	err := InsufficientCapacity(3, 1)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 1, e.Found)
	assert.Contains(t, e.Error(), "found 1")
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindInternal, "catalog", cause)
	assert.ErrorIs(t, err, cause)
}

func TestPrincipalCanAccess(t *testing.T) {
	lease := Lease{ID: 1, TenantID: 42}

	owner := Principal{ID: 42, Handle: "alice", Role: RoleUser}
	stranger := Principal{ID: 7, Handle: "mallory", Role: RoleUser}
	admin := Principal{ID: 1, Handle: "root", Role: RoleAdmin}

	assert.True(t, owner.CanAccess(lease))
	assert.False(t, stranger.CanAccess(lease))
	assert.True(t, admin.CanAccess(lease))
}
