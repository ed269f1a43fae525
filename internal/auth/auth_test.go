// SPDX-License-Identifier: MIT

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/core"
)

var principal = core.Principal{ID: 42, Handle: "ada", Role: core.RoleAdmin}

func TestTokenRoundTrip(t *testing.T) {
	i := NewIssuer("s3cret", time.Hour)

	tok, err := i.Issue(principal)
	require.NoError(t, err)

	got, err := i.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, principal, got)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewIssuer("s3cret", time.Hour).Issue(principal)
	require.NoError(t, err)

	_, err = NewIssuer("other", time.Hour).Verify(tok)
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	i := NewIssuer("s3cret", time.Minute)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i.now = func() time.Time { return issuedAt }

	tok, err := i.Issue(principal)
	require.NoError(t, err)

	i.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = i.Verify(tok)
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewIssuer("s3cret", time.Hour).Verify("not.a.token")
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))

	_, err = HashPassword("")
	assert.Error(t, err)
}
