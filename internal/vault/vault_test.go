// SPDX-License-Identifier: MIT

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/core"
)

func TestRoundTrip(t *testing.T) {
	v, err := New("test-key")
	require.NoError(t, err)

	for _, secret := range []string{"s3cret", "a", "sixteen-chars-ok", "päss wörd"} {
		ct, err := v.Encrypt(secret)
		require.NoError(t, err)
		require.NotEmpty(t, ct)
		assert.NotContains(t, string(ct), secret)

		got, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, secret, got)
	}
}

func TestNilMapsToNil(t *testing.T) {
	v, err := New("k")
	require.NoError(t, err)

	ct, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Nil(t, ct)

	plain, err := v.Decrypt(nil)
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestNonceVariesPerCall(t *testing.T) {
	v, err := New("k")
	require.NoError(t, err)

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptionFailed(t *testing.T) {
	v, err := New("key-one")
	require.NoError(t, err)
	other, err := New("key-two")
	require.NoError(t, err)

	ct, err := v.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ct)
	assert.True(t, core.IsKind(err, core.KindDecryptionFailed))

	_, err = v.Decrypt([]byte("too short"))
	assert.True(t, core.IsKind(err, core.KindDecryptionFailed))

	// tamper with the tag
	ct[len(ct)-1] ^= 0xff
	_, err = v.Decrypt(ct)
	assert.True(t, core.IsKind(err, core.KindDecryptionFailed))
}

func TestEmptyKeyRejected(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
