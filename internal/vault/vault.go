// SPDX-License-Identifier: MIT

// Package vault provides symmetric encryption for per-lease secrets at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/orionhq/orion/internal/core"
)

// Vault encrypts and decrypts lease secrets with a process-wide key.
type Vault struct {
	aead cipher.AEAD
}

// New derives an AES-256-GCM vault from the configured key material. The key
// is hashed so operators may supply a passphrase of any length.
func New(key string) (*Vault, error) {
	if key == "" {
		return nil, core.Errf(core.KindInternal, "vault key is empty")
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, core.Wrap(core.KindInternal, "vault cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, core.Wrap(core.KindInternal, "vault gcm", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a random nonce. A nil/empty plaintext maps to
// nil so absent secrets stay absent in the catalog.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, core.Wrap(core.KindInternal, "vault nonce", err)
	}
	return v.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. Nil input maps to the empty
// string; unrecoverable input yields a DecryptionFailed error which callers
// treat as a missing secret.
func (v *Vault) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}
	ns := v.aead.NonceSize()
	if len(ciphertext) < ns {
		return "", core.Errf(core.KindDecryptionFailed, "ciphertext shorter than nonce")
	}
	plain, err := v.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return "", core.Wrap(core.KindDecryptionFailed, "open", err)
	}
	return string(plain), nil
}
