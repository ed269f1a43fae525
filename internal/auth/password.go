// SPDX-License-Identifier: MIT

package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/orionhq/orion/internal/core"
)

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", core.Errf(core.KindInternal, "empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", core.Wrap(core.KindInternal, "hash password", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
