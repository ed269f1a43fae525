// SPDX-License-Identifier: MIT

package alloc

import (
	"crypto/rand"
	"math/big"

	"github.com/orionhq/orion/internal/core"
)

const (
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secretLength   = 16
)

func generateSecret() (string, error) {
	buf := make([]byte, secretLength)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", core.Wrap(core.KindInternal, "secret entropy", err)
		}
		buf[i] = secretAlphabet[n.Int64()]
	}
	return string(buf), nil
}
