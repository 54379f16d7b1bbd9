// Package secrets generates opaque, high-entropy tokens.
package secrets

import (
	"crypto/rand"
	"encoding/base64"

	dErrors "keyline/pkg/domain-errors"
)

const tokenBytes = 32

// NewToken creates a cryptographically secure random token, base64url
// encoded without padding. Suitable for session tokens: unguessable, opaque,
// carries no embedded structure.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
