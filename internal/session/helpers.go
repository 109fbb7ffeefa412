package session

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"localpub/internal/constants"
)

// newToken returns an opaque session token: a random UUID plus extra
// random bytes, hex encoded.
func newToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	extra := make([]byte, constants.SessionTokenBytes)
	if _, err := rand.Read(extra); err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", "") + hex.EncodeToString(extra), nil
}
