package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies a visitor by address and user agent. Stable for a
// given pair, opaque otherwise.
func Fingerprint(clientIP, userAgent string) string {
	sum := blake2b.Sum256([]byte(clientIP + "\x00" + userAgent))
	return hex.EncodeToString(sum[:])
}
