package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Signer binds session tokens to the per-run session secret so a cookie
// cannot be forged from a guessed token.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) *Signer {
	return &Signer{key: append([]byte(nil), key...)}
}

func (s *Signer) mac(token string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns "token:signature".
func (s *Signer) Sign(token string) string {
	return token + ":" + s.mac(token)
}

// Verify returns the token from a signed cookie value.
func (s *Signer) Verify(cookieValue string) (string, bool) {
	idx := strings.LastIndexByte(cookieValue, ':')
	if idx <= 0 || idx >= len(cookieValue)-1 {
		return "", false
	}
	token, providedSig := cookieValue[:idx], cookieValue[idx+1:]

	if subtle.ConstantTimeCompare([]byte(providedSig), []byte(s.mac(token))) != 1 {
		return "", false
	}
	return token, true
}
