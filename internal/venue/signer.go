package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer produces the HMAC-SHA256 signature the venue expects on every
// authenticated request. The signature is computed over the exact JSON
// body bytes, so callers must sign the same serialization they send.
type Signer struct {
	apiKey string
	secret []byte
}

func NewSigner(apiKey, secret string) *Signer {
	return &Signer{apiKey: apiKey, secret: []byte(secret)}
}

func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign returns the hex-encoded HMAC-SHA256 of the request body.
func (s *Signer) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
