// Package signature verifies request bodies signed with the gateway's shared HMAC secret.
//
// Signatures are hex-encoded HMAC-SHA-256 digests computed over the exact bytes
// the caller sent. Verification must run on the raw transport body before any
// JSON decoding: re-encoding a document does not preserve key order or
// whitespace, so a signature over the re-encoded form would not match.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header is the request header carrying the hex signature.
const Header = "x-qn-signature"

// Sign returns the hex HMAC-SHA-256 of body under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHex is the HMAC-SHA-256 of rawBody under secret.
//
// It never panics and never returns an error: an unset secret, an empty body,
// a missing or malformed signature all yield false. The digest comparison is
// constant time.
func Verify(rawBody []byte, signatureHex string, secret []byte) bool {
	if len(secret) == 0 || len(rawBody) == 0 {
		return false
	}
	signatureHex = strings.TrimSpace(signatureHex)
	if signatureHex == "" {
		return false
	}
	got, err := hex.DecodeString(signatureHex)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(rawBody)
	return hmac.Equal(got, mac.Sum(nil))
}

// Verifier binds a secret so call sites do not pass it around.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret. An empty secret rejects every request.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured reports whether a secret is set.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks rawBody against signatureHex.
func (v *Verifier) Verify(rawBody []byte, signatureHex string) bool {
	if v == nil {
		return false
	}
	return Verify(rawBody, signatureHex, v.secret)
}

// Sign signs body with the bound secret.
func (v *Verifier) Sign(body []byte) string {
	return Sign(body, v.secret)
}
