package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestVerifyRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "body")
		secret := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "secret")

		if !Verify(body, Sign(body, secret), secret) {
			t.Fatalf("signature over body did not verify")
		}
	})
}

func TestVerifyRejectsOtherSecretProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "body")
		secret := rapid.StringN(1, 32, -1).Draw(t, "secret")
		other := rapid.StringN(1, 32, -1).Filter(func(s string) bool { return s != secret }).Draw(t, "other")

		if Verify(body, Sign(body, []byte(secret)), []byte(other)) {
			t.Fatalf("signature verified under a different secret")
		}
	})
}

func TestVerifyRejectsTamperedBodyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, "body")
		idx := rapid.IntRange(0, len(body)-1).Draw(t, "idx")
		secret := []byte("s3cret")

		sig := Sign(body, secret)
		tampered := append([]byte(nil), body...)
		tampered[idx] ^= 0xff

		if Verify(tampered, sig, secret) {
			t.Fatalf("tampered body verified")
		}
	})
}

func TestVerifyFailureModes(t *testing.T) {
	body := []byte(`{"username":"u1"}`)
	secret := []byte("topsecret")
	good := Sign(body, secret)

	tests := []struct {
		name   string
		body   []byte
		sig    string
		secret []byte
	}{
		{name: "empty signature", body: body, sig: "", secret: secret},
		{name: "unset secret", body: body, sig: good, secret: nil},
		{name: "empty body", body: nil, sig: good, secret: secret},
		{name: "malformed hex", body: body, sig: "zz" + good[2:], secret: secret},
		{name: "truncated", body: body, sig: good[:32], secret: secret},
		{name: "too long", body: body, sig: good + "00", secret: secret},
		{name: "whitespace only", body: body, sig: "   ", secret: secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Verify(tt.body, tt.sig, tt.secret))
		})
	}
}

func TestVerifyAcceptsUppercaseHex(t *testing.T) {
	body := []byte(`{"a":1}`)
	secret := []byte("k")
	assert.True(t, Verify(body, strings.ToUpper(Sign(body, secret)), secret))
}

func TestVerifierBindsSecret(t *testing.T) {
	v := NewVerifier("abc")
	body := []byte("payload")

	assert.True(t, v.Configured())
	assert.True(t, v.Verify(body, v.Sign(body)))
	assert.False(t, NewVerifier("").Verify(body, v.Sign(body)))
	assert.False(t, NewVerifier("").Configured())

	var nilVerifier *Verifier
	assert.False(t, nilVerifier.Verify(body, "00"))
}
