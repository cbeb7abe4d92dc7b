package session

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	return signedToken(t, jwt.MapClaims{"sub": "user@example.com", "exp": exp.Unix()})
}

func TestDecodeExpiry(t *testing.T) {
	exp := time.Unix(1893456000, 0)

	got, ok := DecodeExpiry(tokenExpiringAt(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))
}

func TestDecodeExpiryIgnoresHeaderAndSignature(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	payload := []byte(fmt.Sprintf(`{"sub":"user@example.com","exp":%d}`, exp.Unix()))
	raw := base64.RawURLEncoding.EncodeToString(payload)
	padded := base64.URLEncoding.EncodeToString(payload)
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name  string
		token string
	}{
		{name: "no alg", token: enc(`{"typ":"JWT"}`) + "." + raw + ".sig"},
		{name: "unregistered alg", token: enc(`{"alg":"ES256K","typ":"JWT"}`) + "." + raw + ".sig"},
		{name: "garbage header", token: "%%%." + raw + ".sig"},
		{name: "empty signature", token: enc(`{"alg":"none"}`) + "." + raw + "."},
		{name: "padded payload", token: enc(`{"alg":"HS256"}`) + "." + padded + ".sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeExpiry(tt.token)
			require.True(t, ok)
			assert.True(t, exp.Equal(got))

			s := NewStore(nil)
			s.SetSession(tt.token, Identity{Email: "user@example.com"})
			assert.False(t, s.IsExpired())
		})
	}
}

func TestDecodeExpiryMalformed(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "single segment", token: "abc"},
		{name: "two segments", token: header + ".e30"},
		{name: "four segments", token: header + ".e30.sig.extra"},
		{name: "invalid base64", token: header + ".%%%.sig"},
		{name: "payload not json", token: header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig"},
		{name: "no exp claim", token: signedToken(t, jwt.MapClaims{"sub": "x"})},
		{name: "exp not numeric", token: signedToken(t, jwt.MapClaims{"exp": "tomorrow"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, ok := DecodeExpiry(tt.token)
				assert.False(t, ok)
			})

			s := NewStore(nil)
			s.SetSession(tt.token, Identity{Email: "user@example.com"})
			assert.True(t, s.IsExpired())
			assert.False(t, s.NeedsRefresh())
		})
	}
}
