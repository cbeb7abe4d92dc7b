package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var segmentDecoder = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeExpiry returns the exp claim of a JWT access token without verifying
// it. Only the payload segment is read; the header and signature are the
// server's business. Malformed tokens (wrong segment count, bad base64url,
// non-JSON payload, missing exp) report false instead of an error.
func DecodeExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[1] == "" {
		return time.Time{}, false
	}
	payload, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
