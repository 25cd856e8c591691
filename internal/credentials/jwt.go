package credentials

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// jwtPayload holds the claims this package cares about; unknown claims are
// ignored.
type jwtPayload struct {
	Exp float64 `json:"exp"`
}

// decodeJWTPayload decodes the payload segment of a JWT without verifying
// its signature (the signature is the broker's concern, not ours). Returns
// the zero value on any malformed input.
func decodeJWTPayload(token string) (jwtPayload, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return jwtPayload{}, false
	}

	seg := parts[1]
	if pad := len(seg) % 4; pad != 0 {
		seg += strings.Repeat("=", 4-pad)
	}

	raw, err := base64.URLEncoding.DecodeString(seg)
	if err != nil {
		return jwtPayload{}, false
	}

	var p jwtPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return jwtPayload{}, false
	}
	return p, true
}

// isTokenExpired reports whether token is expired, or will expire within
// bufferMinutes. A token with no decodable expiry is treated as expired.
func isTokenExpired(token string, bufferMinutes int, now time.Time) bool {
	payload, ok := decodeJWTPayload(token)
	if !ok || payload.Exp == 0 {
		return true
	}
	expiry := time.Unix(int64(payload.Exp), 0)
	return expiry.Sub(now) <= time.Duration(bufferMinutes)*time.Minute
}
