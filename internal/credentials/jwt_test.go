package credentials

import (
	"encoding/base64"
	"testing"
	"time"
)

func makeJWT(t *testing.T, exp int64) string {
	t.Helper()
	header := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(`{"exp":` + itoa(exp) + `}`))
	return header + "." + payload + ".sig"
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf []byte
	for i > 0 {
		buf = append([]byte{byte('0' + i%10)}, buf...)
		i /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func TestIsTokenExpiredMalformed(t *testing.T) {
	if !isTokenExpired("not-a-jwt", 5, time.Now()) {
		t.Fatal("expected malformed token to be treated as expired")
	}
}

func TestIsTokenExpiredWithinBuffer(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	token := makeJWT(t, now.Unix()+60) // expires in 1 minute
	if !isTokenExpired(token, 5, now) {
		t.Fatal("expected token expiring within the 5-minute buffer to be expired")
	}
}

func TestIsTokenExpiredFarFuture(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	token := makeJWT(t, now.Unix()+3600)
	if isTokenExpired(token, 5, now) {
		t.Fatal("expected token expiring in an hour to not be expired")
	}
}
