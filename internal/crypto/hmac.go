// Package crypto provides HMAC signing for admin requests and encrypted
// storage of the admin secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Admin request header names. Settlement-control endpoints (resolve market,
// pause asset, run reconciliation) require all three.
const (
	HeaderAdminKey       = "X-Settle-Key"
	HeaderAdminTimestamp = "X-Settle-Timestamp"
	HeaderAdminSignature = "X-Settle-Signature"
)

// maxClockSkew bounds how old (or how far in the future) a signed request
// timestamp may be before verification rejects it.
const maxClockSkew = 30 * time.Second

// AdminAuth holds the shared credentials for HMAC-authenticated admin
// requests. The signature is HMAC-SHA256(secret, timestamp+method+path+body)
// encoded as base64.
type AdminAuth struct {
	Key    string // public key identifier
	Secret string // shared secret
}

// Headers returns the HTTP headers for an admin request signed at the
// current time.
func (a *AdminAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (a *AdminAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(a.Secret), message)

	return map[string]string{
		HeaderAdminKey:       a.Key,
		HeaderAdminTimestamp: ts,
		HeaderAdminSignature: sig,
	}
}

// Verify checks an incoming request's key, timestamp, and signature. The
// timestamp must be within maxClockSkew of now; the signature comparison is
// constant-time.
func (a *AdminAuth) Verify(key, tsStr, sig, method, path, body string, now time.Time) error {
	if subtleCompare(key, a.Key) != 1 {
		return fmt.Errorf("crypto: unknown admin key")
	}

	unixTS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: invalid timestamp: %w", err)
	}
	skew := now.Sub(time.Unix(unixTS, 0))
	if skew < -maxClockSkew || skew > maxClockSkew {
		return fmt.Errorf("crypto: timestamp outside allowed window")
	}

	message := tsStr + method + path + body
	expected := hmacSHA256Base64([]byte(a.Secret), message)
	if subtleCompare(sig, expected) != 1 {
		return fmt.Errorf("crypto: signature mismatch")
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (a *AdminAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("AdminAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// subtleCompare returns 1 when a and b are equal, in constant time.
func subtleCompare(a, b string) int {
	if hmac.Equal([]byte(a), []byte(b)) {
		return 1
	}
	return 0
}
