package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/riozmarkets/settlement/internal/crypto"
)

// maxAdminBody bounds how much request body the signature check will buffer.
const maxAdminBody = 1 << 20

// AdminAuth returns middleware that verifies the HMAC signature headers on
// settlement-control requests. If auth is nil, admin endpoints are disabled
// entirely and every request is rejected.
func AdminAuth(auth *crypto.AdminAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeUnauthorized(w, "admin access not configured")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBody))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			// The handler still needs to read the body.
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = auth.Verify(
				r.Header.Get(crypto.HeaderAdminKey),
				r.Header.Get(crypto.HeaderAdminTimestamp),
				r.Header.Get(crypto.HeaderAdminSignature),
				r.Method,
				r.URL.Path,
				string(body),
				time.Now(),
			)
			if err != nil {
				writeUnauthorized(w, "invalid admin signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
