package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"hrportal/internal/transport/http/api"
)

// RateLimit caps requests per client IP.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// CredentialRateLimit is the stricter limiter for login and password reset:
// it counts per IP and per submitted email so one address cannot be sprayed
// from many clients.
func CredentialRateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	byIP := RateLimit(limit, window)
	byEmail := httprate.Limit(limit, window,
		httprate.WithKeyFuncs(emailOrIPKey),
		httprate.WithLimitHandler(limitExceeded),
	)
	return func(next http.Handler) http.Handler {
		return byIP(byEmail(next))
	}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	api.Fail(w, http.StatusTooManyRequests, api.ErrCodeRateLimited, "too many requests", GetRequestID(r.Context()))
}

// emailOrIPKey peeks at the JSON body for an email field and restores it for
// the handler.
func emailOrIPKey(r *http.Request) (string, error) {
	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(data))
			var payload struct {
				Email string `json:"email"`
			}
			if json.Unmarshal(data, &payload) == nil {
				if email := strings.ToLower(strings.TrimSpace(payload.Email)); email != "" {
					return "email:" + email, nil
				}
			}
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
