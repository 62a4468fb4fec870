package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"hrportal/internal/domain/auth"
	"hrportal/internal/requestctx"
	"hrportal/internal/transport/http/api"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// Recorder receives auth events; *metrics.Collector satisfies it.
type Recorder interface {
	RecordRejectedToken()
	RecordRoleDenied(role string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRejectedToken()    {}
func (nopRecorder) RecordRoleDenied(string) {}

// Auth resolves the bearer token and rejects the request with 401 when it is
// missing, malformed, expired or belongs to a revoked session. Any other
// authentication failure is a 500.
func Auth(authn Authenticator, rec Recorder) func(http.Handler) http.Handler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				rec.RecordRejectedToken()
				api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "authentication required", GetRequestID(r.Context()))
				return
			}

			claims, err := authn.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSessionRevoked):
				rec.RecordRejectedToken()
				slog.Debug("bearer token rejected", "path", r.URL.Path, "err", err)
				api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "session is no longer valid", GetRequestID(r.Context()))
				return
			default:
				// a 401 here would sign the client out; lookup failures are ours
				slog.Error("session lookup failed", "path", r.URL.Path, "err", err, "requestId", GetRequestID(r.Context()))
				api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "failed to verify session", GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithClaims(r.Context(), claims)))
		})
	}
}

func GetUser(ctx context.Context) (*auth.Claims, bool) {
	return requestctx.GetClaims(ctx)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
