package middleware

import (
	"net/http"

	"hrportal/internal/domain/auth"
	"hrportal/internal/transport/http/api"
)

// RequireRoles admits callers whose role is in allowed. An empty list admits
// any authenticated caller. Missing identity is 401, a disallowed role 403.
func RequireRoles(rec Recorder, allowed ...auth.Role) func(http.Handler) http.Handler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "authentication required", GetRequestID(r.Context()))
				return
			}
			role := claims.Role
			if !auth.IsAllowed(&role, allowed) {
				rec.RecordRoleDenied(role.String())
				api.Fail(w, http.StatusForbidden, api.ErrCodeForbidden, "insufficient role", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
