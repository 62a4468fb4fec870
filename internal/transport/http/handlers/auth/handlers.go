package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/metrics"
	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
	"hrportal/internal/transport/http/shared"
)

type Service interface {
	Login(ctx context.Context, email, password, mfaCode string) (auth.LoginResult, error)
	Logout(ctx context.Context, claims auth.Claims) error
	Me(ctx context.Context, userID string) (auth.Identity, error)
	UpdateProfile(ctx context.Context, userID, name, email string) (auth.Identity, error)
	RequestPasswordReset(ctx context.Context, email string)
	ResetPassword(ctx context.Context, token, newPassword string) error
	SetupMFA(ctx context.Context, userID string) (auth.MFASetup, error)
	EnableMFA(ctx context.Context, userID, code string) error
}

type Recorder interface {
	RecordLogin(outcome string)
	RecordSessionRevoked()
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string)    {}
func (nopRecorder) RecordSessionRevoked() {}

// Auditor writes security events; *audit.Service satisfies it.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Entry) error { return nil }

type Handler struct {
	Service Service
	Metrics Recorder
	Audit   Auditor
	// Idempotency makes profile updates and password resets safe to retry.
	// Nil disables it.
	Idempotency middleware.IdempotencyStore
}

func NewHandler(service Service, rec Recorder) *Handler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Handler{Service: service, Metrics: rec, Audit: nopAuditor{}}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode,omitempty" validate:"omitempty,len=6,numeric"`
}

type profileRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// RegisterPublicRoutes mounts the endpoints reachable without a token. The
// credential limiter wraps login and both reset steps.
func (h *Handler) RegisterPublicRoutes(r chi.Router, credentialLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if credentialLimit != nil {
			r.Use(credentialLimit)
		}
		r.Post("/auth/login", h.HandleLogin)
		r.Post("/auth/request-reset", h.HandleRequestReset)
		r.With(middleware.Idempotent(h.Idempotency, "auth.reset")).Post("/auth/reset", h.HandleResetPassword)
	})
}

// RegisterRoutes mounts the endpoints that need an authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/auth/me", h.HandleMe)
	r.With(middleware.Idempotent(h.Idempotency, "auth.profile")).Put("/auth/me", h.HandleUpdateProfile)
	r.Post("/auth/mfa/setup", h.HandleMFASetup)
	r.Post("/auth/mfa/enable", h.HandleMFAEnable)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		h.Metrics.RecordLogin(metrics.LoginInvalidInput)
		return
	}

	result, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.Metrics.RecordLogin(metrics.LoginFailed)
		h.record(r, "", audit.ActionLoginFailed, loginFailure{Email: payload.Email, Reason: api.ErrCodeInvalidCredentials})
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeInvalidCredentials, "invalid credentials", requestID)
		return
	case errors.Is(err, auth.ErrMFARequired):
		h.Metrics.RecordLogin(metrics.LoginMFARequired)
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeMFARequired, "mfa code required", requestID)
		return
	case errors.Is(err, auth.ErrMFAInvalid):
		h.Metrics.RecordLogin(metrics.LoginFailed)
		h.record(r, "", audit.ActionLoginFailed, loginFailure{Email: payload.Email, Reason: api.ErrCodeMFAInvalid})
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeMFAInvalid, "invalid mfa code", requestID)
		return
	default:
		slog.Error("login failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "failed to start session", requestID)
		return
	}

	h.Metrics.RecordLogin(metrics.LoginSuccess)
	h.record(r, result.User.ID, audit.ActionLoginSucceeded, nil)
	api.Success(w, result)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok {
		if err := h.Service.Logout(r.Context(), *user); err != nil {
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		} else {
			h.Metrics.RecordSessionRevoked()
			h.record(r, user.UserID, audit.ActionLogout, nil)
		}
	}
	api.NoContent(w)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	identity, err := h.Service.Me(r.Context(), user.UserID)
	if err != nil {
		h.failLookup(w, r, err)
		return
	}
	api.Success(w, identity)
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var payload profileRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	identity, err := h.Service.UpdateProfile(r.Context(), user.UserID, payload.Name, payload.Email)
	if err != nil {
		h.failLookup(w, r, err)
		return
	}
	h.record(r, user.UserID, audit.ActionProfileUpdated, nil)
	api.Success(w, identity)
}

func (h *Handler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var payload resetRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	h.Service.RequestPasswordReset(r.Context(), payload.Email)
	h.record(r, "", audit.ActionResetRequested, map[string]string{"email": payload.Email})
	api.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reset_requested"})
}

func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload resetPasswordRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	err := h.Service.ResetPassword(r.Context(), payload.Token, payload.NewPassword)
	switch {
	case err == nil:
		h.record(r, "", audit.ActionPasswordReset, nil)
		api.NoContent(w)
	case errors.Is(err, auth.ErrWeakPassword):
		api.Fail(w, http.StatusBadRequest, api.ErrCodeWeakPassword, "password must be at least 10 characters and mix upper case, lower case and digits", requestID)
	case errors.Is(err, auth.ErrResetTokenInvalid):
		api.Fail(w, http.StatusBadRequest, api.ErrCodeResetInvalid, "invalid or expired token", requestID)
	default:
		slog.Error("password reset failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "failed to update password", requestID)
	}
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	setup, err := h.Service.SetupMFA(r.Context(), user.UserID)
	if err != nil {
		slog.Error("mfa setup failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "failed to generate mfa secret", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, setup)
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.ErrCodeUnauthorized, "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var payload mfaCodeRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	if err := h.Service.EnableMFA(r.Context(), user.UserID, payload.Code); err != nil {
		if errors.Is(err, auth.ErrMFAInvalid) {
			api.Fail(w, http.StatusBadRequest, api.ErrCodeMFAInvalid, "invalid mfa code", middleware.GetRequestID(r.Context()))
			return
		}
		h.failLookup(w, r, err)
		return
	}
	h.record(r, user.UserID, audit.ActionMFAEnabled, nil)
	api.Success(w, map[string]string{"status": "enabled"})
}

type loginFailure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// record writes an audit event. A failed write is logged and never fails the
// request.
func (h *Handler) record(r *http.Request, actorID, action string, details any) {
	entry := audit.Entry{
		ActorID:   actorID,
		Action:    action,
		RequestID: middleware.GetRequestID(r.Context()),
		IP:        clientIP(r.RemoteAddr),
		Details:   details,
	}
	if err := h.Audit.Record(r.Context(), entry); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err, "requestId", entry.RequestID)
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (h *Handler) failLookup(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	if errors.Is(err, auth.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, api.ErrCodeNotFound, "user not found", requestID)
		return
	}
	if errors.Is(err, auth.ErrEmailTaken) {
		api.Fail(w, http.StatusConflict, api.ErrCodeConflict, "email already in use", requestID)
		return
	}
	slog.Error("user lookup failed", "err", err, "requestId", requestID)
	api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "request failed", requestID)
}
