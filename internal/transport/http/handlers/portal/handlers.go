package portalhandler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
)

type Directory interface {
	ListUsers(ctx context.Context) ([]auth.Identity, error)
	ListDepartments(ctx context.Context) ([]auth.DepartmentRef, error)
}

// Handler serves the data endpoints behind portal views. Each endpoint is
// gated with the allowed-role set of the view it backs.
type Handler struct {
	Directory Directory
	Metrics   middleware.Recorder
	Now       func() time.Time
}

func NewHandler(directory Directory, rec middleware.Recorder) *Handler {
	return &Handler{Directory: directory, Metrics: rec, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireRoles(h.Metrics, access.RolesFor("/users")...)).Get("/users", h.HandleUsers)
	r.With(middleware.RequireRoles(h.Metrics, access.RolesFor("/departments")...)).Get("/departments", h.HandleDepartments)
	r.With(middleware.RequireRoles(h.Metrics)).Get("/navigation", h.HandleNavigation)
	r.With(middleware.RequireRoles(h.Metrics, access.RolesFor("/settings/access")...)).Get("/access/matrix.pdf", h.HandleMatrixPDF)
}

func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Directory.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, "list users failed", err)
		return
	}
	if users == nil {
		users = []auth.Identity{}
	}
	api.Success(w, users)
}

func (h *Handler) HandleDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Directory.ListDepartments(r.Context())
	if err != nil {
		h.fail(w, r, "list departments failed", err)
		return
	}
	if departments == nil {
		departments = []auth.DepartmentRef{}
	}
	api.Success(w, departments)
}

// HandleNavigation returns the menu entries the caller's role may see, in
// display order.
func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	role := user.Role
	entries := slices.Collect(access.VisibleMenu(&role, access.Menu()))
	if entries == nil {
		entries = []access.MenuEntry{}
	}
	api.Success(w, entries)
}

func (h *Handler) HandleMatrixPDF(w http.ResponseWriter, r *http.Request) {
	matrix := access.BuildMatrix(access.Routes())
	var buf bytes.Buffer
	if err := matrix.WritePDF(&buf, h.Now()); err != nil {
		h.fail(w, r, "render access matrix failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="access-matrix.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	requestID := middleware.GetRequestID(r.Context())
	slog.Error(msg, "err", err, "requestId", requestID)
	api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "request failed", requestID)
}
