package audithandler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/audit"
	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
	"hrportal/internal/transport/http/shared"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type Reader interface {
	Count(ctx context.Context, filter audit.Filter) (int, error)
	List(ctx context.Context, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
	ListExport(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// Handler exposes the security audit trail to the roles that manage access
// settings.
type Handler struct {
	Reader  Reader
	Metrics middleware.Recorder
}

func NewHandler(reader Reader, rec middleware.Recorder) *Handler {
	return &Handler{Reader: reader, Metrics: rec}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Use(middleware.RequireRoles(h.Metrics, access.RolesFor("/settings/access")...))
		r.Get("/events", h.HandleListEvents)
		r.Get("/events/export", h.HandleExportEvents)
	})
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := filterFrom(w, r)
	if !ok {
		return
	}
	page := shared.ParsePagination(r, defaultLimit, maxLimit)

	total, err := h.Reader.Count(r.Context(), filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err, "requestId", requestID)
	}
	events, err := h.Reader.List(r.Context(), filter, r.URL.Query().Get("includeDetails") == "true", page.Limit, page.Offset)
	if err != nil {
		slog.Error("audit list failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "failed to list audit events", requestID)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events)
}

func (h *Handler) HandleExportEvents(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := filterFrom(w, r)
	if !ok {
		return
	}
	events, err := h.Reader.ListExport(r.Context(), filter)
	if err != nil {
		slog.Error("audit export failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, api.ErrCodeInternal, "failed to export audit events", requestID)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_user_id", "action", "request_id", "ip", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		row := []string{evt.ID, evt.ActorID, evt.Action, evt.RequestID, evt.IP, evt.CreatedAt.UTC().Format(time.RFC3339)}
		if err := writer.Write(row); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}

// filterFrom reads the listing filter. It writes a validation failure and
// returns false when from or to is not a date.
func filterFrom(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	query := r.URL.Query()
	filter := audit.Filter{Action: query.Get("action"), ActorUser: query.Get("actorUserId")}

	var issues []shared.ValidationIssue
	from, err := shared.ParseDate(query.Get("from"))
	if err != nil {
		issues = append(issues, shared.ValidationIssue{Field: "from", Reason: "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := shared.ParseDateEnd(query.Get("to"))
	if err != nil {
		issues = append(issues, shared.ValidationIssue{Field: "to", Reason: "must be RFC3339 or YYYY-MM-DD"})
	}
	if len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return audit.Filter{}, false
	}
	filter.From, filter.To = from, to
	return filter, true
}
