package audithandler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
	"hrportal/internal/requestctx"
)

type fakeReader struct {
	events  []audit.Event
	listErr error
	filter  audit.Filter
	limit   int
	offset  int
}

func (f *fakeReader) Count(_ context.Context, filter audit.Filter) (int, error) {
	return len(f.events), nil
}

func (f *fakeReader) List(_ context.Context, filter audit.Filter, _ bool, limit, offset int) ([]audit.Event, error) {
	f.filter, f.limit, f.offset = filter, limit, offset
	return f.events, f.listErr
}

func (f *fakeReader) ListExport(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	f.filter = filter
	return f.events, f.listErr
}

func serve(reader Reader, role auth.Role, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{UserID: "u1", Role: role}
			next.ServeHTTP(w, r.WithContext(requestctx.WithClaims(r.Context(), claims)))
		})
	})
	NewHandler(reader, nil).RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func sampleEvents() []audit.Event {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []audit.Event{
		{ID: "e2", ActorID: "u1", Action: audit.ActionLoginSucceeded, RequestID: "r2", IP: "10.0.0.7", CreatedAt: at},
		{ID: "e1", Action: audit.ActionLoginFailed, RequestID: "r1", IP: "10.0.0.7", CreatedAt: at.Add(-time.Minute)},
	}
}

func TestListEventsForManagement(t *testing.T) {
	reader := &fakeReader{events: sampleEvents()}
	rec := serve(reader, auth.RoleAdmin, "/audit/events?action=login.failed&actorUserId=u9&limit=10&offset=20")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Total-Count") != "2" {
		t.Fatalf("unexpected total header %q", rec.Header().Get("X-Total-Count"))
	}
	if reader.filter.Action != "login.failed" || reader.filter.ActorUser != "u9" {
		t.Fatalf("filter not passed through: %+v", reader.filter)
	}
	if reader.limit != 10 || reader.offset != 20 {
		t.Fatalf("expected limit 10 offset 20, got %d %d", reader.limit, reader.offset)
	}
	var events []audit.Event
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 || events[0].Action != audit.ActionLoginSucceeded {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestListEventsClampsPaging(t *testing.T) {
	reader := &fakeReader{}
	rec := serve(reader, auth.RoleSuperAdmin, "/audit/events?limit=100000&offset=-4")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reader.limit != maxLimit || reader.offset != 0 {
		t.Fatalf("expected limit capped at %d and offset 0, got %d %d", maxLimit, reader.limit, reader.offset)
	}
	if body := rec.Body.String(); body != "[]\n" && body != "[]" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

func TestListEventsDeniedForStaff(t *testing.T) {
	for _, role := range []auth.Role{auth.RoleHR, auth.RoleEmployee, auth.RoleHOD} {
		rec := serve(&fakeReader{events: sampleEvents()}, role, "/audit/events")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", role, rec.Code)
		}
	}
}

func TestListEventsFailure(t *testing.T) {
	rec := serve(&fakeReader{listErr: errors.New("db down")}, auth.RoleAdmin, "/audit/events")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestExportEventsAsCSV(t *testing.T) {
	rec := serve(&fakeReader{events: sampleEvents()}, auth.RoleAdmin, "/audit/events/export")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(rows))
	}
	if rows[1][2] != audit.ActionLoginSucceeded || rows[1][5] != "2026-03-01T09:30:00Z" {
		t.Fatalf("unexpected row %v", rows[1])
	}
	if rows[2][1] != "" {
		t.Fatalf("failed login must have no actor, got %q", rows[2][1])
	}
}

func TestListEventsDateRange(t *testing.T) {
	reader := &fakeReader{}
	rec := serve(reader, auth.RoleAdmin, "/audit/events?from=2026-03-01&to=2026-03-02")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reader.filter.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v", reader.filter.From)
	}
	if !reader.filter.To.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("a bare to date must include that whole day, got %v", reader.filter.To)
	}
}

func TestListEventsRejectsBadDates(t *testing.T) {
	reader := &fakeReader{}
	for _, path := range []string{"/audit/events?from=yesterday", "/audit/events/export?to=03/01/2026"} {
		rec := serve(reader, auth.RoleAdmin, path)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
		var body struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Code != "validation_failed" {
			t.Fatalf("%s: expected validation_failed, got %+v (%v)", path, body, err)
		}
	}
}
