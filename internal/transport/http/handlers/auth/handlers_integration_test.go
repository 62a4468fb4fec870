package authhandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/config"
	"hrportal/internal/platform/db"
	authhandler "hrportal/internal/transport/http/handlers/auth"
)

type captureMailer struct {
	mu       sync.Mutex
	messages []auth.ResetNotice
}

func (m *captureMailer) SendPasswordReset(_ context.Context, notice auth.ResetNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, notice)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *captureMailer) last() (auth.ResetNotice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return auth.ResetNotice{}, false
	}
	return m.messages[len(m.messages)-1], true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type resetHarness struct {
	router  http.Handler
	pool    *pgxpool.Pool
	service *auth.Service
	mailer  *captureMailer
	userID  string
	email   string
}

func TestPasswordResetRequestDeliveryAndResetFlow(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()

	status, _ := h.post(t, "/auth/request-reset", map[string]any{"email": h.email})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 for request reset, got %d", status)
	}
	if h.mailer.count() != 1 {
		t.Fatalf("expected one reset email, got %d", h.mailer.count())
	}
	message, _ := h.mailer.last()
	if message.To != h.email || !strings.HasPrefix(message.Link, "https://hr.example.com/app/reset-password?") {
		t.Fatalf("unexpected notice %+v", message)
	}
	token := extractResetToken(t, message.Link)

	var rawCount int
	if err := h.pool.QueryRow(ctx, "SELECT COUNT(1) FROM password_resets WHERE token_hash = $1", token).Scan(&rawCount); err != nil {
		t.Fatalf("count raw tokens: %v", err)
	}
	if rawCount != 0 {
		t.Fatalf("expected raw token not stored, found %d rows", rawCount)
	}

	newPassword := "ResetStrong123"
	status, _ = h.post(t, "/auth/reset", map[string]any{"token": token, "newPassword": newPassword})
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 for reset password, got %d", status)
	}

	user, err := h.service.Store.FindActiveUserByEmail(ctx, h.email)
	if err != nil {
		t.Fatalf("load updated user: %v", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, newPassword); err != nil {
		t.Fatalf("expected password to be updated: %v", err)
	}

	status, body := h.post(t, "/auth/reset", map[string]any{"token": token, "newPassword": "AnotherStrong123"})
	if status != http.StatusBadRequest || body.Code != "reset_token_invalid" {
		t.Fatalf("expected reused token to be rejected, got %d %+v", status, body)
	}

	status, _ = h.post(t, "/auth/login", map[string]any{"email": h.email, "password": newPassword})
	if status != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", status)
	}
}

func TestPasswordResetUnknownEmailSendsNothing(t *testing.T) {
	h := newResetHarness(t)

	status, _ := h.post(t, "/auth/request-reset", map[string]any{
		"email": fmt.Sprintf("missing-%d@example.com", time.Now().UnixNano()),
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 for unknown email, got %d", status)
	}
	if h.mailer.count() != 0 {
		t.Fatalf("expected no email for unknown account, got %d", h.mailer.count())
	}
}

func TestPasswordResetExpiredTokenRejected(t *testing.T) {
	h := newResetHarness(t)

	expired := fmt.Sprintf("expired-%d-token", time.Now().UnixNano())
	if err := h.service.Store.CreatePasswordReset(context.Background(), h.userID, auth.HashToken(expired), time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("seed expired token: %v", err)
	}

	status, body := h.post(t, "/auth/reset", map[string]any{"token": expired, "newPassword": "ExpiredReset123"})
	if status != http.StatusBadRequest || body.Code != "reset_token_invalid" {
		t.Fatalf("expected expired token to be rejected, got %d %+v", status, body)
	}
}

func TestDuplicateProfileEmailConflicts(t *testing.T) {
	h := newResetHarness(t)
	other := newTestUser(t, h.pool)

	_, err := h.service.UpdateProfile(context.Background(), h.userID, "Renamed", strings.ToUpper(other))
	if !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func newResetHarness(t *testing.T) *resetHarness {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if strings.TrimSpace(dbURL) == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	if err := db.Migrate(dbURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Seed(ctx, pool, config.Config{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	email := newTestUser(t, pool)
	var userID string
	if err := pool.QueryRow(ctx, "SELECT id::text FROM users WHERE email = $1", email).Scan(&userID); err != nil {
		t.Fatalf("load user id: %v", err)
	}

	mailer := &captureMailer{}
	service := auth.NewService(auth.NewStore(pool), mailer, auth.ServiceConfig{
		Secret:       "test-secret",
		ResetBaseURL: "https://hr.example.com/app",
	})
	router := chi.NewRouter()
	authhandler.NewHandler(service, nil).RegisterPublicRoutes(router, nil)

	return &resetHarness{router: router, pool: pool, service: service, mailer: mailer, userID: userID, email: email}
}

func newTestUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	hash, err := auth.HashPassword("InitialReset123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	email := fmt.Sprintf("reset-flow-%d@example.com", time.Now().UnixNano())
	if _, err := pool.Exec(context.Background(), `
    INSERT INTO users (name, email, role, password_hash)
    VALUES ($1, $2, $3, $4)
  `, "Reset Flow", email, string(auth.RoleEmployee), hash); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return email
}

func (h *resetHarness) post(t *testing.T, path string, body any) (int, errorBody) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var out errorBody
	if rec.Code >= 400 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func extractResetToken(t *testing.T, body string) string {
	t.Helper()
	link := regexp.MustCompile(`https?://[^\s]+`).FindString(body)
	if link == "" {
		t.Fatalf("expected reset link in email body, got %q", body)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse reset link %q: %v", link, err)
	}
	if !strings.HasSuffix(parsed.Path, "/app/reset-password") {
		t.Fatalf("unexpected reset path %q", parsed.Path)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("expected token query param in %q", link)
	}
	return token
}
