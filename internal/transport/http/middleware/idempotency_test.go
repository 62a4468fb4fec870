package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"hrportal/internal/domain/auth"
	"hrportal/internal/requestctx"
)

type memIdempotency struct {
	entries  map[string]memEntry
	checkErr error
}

type memEntry struct {
	hash string
	resp StoredResponse
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: map[string]memEntry{}}
}

func (m *memIdempotency) Check(_ context.Context, scope, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	if m.checkErr != nil {
		return StoredResponse{}, false, m.checkErr
	}
	entry, ok := m.entries[scope+"|"+endpoint+"|"+key]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if entry.hash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return entry.resp, true, nil
}

func (m *memIdempotency) Save(_ context.Context, scope, endpoint, key, requestHash string, resp StoredResponse) error {
	m.entries[scope+"|"+endpoint+"|"+key] = memEntry{hash: requestHash, resp: resp}
	return nil
}

type countingHandler struct {
	calls  int
	status int
}

func (c *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(c.calls) + `}`))
}

func keyed(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/reset", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func TestRequestHashDeterministic(t *testing.T) {
	if RequestHash([]byte("payload")) != RequestHash([]byte("payload")) {
		t.Fatal("expected deterministic hash")
	}
	if RequestHash([]byte("payload")) == RequestHash([]byte("other")) {
		t.Fatal("expected different hash for different payload")
	}
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotent(newMemIdempotency(), "auth.reset")(next)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyed(`{"token":"t"}`, "k1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyed(`{"token":"t"}`, "k1"))

	if next.calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", next.calls)
	}
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("expected replay of %q, got %d %q", first.Body.String(), second.Code, second.Body.String())
	}
	if second.Header().Get(ReplayedHeader) != "true" || second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected replay headers %v", second.Header())
	}
}

func TestIdempotentConflictOnDifferentBody(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotent(newMemIdempotency(), "auth.reset")(next)

	handler.ServeHTTP(httptest.NewRecorder(), keyed(`{"token":"a"}`, "k1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyed(`{"token":"b"}`, "k1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if next.calls != 1 {
		t.Fatalf("conflicting request must not reach the handler")
	}
}

func TestIdempotentSkipsFailuresAndUnkeyedRequests(t *testing.T) {
	next := &countingHandler{status: http.StatusBadRequest}
	store := newMemIdempotency()
	handler := Idempotent(store, "auth.reset")(next)

	handler.ServeHTTP(httptest.NewRecorder(), keyed(`{}`, "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), keyed(`{}`, "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), keyed(`{}`, ""))
	if next.calls != 3 {
		t.Fatalf("expected failed and unkeyed requests to run every time, ran %d", next.calls)
	}
	if len(store.entries) != 0 {
		t.Fatalf("failed responses must not be stored")
	}
}

func TestIdempotentScopesKeysByUser(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotent(newMemIdempotency(), "auth.profile")(next)

	for _, userID := range []string{"u1", "u2"} {
		req := keyed(`{"name":"x"}`, "same-key")
		req = req.WithContext(requestctx.WithClaims(req.Context(), &auth.Claims{UserID: userID, Role: auth.RoleHR}))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if next.calls != 2 {
		t.Fatalf("keys of different users must not collide, ran %d", next.calls)
	}
}

func TestIdempotentStoreFailureStillServes(t *testing.T) {
	store := newMemIdempotency()
	store.checkErr = errors.New("connection refused")
	next := &countingHandler{status: http.StatusOK}

	rec := httptest.NewRecorder()
	Idempotent(store, "auth.reset")(next).ServeHTTP(rec, keyed(`{}`, "k1"))
	if rec.Code != http.StatusOK || next.calls != 1 {
		t.Fatalf("expected request to be served, got %d after %d calls", rec.Code, next.calls)
	}
}

func TestIdempotentRejectsOversizedKey(t *testing.T) {
	rec := httptest.NewRecorder()
	next := &countingHandler{status: http.StatusOK}
	Idempotent(newMemIdempotency(), "auth.reset")(next).ServeHTTP(rec, keyed(`{}`, strings.Repeat("k", 300)))
	if rec.Code != http.StatusBadRequest || next.calls != 0 {
		t.Fatalf("expected 400 without handler call, got %d", rec.Code)
	}
}

func TestIdempotentNilStorePassesThrough(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotent(nil, "auth.reset")(next)
	handler.ServeHTTP(httptest.NewRecorder(), keyed(`{}`, "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), keyed(`{}`, "k1"))
	if next.calls != 2 {
		t.Fatalf("expected pass-through, ran %d", next.calls)
	}
}
