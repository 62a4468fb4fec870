package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginDecodesTokenAndUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "hr@example.com", creds.Email)
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "abc",
			"user":  map[string]any{"id": "1", "name": "Hana", "email": "hr@example.com", "role": "hr", "department": map[string]string{"id": "d1"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithTokenSource(func() string { return "stale" }))
	resp, err := c.Login(context.Background(), Credentials{Email: "hr@example.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Token)
	assert.Equal(t, auth.RoleHR, resp.User.Role)
	require.NotNil(t, resp.User.Department)
	assert.Equal(t, "d1", resp.User.Department.ID)
}

func TestLoginRejectionDoesNotFireUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "invalid_credentials", "message": "invalid credentials"})
	}))
	defer srv.Close()

	var fired atomic.Int32
	c := New(srv.URL)
	c.OnUnauthorized(func() { fired.Add(1) })

	_, err := c.Login(context.Background(), Credentials{Email: "a", Password: "b"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.False(t, errors.Is(err, ErrSessionInvalid))
	assert.Zero(t, fired.Load())
}

func TestAuthenticatedCallAttachesBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, map[string]string{"id": "7", "role": "admin"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithTokenSource(func() string { return "tok-1" }))
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7", me.ID)
	assert.Equal(t, auth.RoleAdmin, me.Role)
}

func TestUnauthorizedFiresSubscribers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "unauthorized", "message": "session expired"})
	}))
	defer srv.Close()

	var first, second atomic.Int32
	c := New(srv.URL, WithTokenSource(func() string { return "tok" }))
	c.OnUnauthorized(func() { first.Add(1) })
	c.OnUnauthorized(func() { second.Add(1) })

	_, err := c.Navigation(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionInvalid))
	assert.EqualValues(t, 1, first.Load())
	assert.EqualValues(t, 1, second.Load())
}

func TestForbiddenDoesNotFireUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"code": "forbidden", "message": "insufficient role"})
	}))
	defer srv.Close()

	var fired atomic.Int32
	c := New(srv.URL, WithTokenSource(func() string { return "tok" }))
	c.OnUnauthorized(func() { fired.Add(1) })

	_, err := c.Users(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Zero(t, fired.Load())
}

func TestNetworkErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Login(context.Background(), Credentials{Email: "a", Password: "b"})
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestErrorWithoutBodyUsesStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).RequestPasswordReset(context.Background(), "a@example.com")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}

func TestAccessMatrixPDFReturnsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.3 test"))
	}))
	defer srv.Close()

	data, err := New(srv.URL).AccessMatrixPDF(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 test", string(data))
}
