// Package apiclient talks to the HR portal REST API. It attaches the bearer
// token to every authenticated call and announces 401 responses to its
// subscribers instead of redirecting anywhere itself.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
)

const apiPrefix = "/api/v1"

// ErrSessionInvalid is returned for authenticated calls rejected with 401.
var ErrSessionInvalid = errors.New("session invalid")

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode,omitempty"`
}

type LoginResponse struct {
	Token string        `json:"token"`
	User  auth.Identity `json:"user"`
}

type ProfileUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

type networkError struct {
	err error
}

func (e *networkError) Error() string { return "network error: " + e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// IsNetwork reports whether err means the request never got a response.
func IsNetwork(err error) bool {
	var netErr *networkError
	return errors.As(err, &netErr)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource sets where the bearer token comes from; usually the
// session store's Token method.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) {
		c.token = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	logger  *slog.Logger

	mu          sync.RWMutex
	subscribers []func()
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		token:   func() string { return "" },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized registers fn to run whenever an authenticated call comes
// back 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *Client) fireUnauthorized() {
	c.mu.RLock()
	subs := append([]func(){}, c.subscribers...)
	c.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// Login posts credentials. A 401 here is a credential failure and does not
// notify unauthorized subscribers.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", creds, &out, false)
	return out, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
}

func (c *Client) Me(ctx context.Context) (auth.Identity, error) {
	var out auth.Identity
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out, true)
	return out, err
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (auth.Identity, error) {
	var out auth.Identity
	err := c.do(ctx, http.MethodPut, "/auth/me", update, &out, true)
	return out, err
}

func (c *Client) Navigation(ctx context.Context) ([]access.MenuEntry, error) {
	var out []access.MenuEntry
	err := c.do(ctx, http.MethodGet, "/navigation", nil, &out, true)
	return out, err
}

func (c *Client) Users(ctx context.Context) ([]auth.Identity, error) {
	var out []auth.Identity
	err := c.do(ctx, http.MethodGet, "/users", nil, &out, true)
	return out, err
}

func (c *Client) Departments(ctx context.Context) ([]auth.DepartmentRef, error) {
	var out []auth.DepartmentRef
	err := c.do(ctx, http.MethodGet, "/departments", nil, &out, true)
	return out, err
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/request-reset", map[string]string{"email": email}, nil, false)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/auth/reset", map[string]string{"token": token, "newPassword": newPassword}, nil, false)
}

func (c *Client) AccessMatrixPDF(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, "/access/matrix.pdf", nil, &buf, true)
	return buf.Bytes(), err
}

// AuditEvents lists the newest security events, optionally narrowed to one
// action. A zero limit leaves the page size to the server.
func (c *Client) AuditEvents(ctx context.Context, action string, limit int) ([]audit.Event, error) {
	query := url.Values{}
	if action != "" {
		query.Set("action", action)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/audit/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out []audit.Event
	err := c.do(ctx, http.MethodGet, path, nil, &out, true)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, authenticated bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &networkError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		if authenticated && resp.StatusCode == http.StatusUnauthorized {
			c.logger.Warn("api rejected session", "method", method, "path", path, "requestId", apiErr.RequestID)
			c.fireUnauthorized()
			return errors.Join(ErrSessionInvalid, apiErr)
		}
		return apiErr
	}

	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
