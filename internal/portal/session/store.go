// Package session is the portal's single source of truth for who is logged
// in and with which bearer token. State survives restarts through a Storage
// backend and is rehydrated by Initialize without contacting the server.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hrportal/internal/domain/auth"
	"hrportal/internal/portal/apiclient"
)

var ErrNotAuthenticated = errors.New("not authenticated")

const storageTimeout = 5 * time.Second

type Authenticator interface {
	Login(ctx context.Context, creds apiclient.Credentials) (apiclient.LoginResponse, error)
}

// UnauthorizedSource emits an event whenever an authenticated request is
// rejected with 401.
type UnauthorizedSource interface {
	OnUnauthorized(fn func())
}

type Session struct {
	Token    string
	Identity auth.Identity
}

// State is a point-in-time view of the store. Loading is true until the
// first Initialize or Login has resolved.
type State struct {
	Loading bool
	Session *Session
}

func (s State) Authenticated() bool {
	return !s.Loading && s.Session != nil
}

func (s State) Identity() *auth.Identity {
	if s.Session == nil {
		return nil
	}
	identity := s.Session.Identity
	return &identity
}

func (s State) Role() *auth.Role {
	return s.Identity().RoleRef()
}

type FailureReason string

const (
	FailureCredentials     FailureReason = "credentials"
	FailureNetwork         FailureReason = "network"
	FailureInvalidResponse FailureReason = "invalid_response"
	FailureStorage         FailureReason = "storage"
)

// LoginResult reports the outcome of Login. Failures are values, not errors,
// so callers have to branch on Success.
type LoginResult struct {
	Success  bool
	Reason   FailureReason
	Message  string
	Identity *auth.Identity
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type Store struct {
	storage   Storage
	client    Authenticator
	logger    *slog.Logger
	bindOnce  sync.Once
	mu        sync.RWMutex
	loaded    bool
	current   *Session
	observers []func(State)
}

func NewStore(storage Storage, client Authenticator, opts ...Option) *Store {
	s := &Store{storage: storage, client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize restores a persisted session. Both entries must be present and
// the identity must decode; a corrupt identity clears both entries. Storage
// failures leave the store unauthenticated rather than failing startup.
func (s *Store) Initialize(ctx context.Context) {
	restored := s.readPersisted(ctx)

	s.mu.Lock()
	s.loaded = true
	s.current = restored
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
}

func (s *Store) readPersisted(ctx context.Context) *Session {
	token, hasToken, err := s.storage.Get(ctx, KeyToken)
	if err != nil {
		s.logger.Warn("session storage read failed", "key", KeyToken, "err", err)
		return nil
	}
	raw, hasUser, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Warn("session storage read failed", "key", KeyUser, "err", err)
		return nil
	}
	if hasUser {
		var identity auth.Identity
		decodeErr := json.Unmarshal([]byte(raw), &identity)
		if decodeErr == nil {
			decodeErr = identity.Validate()
		}
		if decodeErr != nil {
			s.logger.Warn("persisted identity is corrupt, clearing session", "err", decodeErr)
			if err := s.storage.Delete(ctx, KeyToken, KeyUser); err != nil {
				s.logger.Warn("session storage clear failed", "err", err)
			}
			return nil
		}
		if hasToken && token != "" {
			return &Session{Token: token, Identity: identity}
		}
	}
	return nil
}

// Login exchanges credentials for a session. Persisted state is cleared
// before the request goes out; the in-memory session is only replaced on
// success. Concurrent calls are not deduplicated and the last one to resolve
// wins.
func (s *Store) Login(ctx context.Context, creds apiclient.Credentials) LoginResult {
	if err := s.storage.Delete(ctx, KeyToken, KeyUser); err != nil {
		s.logger.Warn("session storage clear before login failed", "err", err)
	}

	resp, err := s.client.Login(ctx, creds)
	if err != nil {
		return s.failLogin(loginFailure(err))
	}
	if resp.Token == "" {
		return s.failLogin(LoginResult{Reason: FailureInvalidResponse, Message: "login response did not include a token"})
	}
	if err := resp.User.Validate(); err != nil {
		return s.failLogin(LoginResult{Reason: FailureInvalidResponse, Message: err.Error()})
	}

	next := &Session{Token: resp.Token, Identity: resp.User}
	s.mu.Lock()
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.Warn("session persist failed", "userId", resp.User.ID, "err", err)
		return s.failLogin(LoginResult{Reason: FailureStorage, Message: "could not save session"})
	}
	s.loaded = true
	s.current = next
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
	identity := resp.User
	return LoginResult{Success: true, Identity: &identity}
}

// failLogin resolves the loading state without touching the in-memory
// session. Observers hear about it only when Loading actually flips.
func (s *Store) failLogin(result LoginResult) LoginResult {
	s.mu.Lock()
	flipped := !s.loaded
	s.loaded = true
	state := s.stateLocked()
	s.mu.Unlock()

	if flipped {
		s.notify(state)
	}
	return result
}

func loginFailure(err error) LoginResult {
	if apiclient.IsNetwork(err) {
		return LoginResult{Reason: FailureNetwork, Message: "unable to reach the server"}
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "login rejected"
		}
		return LoginResult{Reason: FailureCredentials, Message: msg}
	}
	return LoginResult{Reason: FailureInvalidResponse, Message: err.Error()}
}

// Logout clears memory first and storage second; it never fails and is safe
// to call when already logged out.
func (s *Store) Logout(ctx context.Context) {
	s.clear(ctx)
}

// ForceLogout is the teardown path for a server-side session rejection.
func (s *Store) ForceLogout(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if prev := s.clear(ctx); prev != nil {
		s.logger.Warn("forced logout", "userId", prev.Identity.ID, "reason", reason)
	}
}

func (s *Store) clear(ctx context.Context) *Session {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.loaded = true
	state := s.stateLocked()
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, KeyToken, KeyUser); err != nil {
		s.logger.Warn("session storage clear failed", "err", err)
	}
	s.notify(state)
	return prev
}

// UpdateIdentity swaps the identity after a profile edit, keeping the token.
func (s *Store) UpdateIdentity(ctx context.Context, identity auth.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	next := &Session{Token: s.current.Token, Identity: identity}
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist identity: %w", err)
	}
	s.current = next
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
	return nil
}

// persist writes token and identity in one SetAll. Callers hold mu.
func (s *Store) persist(ctx context.Context, sess *Session) error {
	user, err := json.Marshal(sess.Identity)
	if err != nil {
		return err
	}
	return s.storage.SetAll(ctx, map[string]string{
		KeyToken: sess.Token,
		KeyUser:  string(user),
	})
}

func (s *Store) HasRole(allowed ...auth.Role) bool {
	return auth.IsAllowed(s.State().Role(), allowed)
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	state := State{Loading: !s.loaded}
	if s.current != nil {
		copied := *s.current
		state.Session = &copied
	}
	return state
}

func (s *Store) Identity() *auth.Identity {
	return s.State().Identity()
}

// Token is the bearer token for outbound requests, empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// BindUnauthorized subscribes ForceLogout to src. Only the first call has an
// effect.
func (s *Store) BindUnauthorized(src UnauthorizedSource) {
	s.bindOnce.Do(func() {
		src.OnUnauthorized(func() {
			s.ForceLogout("session rejected by server")
		})
	})
}

// OnChange registers an observer called after every state transition.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(state State) {
	s.mu.RLock()
	observers := append([]func(State){}, s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(state)
	}
}
