package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultTokenTTL = 8 * time.Hour
	resetTokenTTL   = 2 * time.Hour
	mfaIssuer       = "HR Portal"
)

// ResetNotice carries what a user needs to finish a password reset. Link
// embeds the raw token and must never be logged.
type ResetNotice struct {
	To        string
	Link      string
	ExpiresIn time.Duration
}

type Mailer interface {
	SendPasswordReset(ctx context.Context, notice ResetNotice) error
}

// SecretSealer protects TOTP seeds at rest.
type SecretSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type plainSealer struct{}

func (plainSealer) Seal(plain string) (string, error)  { return plain, nil }
func (plainSealer) Open(sealed string) (string, error) { return sealed, nil }

type ServiceConfig struct {
	Secret       string
	TokenTTL     time.Duration
	ResetBaseURL string
	Sealer       SecretSealer
}

type Service struct {
	Store  StoreAPI
	Mailer Mailer
	cfg    ServiceConfig
}

func NewService(store StoreAPI, mailer Mailer, cfg ServiceConfig) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Sealer == nil {
		cfg.Sealer = plainSealer{}
	}
	return &Service{Store: store, Mailer: mailer, cfg: cfg}
}

type LoginResult struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	user, err := s.Store.FindActiveUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			return LoginResult{}, ErrMFARequired
		}
		if !s.validTOTP(user, mfaCode) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	sessionID, err := NewOpaqueToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session id: %w", err)
	}
	if err := s.Store.CreateSession(ctx, user.ID, HashToken(sessionID), time.Now().Add(s.cfg.TokenTTL)); err != nil {
		return LoginResult{}, fmt.Errorf("start session: %w", err)
	}

	token, err := GenerateToken(s.cfg.Secret, Claims{UserID: user.ID, Role: user.Role, SessionID: sessionID}, s.cfg.TokenTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	if err := s.Store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}
	return LoginResult{Token: token, User: user.Identity}, nil
}

// Authenticate parses a bearer token and checks that its server session is
// still live.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseToken(s.cfg.Secret, token)
	if err != nil {
		return nil, err
	}
	valid, err := s.Store.SessionValid(ctx, claims.UserID, HashToken(claims.SessionID))
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, claims Claims) error {
	if claims.SessionID == "" {
		return nil
	}
	return s.Store.RevokeSession(ctx, claims.UserID, HashToken(claims.SessionID))
}

func (s *Service) Me(ctx context.Context, userID string) (Identity, error) {
	user, err := s.Store.FindUserByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return user.Identity, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, name, email string) (Identity, error) {
	if err := s.Store.UpdateProfile(ctx, userID, strings.TrimSpace(name), strings.TrimSpace(email)); err != nil {
		return Identity{}, err
	}
	return s.Me(ctx, userID)
}

// RequestPasswordReset always succeeds from the caller's point of view so the
// endpoint cannot be used to probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	userID, err := s.Store.UserIDByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("password reset lookup failed", "err", err)
		}
		return
	}
	token, err := NewOpaqueToken()
	if err != nil {
		slog.Warn("password reset token generation failed", "userId", userID, "err", err)
		return
	}
	if err := s.Store.CreatePasswordReset(ctx, userID, HashToken(token), time.Now().Add(resetTokenTTL)); err != nil {
		slog.Warn("password reset insert failed", "userId", userID, "err", err)
		return
	}
	if s.Mailer == nil {
		return
	}
	notice := ResetNotice{To: email, Link: buildResetLink(s.cfg.ResetBaseURL, token), ExpiresIn: resetTokenTTL}
	if err := s.Mailer.SendPasswordReset(ctx, notice); err != nil {
		slog.Warn("password reset email failed", "userId", userID, "err", err)
	}
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	userID, err := s.Store.PasswordResetUserID(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.Store.MarkPasswordResetUsed(ctx, HashToken(token)); err != nil {
		slog.Warn("password reset mark used failed", "err", err)
	}
	return nil
}

type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

func (s *Service) SetupMFA(ctx context.Context, userID string) (MFASetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: userID,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return MFASetup{}, err
	}
	sealed, err := s.cfg.Sealer.Seal(key.Secret())
	if err != nil {
		return MFASetup{}, fmt.Errorf("seal mfa secret: %w", err)
	}
	if err := s.Store.UpdateMFASecret(ctx, userID, sealed); err != nil {
		return MFASetup{}, err
	}
	return MFASetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	user, err := s.Store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.validTOTP(user, code) {
		return ErrMFAInvalid
	}
	return s.Store.SetMFAEnabled(ctx, userID, true)
}

func (s *Service) validTOTP(user UserRecord, code string) bool {
	if user.MFASecret == "" {
		return false
	}
	secret, err := s.cfg.Sealer.Open(user.MFASecret)
	if err != nil {
		slog.Warn("mfa secret unreadable", "userId", user.ID, "err", err)
		return false
	}
	return totp.Validate(code, secret)
}

func (s *Service) ListUsers(ctx context.Context) ([]Identity, error) {
	return s.Store.ListUsers(ctx)
}

func (s *Service) ListDepartments(ctx context.Context) ([]DepartmentRef, error) {
	return s.Store.ListDepartments(ctx)
}

func ValidatePassword(password string) error {
	if len(password) < 10 {
		return ErrWeakPassword
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}

func buildResetLink(baseURL, token string) string {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if baseURL == "" || err != nil || base.Scheme == "" || base.Host == "" {
		base, _ = url.Parse("http://localhost:8080")
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/reset-password"
	query := base.Query()
	query.Set("token", token)
	base.RawQuery = query.Encode()
	return base.String()
}

