package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email string) (UserRecord, error)
	FindUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
	RevokeSession(ctx context.Context, userID, sessionHash string) error
	UpdateLastLogin(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID, name, email string) error
	UpdateMFASecret(ctx context.Context, userID, secret string) error
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
	UserIDByEmail(ctx context.Context, email string) (string, error)
	CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error
	PasswordResetUserID(ctx context.Context, tokenHash string) (string, error)
	UpdateUserPassword(ctx context.Context, userID, hash string) error
	MarkPasswordResetUsed(ctx context.Context, tokenHash string) error
	ListUsers(ctx context.Context) ([]Identity, error)
	ListDepartments(ctx context.Context) ([]DepartmentRef, error)
}
