package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const UserStatusActive = "active"

const uniqueViolation = "23505"

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

type UserRecord struct {
	Identity
	PasswordHash string
	MFAEnabled   bool
	MFASecret    string
}

const userColumns = `
    u.id::text, u.name, u.email, u.role, u.password_hash, u.mfa_enabled, COALESCE(u.mfa_secret, ''),
    d.id::text, d.name
  FROM users u
  LEFT JOIN departments d ON u.department_id = d.id
`

func scanUser(row pgx.Row) (UserRecord, error) {
	var out UserRecord
	var role string
	var deptID, deptName *string
	if err := row.Scan(&out.ID, &out.Name, &out.Email, &role, &out.PasswordHash, &out.MFAEnabled, &out.MFASecret, &deptID, &deptName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrNotFound
		}
		return UserRecord{}, err
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return UserRecord{}, err
	}
	out.Role = parsed
	if deptID != nil {
		out.Department = &DepartmentRef{ID: *deptID}
		if deptName != nil {
			out.Department.Name = *deptName
		}
	}
	return out, nil
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	return scanUser(s.DB.QueryRow(ctx, "SELECT"+userColumns+"WHERE lower(u.email) = lower($1) AND u.status = $2", email, UserStatusActive))
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (UserRecord, error) {
	return scanUser(s.DB.QueryRow(ctx, "SELECT"+userColumns+"WHERE u.id = $1", userID))
}

func (s *Store) CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, token_hash, expires_at)
    VALUES ($1,$2,$3)
  `, userID, sessionHash, expires)
	return err
}

func (s *Store) SessionValid(ctx context.Context, userID, sessionHash string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM sessions
    WHERE user_id = $1 AND token_hash = $2 AND expires_at > now() AND revoked_at IS NULL
  `, userID, sessionHash).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) RevokeSession(ctx context.Context, userID, sessionHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL", userID, sessionHash)
	return err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, userID, name, email string) error {
	tag, err := s.DB.Exec(ctx, "UPDATE users SET name = $1, email = $2, updated_at = now() WHERE id = $3", name, email, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateMFASecret(ctx context.Context, userID, secret string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_secret = $1, mfa_enabled = false WHERE id = $2", secret, userID)
	return err
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_enabled = $1 WHERE id = $2", enabled, userID)
	return err
}

func (s *Store) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var userID string
	if err := s.DB.QueryRow(ctx, "SELECT id::text FROM users WHERE lower(email) = lower($1) AND status = $2", email, UserStatusActive).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *Store) CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, "INSERT INTO password_resets (user_id, token_hash, expires_at) VALUES ($1, $2, $3)", userID, tokenHash, expires)
	return err
}

func (s *Store) PasswordResetUserID(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, `
    SELECT user_id::text
    FROM password_resets
    WHERE token_hash = $1 AND expires_at > now() AND used_at IS NULL
  `, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID, hash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2", hash, userID)
	return err
}

func (s *Store) MarkPasswordResetUsed(ctx context.Context, tokenHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE password_resets SET used_at = now() WHERE token_hash = $1", tokenHash)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]Identity, error) {
	rows, err := s.DB.Query(ctx, "SELECT"+userColumns+"ORDER BY u.name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Identity)
	}
	return out, rows.Err()
}

func (s *Store) ListDepartments(ctx context.Context) ([]DepartmentRef, error) {
	rows, err := s.DB.Query(ctx, "SELECT id::text, name FROM departments ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DepartmentRef
	for rows.Next() {
		var dept DepartmentRef
		if err := rows.Scan(&dept.ID, &dept.Name); err != nil {
			return nil, err
		}
		out = append(out, dept)
	}
	return out, rows.Err()
}
