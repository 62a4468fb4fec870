package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/config"
)

var defaultDepartments = []string{"Administration", "People", "Finance", "Engineering", "Sales"}

// Seed creates the default departments and, when credentials are configured,
// a superadmin account. It is idempotent.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	adminDept := ""
	for _, name := range defaultDepartments {
		id, err := ensureDepartment(ctx, pool, name)
		if err != nil {
			return err
		}
		if adminDept == "" {
			adminDept = id
		}
	}
	return ensureUser(ctx, pool, cfg.SeedAdminName, cfg.SeedAdminEmail, cfg.SeedAdminPassword, auth.RoleSuperAdmin, adminDept)
}

func ensureDepartment(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM departments WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = pool.QueryRow(ctx, "INSERT INTO departments (name) VALUES ($1) RETURNING id::text", name).Scan(&id)
	return id, err
}

func ensureUser(ctx context.Context, pool *pgxpool.Pool, name, email, password string, role auth.Role, departmentID string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM users WHERE lower(email) = lower($1)", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
    INSERT INTO users (name, email, role, password_hash, status, department_id)
    VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
  `, name, email, string(role), hash, auth.UserStatusActive, departmentID)
	return err
}
