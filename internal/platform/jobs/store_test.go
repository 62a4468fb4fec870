package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/db"
)

func TestPGStorePurge(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
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
	defer pool.Close()

	hash, err := auth.HashPassword("Purge-pass1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	var userID string
	if err := pool.QueryRow(ctx, `
    INSERT INTO users (name, email, role, password_hash)
    VALUES ('Purge', 'purge-' || gen_random_uuid()::text || '@example.com', 'employee', $1)
    RETURNING id::text
  `, hash).Scan(&userID); err != nil {
		t.Fatalf("create user: %v", err)
	}

	store := auth.NewStore(pool)
	stale := auth.HashToken("stale-" + userID)
	fresh := auth.HashToken("fresh-" + userID)
	if err := store.CreateSession(ctx, userID, stale, time.Now().Add(-100*time.Hour)); err != nil {
		t.Fatalf("create stale session: %v", err)
	}
	if err := store.CreateSession(ctx, userID, fresh, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create fresh session: %v", err)
	}

	svc := New(NewStore(pool), 0, 72*time.Hour)
	result, err := svc.PurgeNow(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if result.Sessions < 1 {
		t.Fatalf("expected the stale session to be purged, got %+v", result)
	}

	var remaining int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM sessions WHERE user_id = $1", userID).Scan(&remaining); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected only the fresh session to remain, got %d", remaining)
	}

	var status string
	if err := pool.QueryRow(ctx, "SELECT status FROM job_runs WHERE job_type = $1 ORDER BY started_at DESC LIMIT 1", JobSessionPurge).Scan(&status); err != nil {
		t.Fatalf("load job run: %v", err)
	}
	if status != statusCompleted {
		t.Fatalf("expected completed run, got %s", status)
	}
}
