package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Security actions written to the trail.
const (
	ActionLoginSucceeded = "login.succeeded"
	ActionLoginFailed    = "login.failed"
	ActionLogout         = "logout"
	ActionProfileUpdated = "profile.updated"
	ActionResetRequested = "password.reset_requested"
	ActionPasswordReset  = "password.reset"
	ActionMFAEnabled     = "mfa.enabled"
)

type Event struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actorId,omitempty"`
	Action    string          `json:"action"`
	RequestID string          `json:"requestId"`
	IP        string          `json:"ip"`
	CreatedAt time.Time       `json:"createdAt"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Entry is one event to record. ActorID is empty when the caller is not
// known, such as a failed login.
type Entry struct {
	ActorID   string
	Action    string
	RequestID string
	IP        string
	Details   any
}

// Filter narrows a listing. Zero From or To leaves that side open; To is
// exclusive.
type Filter struct {
	Action    string
	ActorUser string
	From      time.Time
	To        time.Time
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, entry Entry) error {
	var details []byte
	if entry.Details != nil {
		payload, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = payload
	}

	var actor any
	if entry.ActorID != "" {
		actor = entry.ActorID
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_user_id, action, request_id, ip, details_json)
    VALUES ($1, $2, $3, $4, $5)
  `, actor, entry.Action, entry.RequestID, entry.IP, details)
	return err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	cols := "id::text, COALESCE(actor_user_id::text, ''), action, request_id, ip, created_at"
	if includeDetails {
		cols += ", details_json"
	}
	query, args := buildBaseQuery("SELECT "+cols, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		dest := []any{&evt.ID, &evt.ActorID, &evt.Action, &evt.RequestID, &evt.IP, &evt.CreatedAt}
		if includeDetails {
			dest = append(dest, &evt.Details)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// ListExport returns every event matching filter, newest first.
func (s *Service) ListExport(ctx context.Context, filter Filter) ([]Event, error) {
	query, args := buildBaseQuery("SELECT id::text, COALESCE(actor_user_id::text, ''), action, request_id, ip, created_at", filter)
	query += " ORDER BY created_at DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.RequestID, &evt.IP, &evt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE true"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.ActorUser != "" {
		args = append(args, filter.ActorUser)
		query += fmt.Sprintf(" AND actor_user_id::text = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	return query, args
}
