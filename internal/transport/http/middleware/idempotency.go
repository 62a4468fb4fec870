package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrportal/internal/transport/http/api"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// StoredResponse is the first successful answer to a keyed request.
type StoredResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// IdempotencyStore remembers responses per (scope, endpoint, key). Scope is
// the caller's user id, or empty on public endpoints.
type IdempotencyStore interface {
	Check(ctx context.Context, scope, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Save(ctx context.Context, scope, endpoint, key, requestHash string, resp StoredResponse) error
}

type PGIdempotencyStore struct {
	db *pgxpool.Pool
}

func NewIdempotencyStore(db *pgxpool.Pool) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *PGIdempotencyStore) Check(ctx context.Context, scope, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	var storedHash string
	var resp StoredResponse
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, status_code, content_type, response_body
    FROM idempotency_keys
    WHERE scope = $1 AND endpoint = $2 AND key = $3
  `, scope, endpoint, key).Scan(&storedHash, &resp.Status, &resp.ContentType, &resp.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return resp, true, nil
}

func (s *PGIdempotencyStore) Save(ctx context.Context, scope, endpoint, key, requestHash string, resp StoredResponse) error {
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (scope, endpoint, key, request_hash, status_code, content_type, response_body)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (scope, endpoint, key)
    DO UPDATE SET status_code = EXCLUDED.status_code, content_type = EXCLUDED.content_type, response_body = EXCLUDED.response_body
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, scope, endpoint, key, requestHash, resp.Status, resp.ContentType, resp.Body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Idempotent replays the stored response when a request repeats an
// Idempotency-Key with the same body, and answers 409 when the key comes back
// with a different body. Only 2xx responses are stored, so a failed attempt
// can be retried. Requests without the header, or a nil store, pass through.
func Idempotent(store IdempotencyStore, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLen {
				api.Fail(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "idempotency key too long", requestID)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					api.Fail(w, http.StatusRequestEntityTooLarge, api.ErrCodeBodyTooLarge, "request body too large", requestID)
					return
				}
				api.Fail(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "failed to read request body", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var scope string
			if user, ok := GetUser(r.Context()); ok {
				scope = user.UserID
			}
			requestHash := RequestHash(body)

			stored, found, err := store.Check(r.Context(), scope, endpoint, key, requestHash)
			switch {
			case errors.Is(err, ErrIdempotencyConflict):
				api.Fail(w, http.StatusConflict, api.ErrCodeConflict, "idempotency key reused with a different request", requestID)
				return
			case err != nil:
				slog.Warn("idempotency check failed", "endpoint", endpoint, "err", err, "requestId", requestID)
			case found:
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status < 200 || capture.status > 299 {
				return
			}
			resp := StoredResponse{Status: capture.status, ContentType: w.Header().Get("Content-Type"), Body: capture.body.Bytes()}
			if err := store.Save(r.Context(), scope, endpoint, key, requestHash, resp); err != nil {
				slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err, "requestId", requestID)
			}
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
