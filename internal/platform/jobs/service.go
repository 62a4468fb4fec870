// Package jobs runs background housekeeping for the auth tables. Every run is
// recorded in job_runs.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const JobSessionPurge = "session_purge"

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type Store interface {
	StartRun(ctx context.Context, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
	PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error)
	PurgePasswordResets(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeResult is stored as the run details of a session purge.
type PurgeResult struct {
	Cutoff          time.Time `json:"cutoff"`
	Sessions        int64     `json:"sessions"`
	PasswordResets  int64     `json:"passwordResets"`
	IdempotencyKeys int64     `json:"idempotencyKeys"`
}

type Service struct {
	Store     Store
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time
	queue     chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

// New returns a service that purges sessions and reset tokens which expired,
// were revoked or were used more than retention ago, along with stored
// idempotent responses older than retention. A zero interval leaves
// scheduling off; PurgeNow still works.
func New(store Store, interval, retention time.Duration) *Service {
	return &Service{
		Store:     store,
		Interval:  interval,
		Retention: retention,
		Now:       time.Now,
		queue:     make(chan job, 16),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Interval > 0 {
		go s.schedulePurge(ctx, s.Interval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) PurgeNow(ctx context.Context) (PurgeResult, error) {
	details, err := s.RunNow(ctx, JobSessionPurge, s.purge)
	result, _ := details.(PurgeResult)
	return result, err
}

func (s *Service) purge(ctx context.Context) (any, error) {
	result := PurgeResult{Cutoff: s.Now().Add(-s.Retention).UTC()}
	var err error
	if result.Sessions, err = s.Store.PurgeSessions(ctx, result.Cutoff); err != nil {
		return result, err
	}
	if result.PasswordResets, err = s.Store.PurgePasswordResets(ctx, result.Cutoff); err != nil {
		return result, err
	}
	if result.IdempotencyKeys, err = s.Store.PurgeIdempotencyKeys(ctx, result.Cutoff); err != nil {
		return result, err
	}
	slog.Info("session purge finished", "sessions", result.Sessions, "passwordResets", result.PasswordResets, "idempotencyKeys", result.IdempotencyKeys)
	return result, nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.Store.StartRun(ctx, j.Type)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := statusCompleted
	if err != nil {
		status = statusFailed
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Store.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedulePurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobSessionPurge, s.purge)
		}
	}
}
