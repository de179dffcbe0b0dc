// Package jobs implements the background job engine: per-store job state,
// the cross-context stop sentinel, and the cancellable runner loop.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/catosphere/catosphere-go/internal/db"
	"github.com/catosphere/catosphere-go/internal/models"
)

// StateStore persists and serves the lifecycle state of the one job tracked
// per store key. Every write is a point-in-time snapshot; no history is kept.
type StateStore interface {
	// SetState upserts the job record, overwriting updated_at. Persistence
	// errors propagate to the caller; a run cannot safely continue without
	// status visibility.
	SetState(ctx context.Context, storeKey string, state models.JobState, progress, done, total int) error

	// GetState returns the current job record, or a synthesized idle
	// default if none exists. Absence is a valid idle state, never an
	// error.
	GetState(ctx context.Context, storeKey string) (models.JobRecord, error)

	// AppendLog appends to the record's logs without clobbering other
	// fields.
	AppendLog(ctx context.Context, storeKey, message string) error
}

// DBStateStore is the SurrealDB-backed StateStore.
type DBStateStore struct {
	db *db.Client
}

// NewDBStateStore creates a StateStore backed by the given database client.
func NewDBStateStore(client *db.Client) *DBStateStore {
	return &DBStateStore{db: client}
}

func (s *DBStateStore) SetState(ctx context.Context, storeKey string, state models.JobState, progress, done, total int) error {
	now := time.Now().UTC()
	fields := map[string]any{
		"state":      state,
		"progress":   progress,
		"done":       done,
		"total":      total,
		"updated_at": now,
	}
	// A running write with done == 0 is the start of a new run: stamp
	// started_at, clear the previous run's outcome and logs.
	if state == models.JobStateRunning && done == 0 {
		fields["started_at"] = now
		fields["finished_at"] = nil
		fields["logs"] = []string{}
	}
	if state.Terminal() {
		fields["finished_at"] = now
	}

	err := s.db.UpsertJobRecord(ctx, storeKey, fields)
	if errors.Is(err, db.ErrTransactionConflict) {
		// A stop-handler write raced this one; the snapshot is disposable,
		// so a single retry is enough.
		err = s.db.UpsertJobRecord(ctx, storeKey, fields)
	}
	return err
}

func (s *DBStateStore) GetState(ctx context.Context, storeKey string) (models.JobRecord, error) {
	rec, err := s.db.GetJobRecord(ctx, storeKey)
	if err != nil {
		return models.JobRecord{}, err
	}
	if rec == nil {
		return models.IdleJobRecord(storeKey), nil
	}
	return *rec, nil
}

func (s *DBStateStore) AppendLog(ctx context.Context, storeKey, message string) error {
	return s.db.AppendJobLog(ctx, storeKey, message)
}
