package jobs

import (
	"context"

	"github.com/catosphere/catosphere-go/internal/db"
)

// Sentinel is the cooperative cancellation signal for a running job. The
// marker is durable so the runner and the stop-request handler can live in
// different processes: presence means "keep running", deletion means "stop
// requested". The runner checks it before every work item.
type Sentinel interface {
	// Arm creates the marker. Called once at run start.
	Arm(ctx context.Context, storeKey string) error

	// IsArmed reports whether the marker currently exists.
	IsArmed(ctx context.Context, storeKey string) (bool, error)

	// Disarm deletes the marker if present. Returns true if a marker was
	// actually removed; deleting an absent marker is a no-op success.
	Disarm(ctx context.Context, storeKey string) (bool, error)
}

// DBSentinel is the SurrealDB-backed Sentinel.
type DBSentinel struct {
	db *db.Client
}

// NewDBSentinel creates a Sentinel backed by the given database client.
func NewDBSentinel(client *db.Client) *DBSentinel {
	return &DBSentinel{db: client}
}

func (s *DBSentinel) Arm(ctx context.Context, storeKey string) error {
	return s.db.ArmSentinel(ctx, storeKey)
}

func (s *DBSentinel) IsArmed(ctx context.Context, storeKey string) (bool, error) {
	return s.db.SentinelArmed(ctx, storeKey)
}

func (s *DBSentinel) Disarm(ctx context.Context, storeKey string) (bool, error) {
	return s.db.DisarmSentinel(ctx, storeKey)
}
