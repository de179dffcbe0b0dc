// Package db provides SurrealDB query functions for Catosphere aggregates.
package db

import (
	"context"
	"fmt"

	"github.com/catosphere/catosphere-go/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
)

// maxExampleQueries bounds the informational sample stored per observation.
const maxExampleQueries = 5

// ---------------------------------------------------------------------------
// Job records
// ---------------------------------------------------------------------------

// UpsertJobRecord merges the given fields into the job record for storeKey,
// creating it if absent. Fields not present in the update are left untouched.
func (c *Client) UpsertJobRecord(ctx context.Context, storeKey string, fields map[string]any) error {
	fields["store_key"] = storeKey
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("job_record", $key) MERGE $data
	`, map[string]any{"key": storeKey, "data": fields})
	if err != nil {
		return fmt.Errorf("upsert job record %q: %w", storeKey, wrapQueryError(err))
	}
	return nil
}

// GetJobRecord retrieves the job record for storeKey.
// Returns nil (no error) if none exists.
func (c *Client) GetJobRecord(ctx context.Context, storeKey string) (*models.JobRecord, error) {
	results, err := surrealdb.Query[[]models.JobRecord](ctx, c.db, `
		SELECT * FROM type::record("job_record", $key)
	`, map[string]any{"key": storeKey})
	if err != nil {
		return nil, fmt.Errorf("get job record %q: %w", storeKey, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// AppendJobLog appends a line to the job record's logs without touching any
// other field.
func (c *Client) AppendJobLog(ctx context.Context, storeKey, line string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job_record", $key) SET
			logs += $line,
			updated_at = time::now()
	`, map[string]any{"key": storeKey, "line": line})
	if err != nil {
		return fmt.Errorf("append job log %q: %w", storeKey, wrapQueryError(err))
	}
	return nil
}

// FailRunningJobs marks every job still in the running state as errored.
// Called once at startup: a running record at boot means the previous
// process died mid-run.
func (c *Client) FailRunningJobs(ctx context.Context, reason string) (int, error) {
	results, err := surrealdb.Query[[]models.JobRecord](ctx, c.db, `
		UPDATE job_record SET
			state = "error",
			logs += $reason,
			finished_at = time::now(),
			updated_at = time::now()
		WHERE state = "running"
	`, map[string]any{"reason": reason})
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// ---------------------------------------------------------------------------
// Stop sentinels
// ---------------------------------------------------------------------------

// ArmSentinel creates the stop sentinel for storeKey. Re-arming an armed
// sentinel just refreshes its timestamp.
func (c *Client) ArmSentinel(ctx context.Context, storeKey string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("stop_sentinel", $key) SET
			store_key = $key,
			armed_at = time::now()
	`, map[string]any{"key": storeKey})
	if err != nil {
		return fmt.Errorf("arm sentinel %q: %w", storeKey, wrapQueryError(err))
	}
	return nil
}

// SentinelArmed reports whether the sentinel for storeKey currently exists.
func (c *Client) SentinelArmed(ctx context.Context, storeKey string) (bool, error) {
	results, err := surrealdb.Query[[]map[string]any](ctx, c.db, `
		SELECT store_key FROM type::record("stop_sentinel", $key)
	`, map[string]any{"key": storeKey})
	if err != nil {
		return false, fmt.Errorf("check sentinel %q: %w", storeKey, wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// DisarmSentinel deletes the sentinel for storeKey. Returns true if a
// sentinel was actually removed, false if it was already absent. Deleting a
// non-existent sentinel is not an error.
func (c *Client) DisarmSentinel(ctx context.Context, storeKey string) (bool, error) {
	results, err := surrealdb.Query[[]map[string]any](ctx, c.db, `
		DELETE type::record("stop_sentinel", $key) RETURN BEFORE
	`, map[string]any{"key": storeKey})
	if err != nil {
		return false, fmt.Errorf("disarm sentinel %q: %w", storeKey, wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// ---------------------------------------------------------------------------
// Store configs
// ---------------------------------------------------------------------------

// GetStoreConfig retrieves the configuration for storeKey.
// Returns nil (no error) if the store has never been onboarded.
func (c *Client) GetStoreConfig(ctx context.Context, storeKey string) (*models.StoreConfig, error) {
	results, err := surrealdb.Query[[]models.StoreConfig](ctx, c.db, `
		SELECT * FROM type::record("store_config", $key)
	`, map[string]any{"key": storeKey})
	if err != nil {
		return nil, fmt.Errorf("get store config %q: %w", storeKey, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListStoreConfigs returns every onboarded store configuration.
func (c *Client) ListStoreConfigs(ctx context.Context) ([]models.StoreConfig, error) {
	results, err := surrealdb.Query[[]models.StoreConfig](ctx, c.db, `
		SELECT * FROM store_config ORDER BY store_key
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list store configs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.StoreConfig{}, nil
	}
	return (*results)[0].Result, nil
}

// UpsertStoreConfig merges the given fields into the store configuration,
// creating it if absent. Fields absent from the update document are never
// cleared, and onboarded_at is set only if it was previously unset, so the
// call is safe to repeat with identical input.
func (c *Client) UpsertStoreConfig(ctx context.Context, storeKey string, fields map[string]any) error {
	fields["store_key"] = storeKey
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("store_config", $key) MERGE $data;
		UPDATE type::record("store_config", $key) SET
			onboarded_at = time::now(),
			updated_at = time::now()
		WHERE onboarded_at IS NONE;
	`, map[string]any{"key": storeKey, "data": fields})
	if err != nil {
		return fmt.Errorf("upsert store config %q: %w", storeKey, wrapQueryError(err))
	}
	return nil
}

// MergeCategories unions terms into the store's active category set and
// replaces its potential-category observations with the remaining (not yet
// promoted) ones. The union absorbs duplicates, so repeating the merge with
// the same terms is a no-op.
func (c *Client) MergeCategories(ctx context.Context, storeKey string, terms []string, remaining map[string]models.CategoryObservation) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("store_config", $key) SET
			categories = array::union(categories, $terms),
			potential_categories = $remaining,
			updated_at = time::now()
	`, map[string]any{"key": storeKey, "terms": terms, "remaining": remaining})
	if err != nil {
		return fmt.Errorf("merge categories %q: %w", storeKey, wrapQueryError(err))
	}
	return nil
}

// RecordObservation increments the potential-category observation for term,
// initializing it on first sight. The example query sample is bounded.
func (c *Client) RecordObservation(ctx context.Context, storeKey, term, query string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("store_config", $key) SET
			potential_categories[$term].count = (potential_categories[$term].count ?? 0) + 1,
			potential_categories[$term].first_seen = potential_categories[$term].first_seen ?? time::now(),
			potential_categories[$term].last_seen = time::now(),
			potential_categories[$term].example_queries = array::slice(
				array::union(potential_categories[$term].example_queries ?? [], [$query]),
				0, $max
			),
			updated_at = time::now()
	`, map[string]any{"key": storeKey, "term": term, "query": query, "max": maxExampleQueries})
	if err != nil {
		return fmt.Errorf("record observation %q/%q: %w", storeKey, term, wrapQueryError(err))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Discovery runs
// ---------------------------------------------------------------------------

// CreateDiscoveryRun persists a discovery run summary.
func (c *Client) CreateDiscoveryRun(ctx context.Context, run *models.DiscoveryRun) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("discovery_run", $id) CONTENT $data
	`, map[string]any{
		"id": uuid.New().String(),
		"data": map[string]any{
			"trigger":     run.Trigger,
			"scanned":     run.Scanned,
			"succeeded":   run.Succeeded,
			"skipped":     run.Skipped,
			"failed":      run.Failed,
			"results":     run.Results,
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("create discovery run: %w", wrapQueryError(err))
	}
	return nil
}

// ListDiscoveryRuns returns recent discovery run summaries, newest first.
func (c *Client) ListDiscoveryRuns(ctx context.Context, limit int) ([]models.DiscoveryRun, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := surrealdb.Query[[]models.DiscoveryRun](ctx, c.db, `
		SELECT * FROM discovery_run ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list discovery runs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.DiscoveryRun{}, nil
	}
	return (*results)[0].Result, nil
}
