package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/catosphere/catosphere-go/internal/models"
	"github.com/catosphere/catosphere-go/internal/pipeline"
)

// ErrAlreadyRunning indicates a start was refused because a job for the
// same store key is already in the running state. This is a best-effort
// check against the latest persisted snapshot, not a distributed lock.
var ErrAlreadyRunning = errors.New("job already running for store")

// maxLogLines caps the log lines appended during one run. The job record is
// a current-status view, not an audit trail.
const maxLogLines = 200

// Options controls a single run.
type Options struct {
	// Stages selects which pipeline stages process each item.
	Stages pipeline.Stages

	// AbortOnItemError fails the whole run on the first item error.
	// The default (false) skips the item, logs it, and continues;
	// aborting is reserved for systemic failures where continuing
	// would fail every remaining item anyway.
	AbortOnItemError bool
}

// Runner drives a reprocessing run: it arms the stop sentinel, walks the
// work items in order, checks for cancellation before each item, and
// reports progress to the state store after each item.
type Runner struct {
	states   StateStore
	sentinel Sentinel
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(states StateStore, sentinel Sentinel, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{states: states, sentinel: sentinel, logger: logger}
}

// Start launches Run in a background goroutine after verifying no job is
// currently running for storeKey. It returns immediately; callers poll the
// state store for progress. The run deliberately detaches from the caller's
// context so it survives the triggering HTTP request.
func (r *Runner) Start(ctx context.Context, storeKey string, items []pipeline.Item, proc pipeline.Processor, opts Options) error {
	current, err := r.states.GetState(ctx, storeKey)
	if err != nil {
		return fmt.Errorf("check current state: %w", err)
	}
	if current.State == models.JobStateRunning {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, storeKey)
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("run goroutine panicked", "store_key", storeKey, "panic", rec)
				bgCtx := context.Background()
				_, _ = r.sentinel.Disarm(bgCtx, storeKey)
				_ = r.states.AppendLog(bgCtx, storeKey, fmt.Sprintf("internal panic: %v", rec))
				_ = r.states.SetState(bgCtx, storeKey, models.JobStateError, 0, 0, len(items))
			}
		}()

		if err := r.Run(context.Background(), storeKey, items, proc, opts); err != nil {
			r.logger.Error("run failed", "store_key", storeKey, "error", err)
		}
	}()

	return nil
}

// Run executes the reprocessing loop synchronously. Cancellation is
// cooperative: the sentinel is checked before each item, so stop latency is
// bounded by the cost of one item. The returned error is nil for the done
// and stopped outcomes; a stop is an intentional result, not a failure.
func (r *Runner) Run(ctx context.Context, storeKey string, items []pipeline.Item, proc pipeline.Processor, opts Options) error {
	total := len(items)
	logged := 0

	if err := r.sentinel.Arm(ctx, storeKey); err != nil {
		return fmt.Errorf("arm sentinel: %w", err)
	}
	defer func() {
		// Never leave a sentinel armed behind a finished run.
		if _, err := r.sentinel.Disarm(context.WithoutCancel(ctx), storeKey); err != nil {
			r.logger.Warn("failed to disarm sentinel", "store_key", storeKey, "error", err)
		}
	}()

	if err := r.states.SetState(ctx, storeKey, models.JobStateRunning, 0, 0, total); err != nil {
		return fmt.Errorf("set running state: %w", err)
	}
	r.logger.Info("run started", "store_key", storeKey, "items", total, "stages", opts.Stages)
	r.appendLog(ctx, storeKey, &logged, fmt.Sprintf("run started with %d items", total))

	skipped := 0
	for i, item := range items {
		// Checkpoint: a disarmed sentinel means stop was requested.
		armed, err := r.sentinel.IsArmed(ctx, storeKey)
		if err != nil {
			// Cannot determine cancellation; keep running rather than
			// fail the whole batch on a transient sentinel read.
			r.logger.Warn("sentinel check failed, continuing", "store_key", storeKey, "error", err)
		} else if !armed {
			r.logger.Info("stop requested, halting run", "store_key", storeKey, "done", i, "total", total)
			r.appendLog(ctx, storeKey, &logged, fmt.Sprintf("stopped after %d of %d items", i, total))
			if err := r.states.SetState(ctx, storeKey, models.JobStateStopped, progressOf(i, total), i, total); err != nil {
				return fmt.Errorf("set stopped state: %w", err)
			}
			return nil
		}

		if err := proc.Process(ctx, storeKey, item, opts.Stages); err != nil {
			if opts.AbortOnItemError {
				r.appendLog(ctx, storeKey, &logged, fmt.Sprintf("item %s failed: %v", item.ID, err))
				if serr := r.states.SetState(ctx, storeKey, models.JobStateError, progressOf(i, total), i, total); serr != nil {
					r.logger.Error("failed to persist error state", "store_key", storeKey, "error", serr)
				}
				return fmt.Errorf("process item %s: %w", item.ID, err)
			}
			skipped++
			r.logger.Warn("item failed, skipping", "store_key", storeKey, "item", item.ID, "error", err)
			r.appendLog(ctx, storeKey, &logged, fmt.Sprintf("item %s skipped: %v", item.ID, err))
		}

		done := i + 1
		if err := r.states.SetState(ctx, storeKey, models.JobStateRunning, progressOf(done, total), done, total); err != nil {
			// Status visibility is gone; continuing blind is worse than
			// aborting.
			serr := r.states.SetState(ctx, storeKey, models.JobStateError, progressOf(done, total), done, total)
			if serr != nil {
				r.logger.Error("failed to persist error state", "store_key", storeKey, "error", serr)
			}
			return fmt.Errorf("persist progress: %w", err)
		}
	}

	r.appendLog(ctx, storeKey, &logged, fmt.Sprintf("run complete: %d items, %d skipped", total, skipped))
	if err := r.states.SetState(ctx, storeKey, models.JobStateDone, 100, total, total); err != nil {
		return fmt.Errorf("set done state: %w", err)
	}
	r.logger.Info("run complete", "store_key", storeKey, "items", total, "skipped", skipped)
	return nil
}

// Stop requests cancellation of the running job for storeKey by disarming
// its sentinel. Returns true if a sentinel was removed, false if none was
// armed (already stopped or never started). Idempotent: repeated stops
// succeed.
func (r *Runner) Stop(ctx context.Context, storeKey string) (bool, error) {
	removed, err := r.sentinel.Disarm(ctx, storeKey)
	if err != nil {
		return false, fmt.Errorf("disarm sentinel: %w", err)
	}
	r.logger.Info("stop requested", "store_key", storeKey, "sentinel_removed", removed)
	return removed, nil
}

func (r *Runner) appendLog(ctx context.Context, storeKey string, logged *int, message string) {
	if *logged >= maxLogLines {
		return
	}
	*logged++
	if *logged == maxLogLines {
		message = "log truncated, further lines dropped"
	}
	if err := r.states.AppendLog(ctx, storeKey, message); err != nil {
		r.logger.Warn("failed to append job log", "store_key", storeKey, "error", err)
	}
}

func progressOf(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}
