package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/catosphere/catosphere-go/internal/jobs"
	"github.com/catosphere/catosphere-go/internal/models"
	"github.com/catosphere/catosphere-go/internal/pipeline"
)

// Store is the persistence surface the engine needs.
type Store interface {
	ListStoreConfigs(ctx context.Context) ([]models.StoreConfig, error)
	MergeCategories(ctx context.Context, storeKey string, terms []string, remaining map[string]models.CategoryObservation) error
	CreateDiscoveryRun(ctx context.Context, run *models.DiscoveryRun) error
}

// Oracle ranks candidate terms. Implementations are advisory and untrusted:
// the engine filters every response against the disjointness rules before
// merging. An error means "oracle unavailable" and triggers the
// deterministic fallback, never a run failure.
type Oracle interface {
	Rank(ctx context.Context, candidates []models.CategoryCandidate, existing []string, maxTerms int) ([]string, error)
}

// Config holds the engine's collaborators and tuning.
type Config struct {
	Store   Store
	Oracle  Oracle // nil disables the oracle; fallback scorer is always used
	Runner  *jobs.Runner
	Catalog pipeline.Catalog
	Proc    pipeline.Processor

	// MaxTerms bounds how many terms one run promotes per store.
	MaxTerms int

	// Delay is inserted after each processed store to respect oracle rate
	// limits. Stores are intentionally processed one at a time.
	Delay time.Duration

	Logger *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

// Engine runs one discovery pass over all stores.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine, applying defaults for unset tuning fields.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg}
}

// Run executes one discovery pass. Per-store failures are recorded and do
// not stop the pass; only a failure to list the stores at all is fatal.
func (e *Engine) Run(ctx context.Context, trigger string) (*models.DiscoveryRun, error) {
	log := e.cfg.Logger
	log.Info("discovery run starting", "trigger", trigger)

	configs, err := e.cfg.Store.ListStoreConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	run := &models.DiscoveryRun{
		Trigger:   trigger,
		StartedAt: e.cfg.Now().UTC(),
	}

	for i := range configs {
		sc := &configs[i]
		if len(sc.PotentialCategories) == 0 {
			continue
		}

		result := e.processStore(ctx, sc)
		run.Results = append(run.Results, result)
		run.Scanned++
		switch result.Status {
		case models.DiscoveryStatusSuccess:
			run.Succeeded++
		case models.DiscoveryStatusSkipped:
			run.Skipped++
		case models.DiscoveryStatusError:
			run.Failed++
		}

		// Sequential inter-store delay bounds the oracle call rate.
		if e.cfg.Delay > 0 {
			select {
			case <-time.After(e.cfg.Delay):
			case <-ctx.Done():
				run.FinishedAt = e.cfg.Now().UTC()
				return run, ctx.Err()
			}
		}
	}

	run.FinishedAt = e.cfg.Now().UTC()
	log.Info("discovery run finished",
		"trigger", trigger,
		"scanned", run.Scanned,
		"succeeded", run.Succeeded,
		"skipped", run.Skipped,
		"failed", run.Failed)

	if err := e.cfg.Store.CreateDiscoveryRun(ctx, run); err != nil {
		log.Error("failed to persist discovery run summary", "error", err)
	}

	return run, nil
}

func (e *Engine) processStore(ctx context.Context, sc *models.StoreConfig) models.StoreDiscoveryResult {
	log := e.cfg.Logger
	result := models.StoreDiscoveryResult{
		StoreKey:      sc.StoreKey,
		PreviousCount: len(sc.Categories),
		NewCount:      len(sc.Categories),
	}

	candidates := e.mineCandidates(sc)
	if len(candidates) == 0 {
		result.Status = models.DiscoveryStatusSkipped
		result.Reason = models.SkipNoNewTerms
		return result
	}

	selected := e.selectTerms(ctx, sc, candidates)
	if len(selected) == 0 {
		result.Status = models.DiscoveryStatusSkipped
		result.Reason = models.SkipNoSuitableTerms
		return result
	}

	// Promoted terms leave the observation pool; the rest stay for the
	// next run.
	remaining := make(map[string]models.CategoryObservation, len(sc.PotentialCategories))
	promoted := make(map[string]bool, len(selected))
	for _, term := range selected {
		promoted[term] = true
	}
	for term, obs := range sc.PotentialCategories {
		if !promoted[term] {
			remaining[term] = obs
		}
	}

	if err := e.cfg.Store.MergeCategories(ctx, sc.StoreKey, selected, remaining); err != nil {
		log.Error("category merge failed", "store_key", sc.StoreKey, "error", err)
		result.Status = models.DiscoveryStatusError
		result.Reason = err.Error()
		return result
	}

	result.Status = models.DiscoveryStatusSuccess
	result.SelectedTerms = selected
	result.NewCount = len(sc.Categories) + len(selected)
	log.Info("categories promoted",
		"store_key", sc.StoreKey,
		"terms", selected,
		"previous", result.PreviousCount,
		"new", result.NewCount)

	// Incremental reprocess: soft categories only, so the update is cheap
	// and existing embeddings are untouched.
	e.triggerReprocess(ctx, sc.StoreKey)

	return result
}

// mineCandidates returns observations whose term is not already an active
// category, in deterministic order (oldest first seen first) so fallback
// tie-breaking is reproducible.
func (e *Engine) mineCandidates(sc *models.StoreConfig) []models.CategoryCandidate {
	candidates := make([]models.CategoryCandidate, 0, len(sc.PotentialCategories))
	for term, obs := range sc.PotentialCategories {
		if sc.HasCategory(term) {
			continue
		}
		candidates = append(candidates, models.CategoryCandidate{
			Term:           term,
			Count:          obs.Count,
			FirstSeen:      obs.FirstSeen,
			LastSeen:       obs.LastSeen,
			ExampleQueries: obs.ExampleQueries,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FirstSeen.Equal(candidates[j].FirstSeen) {
			return candidates[i].Term < candidates[j].Term
		}
		return candidates[i].FirstSeen.Before(candidates[j].FirstSeen)
	})
	return candidates
}

// selectTerms asks the oracle for a selection and falls back to the
// deterministic scorer when the oracle is absent, fails, or returns nothing
// usable after filtering.
func (e *Engine) selectTerms(ctx context.Context, sc *models.StoreConfig, candidates []models.CategoryCandidate) []string {
	log := e.cfg.Logger

	if e.cfg.Oracle != nil {
		terms, err := e.cfg.Oracle.Rank(ctx, candidates, sc.Categories, e.cfg.MaxTerms)
		if err != nil {
			log.Warn("ranking oracle unavailable, using fallback scorer", "store_key", sc.StoreKey, "error", err)
		} else {
			filtered := filterSelection(terms, sc, candidates, e.cfg.MaxTerms)
			if len(filtered) > 0 {
				return filtered
			}
			log.Warn("oracle selection empty after validation, using fallback scorer", "store_key", sc.StoreKey, "raw_terms", terms)
		}
	}

	return rankDeterministic(candidates, e.cfg.MaxTerms, e.cfg.Now())
}

// filterSelection enforces the invariants the oracle is not trusted with:
// selected terms must be actual candidates, disjoint from the existing
// categories and from each other, and at most maxTerms many.
func filterSelection(terms []string, sc *models.StoreConfig, candidates []models.CategoryCandidate, maxTerms int) []string {
	isCandidate := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		isCandidate[c.Term] = true
	}

	seen := make(map[string]bool, len(terms))
	filtered := make([]string, 0, len(terms))
	for _, term := range terms {
		if len(filtered) >= maxTerms {
			break
		}
		if seen[term] || !isCandidate[term] || sc.HasCategory(term) {
			continue
		}
		seen[term] = true
		filtered = append(filtered, term)
	}
	return filtered
}

func (e *Engine) triggerReprocess(ctx context.Context, storeKey string) {
	log := e.cfg.Logger
	if e.cfg.Runner == nil || e.cfg.Catalog == nil || e.cfg.Proc == nil {
		return
	}

	items, err := e.cfg.Catalog.ListItems(ctx, storeKey)
	if err != nil {
		log.Error("failed to list items for incremental reprocess", "store_key", storeKey, "error", err)
		return
	}

	err = e.cfg.Runner.Start(ctx, storeKey, items, e.cfg.Proc, jobs.Options{
		Stages: pipeline.SoftCategoriesOnly(),
	})
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		// The merged categories are persisted; the next full run will
		// pick them up.
		log.Warn("reprocess already running, skipping incremental pass", "store_key", storeKey)
		return
	}
	if err != nil {
		log.Error("failed to start incremental reprocess", "store_key", storeKey, "error", err)
	}
}
