package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/catosphere/catosphere-go/internal/models"
)

type mergeCall struct {
	storeKey  string
	terms     []string
	remaining map[string]models.CategoryObservation
}

// fakeStore keeps configs in memory and applies merges with the same union
// semantics as the real store, so repeated engine runs observe their own
// effects.
type fakeStore struct {
	configs  map[string]*models.StoreConfig
	order    []string
	merges   []mergeCall
	runs     []*models.DiscoveryRun
	listErr  error
	mergeErr map[string]error
}

func newFakeStore(configs ...*models.StoreConfig) *fakeStore {
	s := &fakeStore{configs: map[string]*models.StoreConfig{}, mergeErr: map[string]error{}}
	for _, c := range configs {
		s.configs[c.StoreKey] = c
		s.order = append(s.order, c.StoreKey)
	}
	return s
}

func (s *fakeStore) ListStoreConfigs(ctx context.Context) ([]models.StoreConfig, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.StoreConfig, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.configs[key])
	}
	return out, nil
}

func (s *fakeStore) MergeCategories(ctx context.Context, storeKey string, terms []string, remaining map[string]models.CategoryObservation) error {
	if err := s.mergeErr[storeKey]; err != nil {
		return err
	}
	s.merges = append(s.merges, mergeCall{storeKey: storeKey, terms: terms, remaining: remaining})

	cfg := s.configs[storeKey]
	for _, term := range terms {
		if !cfg.HasCategory(term) {
			cfg.Categories = append(cfg.Categories, term)
		}
	}
	cfg.PotentialCategories = remaining
	return nil
}

func (s *fakeStore) CreateDiscoveryRun(ctx context.Context, run *models.DiscoveryRun) error {
	s.runs = append(s.runs, run)
	return nil
}

// fakeOracle returns fixed terms or a fixed error.
type fakeOracle struct {
	terms []string
	err   error
	calls int
}

func (o *fakeOracle) Rank(ctx context.Context, candidates []models.CategoryCandidate, existing []string, maxTerms int) ([]string, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.terms, nil
}

func obs(count int, firstSeen, lastSeen time.Time) models.CategoryObservation {
	return models.CategoryObservation{Count: count, FirstSeen: firstSeen, LastSeen: lastSeen}
}

func TestEngineFiltersOracleSelection(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(&models.StoreConfig{
		StoreKey:   "store-1",
		Categories: []string{"existing1"},
		PotentialCategories: map[string]models.CategoryObservation{
			"new1": obs(5, now.Add(-days(5)), now),
		},
	})
	oracle := &fakeOracle{terms: []string{"new1", "existing1"}}

	engine := NewEngine(Config{
		Store:  store,
		Oracle: oracle,
		Now:    func() time.Time { return now },
	})

	run, err := engine.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.merges) != 1 {
		t.Fatalf("merges = %d, want 1", len(store.merges))
	}
	merged := store.merges[0]
	if len(merged.terms) != 1 || merged.terms[0] != "new1" {
		t.Errorf("merged terms = %v, want [new1] (existing1 filtered)", merged.terms)
	}
	if run.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", run.Succeeded)
	}
	if got := store.configs["store-1"].Categories; len(got) != 2 {
		t.Errorf("categories after merge = %v, want existing1+new1", got)
	}
}

func TestEngineFallsBackWhenOracleFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(&models.StoreConfig{
		StoreKey: "store-1",
		PotentialCategories: map[string]models.CategoryObservation{
			"running shoes": obs(10, now.Add(-days(10)), now),
			"rain jackets":  obs(3, now.Add(-days(3)), now.Add(-days(3))),
		},
	})
	oracle := &fakeOracle{err: errors.New("model unavailable")}

	engine := NewEngine(Config{
		Store:    store,
		Oracle:   oracle,
		MaxTerms: 1,
		Now:      func() time.Time { return now },
	})

	run, err := engine.Run(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if oracle.calls != 1 {
		t.Errorf("oracle calls = %d, want 1", oracle.calls)
	}
	if run.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1 via fallback scorer", run.Succeeded)
	}
	// The fallback scorer ranks "running shoes" (39) above "rain jackets" (30.6)
	if terms := store.merges[0].terms; len(terms) != 1 || terms[0] != "running shoes" {
		t.Errorf("fallback selected %v, want [running shoes]", terms)
	}
}

func TestEngineSkipsWhenNoNewTerms(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&models.StoreConfig{
		StoreKey:   "store-1",
		Categories: []string{"shoes"},
		PotentialCategories: map[string]models.CategoryObservation{
			"shoes": obs(4, now, now),
		},
	})

	engine := NewEngine(Config{Store: store})
	run, err := engine.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Skipped != 1 || run.Succeeded != 0 {
		t.Fatalf("skipped=%d succeeded=%d, want 1/0", run.Skipped, run.Succeeded)
	}
	if run.Results[0].Reason != models.SkipNoNewTerms {
		t.Errorf("reason = %s, want %s", run.Results[0].Reason, models.SkipNoNewTerms)
	}
	if len(store.merges) != 0 {
		t.Errorf("merge called on skipped store")
	}
}

func TestEngineIgnoresStoresWithoutObservations(t *testing.T) {
	store := newFakeStore(&models.StoreConfig{StoreKey: "store-1", Categories: []string{"shoes"}})

	engine := NewEngine(Config{Store: store})
	run, err := engine.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Scanned != 0 || len(run.Results) != 0 {
		t.Errorf("scanned=%d results=%d, want store without observations untouched", run.Scanned, len(run.Results))
	}
}

func TestEngineSecondRunIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(&models.StoreConfig{
		StoreKey: "store-1",
		PotentialCategories: map[string]models.CategoryObservation{
			"new1": obs(5, now.Add(-days(5)), now),
		},
	})

	engine := NewEngine(Config{Store: store, Now: func() time.Time { return now }})

	first, err := engine.Run(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Succeeded != 1 {
		t.Fatalf("first run succeeded = %d, want 1", first.Succeeded)
	}

	// Promoted terms left the observation pool and joined the category
	// set: the second run finds nothing to do and never duplicates.
	second, err := engine.Run(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Succeeded != 0 {
		t.Errorf("second run succeeded = %d, want 0", second.Succeeded)
	}

	cats := store.configs["store-1"].Categories
	seen := map[string]int{}
	for _, c := range cats {
		seen[c]++
	}
	if seen["new1"] != 1 {
		t.Errorf("categories = %v, want new1 exactly once", cats)
	}
}

func TestEnginePerStoreErrorIsolation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(
		&models.StoreConfig{
			StoreKey: "broken",
			PotentialCategories: map[string]models.CategoryObservation{
				"t1": obs(2, now, now),
			},
		},
		&models.StoreConfig{
			StoreKey: "healthy",
			PotentialCategories: map[string]models.CategoryObservation{
				"t2": obs(2, now, now),
			},
		},
	)
	store.mergeErr["broken"] = errors.New("write conflict")

	engine := NewEngine(Config{Store: store, Now: func() time.Time { return now }})
	run, err := engine.Run(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Failed != 1 || run.Succeeded != 1 || run.Scanned != 2 {
		t.Errorf("failed=%d succeeded=%d scanned=%d, want 1/1/2", run.Failed, run.Succeeded, run.Scanned)
	}
	if len(store.runs) != 1 {
		t.Errorf("run summary not persisted")
	}
}

func TestEngineListFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("database unreachable")

	engine := NewEngine(Config{Store: store})
	if _, err := engine.Run(context.Background(), "scheduled"); err == nil {
		t.Fatal("expected fatal error when listing stores fails")
	}
}
