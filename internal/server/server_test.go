package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/catosphere/catosphere-go/internal/discovery"
	"github.com/catosphere/catosphere-go/internal/jobs"
	"github.com/catosphere/catosphere-go/internal/models"
	"github.com/catosphere/catosphere-go/internal/onboarding"
	"github.com/catosphere/catosphere-go/internal/pipeline"
	"github.com/catosphere/catosphere-go/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type memStateStore struct {
	mu      sync.Mutex
	records map[string]models.JobRecord
}

func newMemStateStore() *memStateStore {
	return &memStateStore{records: map[string]models.JobRecord{}}
}

func (s *memStateStore) SetState(ctx context.Context, storeKey string, state models.JobState, progress, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[storeKey]
	rec.StoreKey = storeKey
	rec.State = state
	rec.Progress = progress
	rec.Done = done
	rec.Total = total
	rec.UpdatedAt = time.Now()
	if state == models.JobStateRunning && done == 0 {
		now := time.Now()
		rec.StartedAt = &now
		rec.FinishedAt = nil
		rec.Logs = nil
	}
	if state.Terminal() {
		now := time.Now()
		rec.FinishedAt = &now
	}
	s.records[storeKey] = rec
	return nil
}

func (s *memStateStore) GetState(ctx context.Context, storeKey string) (models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey]
	if !ok {
		return models.IdleJobRecord(storeKey), nil
	}
	return rec, nil
}

func (s *memStateStore) AppendLog(ctx context.Context, storeKey, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[storeKey]
	rec.StoreKey = storeKey
	rec.Logs = append(rec.Logs, message)
	s.records[storeKey] = rec
	return nil
}

type memSentinel struct {
	mu    sync.Mutex
	armed map[string]bool
}

func newMemSentinel() *memSentinel {
	return &memSentinel{armed: map[string]bool{}}
}

func (s *memSentinel) Arm(ctx context.Context, storeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed[storeKey] = true
	return nil
}

func (s *memSentinel) IsArmed(ctx context.Context, storeKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed[storeKey], nil
}

func (s *memSentinel) Disarm(ctx context.Context, storeKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.armed[storeKey]
	delete(s.armed, storeKey)
	return was, nil
}

type staticCatalog struct {
	items []pipeline.Item
	err   error
}

func (c *staticCatalog) ListItems(ctx context.Context, storeKey string) ([]pipeline.Item, error) {
	return c.items, c.err
}

type discoveryStore struct {
	mu   sync.Mutex
	runs []models.DiscoveryRun
}

func (s *discoveryStore) ListStoreConfigs(ctx context.Context) ([]models.StoreConfig, error) {
	return nil, nil
}

func (s *discoveryStore) MergeCategories(ctx context.Context, storeKey string, terms []string, remaining map[string]models.CategoryObservation) error {
	return nil
}

func (s *discoveryStore) CreateDiscoveryRun(ctx context.Context, run *models.DiscoveryRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *discoveryStore) ListDiscoveryRuns(ctx context.Context, limit int) ([]models.DiscoveryRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DiscoveryRun(nil), s.runs...), nil
}

type memConfigStore struct {
	mu      sync.Mutex
	configs map[string]*models.StoreConfig
}

func (s *memConfigStore) GetStoreConfig(ctx context.Context, storeKey string) (*models.StoreConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[storeKey]
	if !ok {
		return nil, nil
	}
	copied := *cfg
	return &copied, nil
}

func (s *memConfigStore) UpsertStoreConfig(ctx context.Context, storeKey string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs == nil {
		s.configs = map[string]*models.StoreConfig{}
	}
	cfg, ok := s.configs[storeKey]
	if !ok {
		cfg = &models.StoreConfig{StoreKey: storeKey}
		s.configs[storeKey] = cfg
	}
	if v, ok := fields["platform"]; ok {
		cfg.Platform = v.(string)
	}
	if v, ok := fields["credentials"]; ok {
		cfg.Credentials = v.(map[string]string)
	}
	if v, ok := fields["categories"]; ok {
		cfg.Categories = v.([]string)
	}
	if v, ok := fields["types"]; ok {
		cfg.Types = v.([]string)
	}
	if cfg.OnboardedAt == nil {
		now := time.Now()
		cfg.OnboardedAt = &now
	}
	return nil
}

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(ctx context.Context, platform string, creds map[string]string) (bool, error) {
	return true, nil
}

type nilResolver struct{}

func (nilResolver) Resolve(ctx context.Context, token string) (*onboarding.Identity, error) {
	return nil, nil
}

type env struct {
	states *memStateStore
	store  *discoveryStore
	server *httptest.Server
}

func newTestEnv(t *testing.T, catalog pipeline.Catalog) *env {
	t.Helper()
	logger := testLogger()

	states := newMemStateStore()
	runner := jobs.NewRunner(states, newMemSentinel(), logger)

	store := &discoveryStore{}
	engine := discovery.NewEngine(discovery.Config{Store: store, Logger: logger})
	sched, err := scheduler.New(engine, "03:30", logger)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	onboardingSvc := onboarding.NewService(&memConfigStore{}, nilResolver{}, acceptAllValidator{}, logger)

	proc := pipeline.ProcessorFunc(func(ctx context.Context, storeKey string, item pipeline.Item, stages pipeline.Stages) error {
		return nil
	})

	srv := New(states, runner, catalog, proc, onboardingSvc, sched, store, logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &env{states: states, store: store, server: ts}
}

func (e *env) request(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})
	resp, _ := e.request(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestJobStatusDefaultsToIdle(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})

	resp, body := e.request(t, http.MethodGet, "/api/stores/unknown/job", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var status jobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != models.JobStateIdle {
		t.Errorf("state = %q, want idle for unknown store", status.State)
	}
	if status.StoreKey != "unknown" {
		t.Errorf("store_key = %q", status.StoreKey)
	}
}

func TestReprocessRunsToCompletion(t *testing.T) {
	catalog := &staticCatalog{items: []pipeline.Item{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}}
	e := newTestEnv(t, catalog)

	resp, body := e.request(t, http.MethodPost, "/api/stores/shop/reprocess", nil, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", resp.StatusCode, body)
	}
	var started reprocessResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Total != 3 {
		t.Errorf("total = %d, want 3", started.Total)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, _ := e.states.GetState(context.Background(), "shop")
		if rec.State == models.JobStateDone {
			if rec.Progress != 100 || rec.Done != 3 {
				t.Errorf("final record = %+v", rec)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached done")
}

func TestReprocessCatalogFailure(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{err: context.DeadlineExceeded})

	resp, _ := e.request(t, http.MethodPost, "/api/stores/shop/reprocess", nil, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when catalog listing fails", resp.StatusCode)
	}
}

func TestStopIsIdempotentOverHTTP(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})

	resp, body := e.request(t, http.MethodPost, "/api/stores/shop/job/stop", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var stop stopResponse
	if err := json.Unmarshal(body, &stop); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stop.Stopped || stop.Detail != "already stopped" {
		t.Errorf("response = %+v, want already stopped with no job running", stop)
	}

	// second stop is identical
	resp, _ = e.request(t, http.MethodPost, "/api/stores/shop/job/stop", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("second stop status = %d, want 200", resp.StatusCode)
	}
}

func TestOnboardRequiresToken(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})

	resp, _ := e.request(t, http.MethodPost, "/api/onboard", map[string]any{}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", resp.StatusCode)
	}
}

func TestOnboardValidationFailure(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})

	headers := map[string]string{"Authorization": "Bearer tok"}
	resp, _ := e.request(t, http.MethodPost, "/api/onboard", map[string]any{
		"store_key": "shop",
	}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for incomplete first-time payload", resp.StatusCode)
	}
}

func TestOnboardFirstTime(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})

	headers := map[string]string{"X-Catosphere-Token": "tok"}
	resp, body := e.request(t, http.MethodPost, "/api/onboard", map[string]any{
		"store_key":   "shop",
		"platform":    "shopify",
		"credentials": map[string]string{"api_key": "k"},
		"categories":  []string{"shoes"},
		"types":       []string{"apparel"},
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}

	var cfg struct {
		StoreKey    string     `json:"store_key"`
		Platform    string     `json:"platform"`
		OnboardedAt *time.Time `json:"onboarded_at"`
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.StoreKey != "shop" || cfg.OnboardedAt == nil {
		t.Errorf("config = %+v", cfg)
	}
}

func TestDiscoveryTriggerAndRuns(t *testing.T) {
	e := newTestEnv(t, &staticCatalog{})

	resp, _ := e.request(t, http.MethodPost, "/api/discovery/run", nil, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("trigger status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := e.request(t, http.MethodGet, "/api/discovery/runs", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("runs status = %d", resp.StatusCode)
		}
		var runs []struct {
			Trigger string `json:"trigger"`
		}
		if err := json.Unmarshal(body, &runs); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(runs) == 1 {
			if runs[0].Trigger != "manual" {
				t.Errorf("trigger = %q, want manual", runs[0].Trigger)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("manual trigger never produced a persisted run")
}
