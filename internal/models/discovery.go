package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DiscoveryStatus classifies the outcome of one store within a discovery run.
type DiscoveryStatus string

const (
	DiscoveryStatusSuccess DiscoveryStatus = "success"
	DiscoveryStatusSkipped DiscoveryStatus = "skipped"
	DiscoveryStatusError   DiscoveryStatus = "error"
)

// Skip reasons recorded alongside DiscoveryStatusSkipped.
const (
	SkipNoNewTerms      = "no_new_terms"
	SkipNoSuitableTerms = "no_suitable_terms"
)

// StoreDiscoveryResult records what discovery did for a single store.
type StoreDiscoveryResult struct {
	StoreKey      string          `json:"store_key"`
	Status        DiscoveryStatus `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	SelectedTerms []string        `json:"selected_terms,omitempty"`
	PreviousCount int             `json:"previous_count"`
	NewCount      int             `json:"new_count"`
}

// DiscoveryRun is the persisted summary of one discovery engine pass.
type DiscoveryRun struct {
	ID         surrealmodels.RecordID `json:"id"`
	Trigger    string                 `json:"trigger"` // "scheduled" or "manual"
	Scanned    int                    `json:"scanned"`
	Succeeded  int                    `json:"succeeded"`
	Skipped    int                    `json:"skipped"`
	Failed     int                    `json:"failed"`
	Results    []StoreDiscoveryResult `json:"results,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}
