package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// CategoryObservation is a mined candidate classification term awaiting
// promotion, keyed by term inside StoreConfig.PotentialCategories. Written
// by the query-analysis path, consumed (and cleared) by category discovery.
type CategoryObservation struct {
	Count          int       `json:"count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	ExampleQueries []string  `json:"example_queries,omitempty"`
}

// StoreConfig is the per-store configuration aggregate. It is owned by the
// onboarding merge logic; the job runner and the discovery engine read it,
// and discovery additionally merges promoted terms into Categories.
type StoreConfig struct {
	ID       surrealmodels.RecordID `json:"id"`
	StoreKey string                 `json:"store_key"`
	Platform string                 `json:"platform"`

	// Credentials are opaque to this backend; they are validated against
	// the platform's admin API once during onboarding and passed through
	// to the sync pipeline.
	Credentials map[string]string `json:"credentials,omitempty"`

	// Categories is the active category set: the live classification
	// terms. It grows monotonically via discovery merges and is replaced
	// wholesale (not merged) by re-onboarding overrides.
	Categories     []string `json:"categories"`
	SoftCategories []string `json:"soft_categories,omitempty"`
	Types          []string `json:"types,omitempty"`
	SyncMode       string   `json:"sync_mode,omitempty"`

	PotentialCategories map[string]CategoryObservation `json:"potential_categories,omitempty"`

	// OnboardedAt is set exactly once, on first successful onboarding.
	// Its presence distinguishes re-onboarding from first-time setup and
	// gates trial-start semantics downstream.
	OnboardedAt *time.Time `json:"onboarded_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FirstTime reports whether this config has never completed onboarding.
func (c *StoreConfig) FirstTime() bool {
	return c.OnboardedAt == nil
}

// HasCategory reports whether term is already in the active category set.
func (c *StoreConfig) HasCategory(term string) bool {
	for _, t := range c.Categories {
		if t == term {
			return true
		}
	}
	return false
}
