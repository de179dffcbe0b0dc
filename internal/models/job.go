// Package models defines data structures persisted by the Catosphere backend.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobState represents the lifecycle state of a reprocessing job.
type JobState string

const (
	JobStateIdle    JobState = "idle"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateError   JobState = "error"
	JobStateStopped JobState = "stopped"
)

// Terminal reports whether the state is a terminal state.
// Terminal states return to idle only via a new start.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateError || s == JobStateStopped
}

// JobRecord is the persisted status of the one job tracked per store key.
// It is a point-in-time snapshot, not an audit trail: every state write
// replaces the previous record.
type JobRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	StoreKey   string                 `json:"store_key"`
	State      JobState               `json:"state"`
	Progress   int                    `json:"progress"` // 0-100
	Done       int                    `json:"done"`
	Total      int                    `json:"total"`
	Logs       []string               `json:"logs,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// IdleJobRecord returns the synthesized default for a store key with no
// persisted record. Absence is a valid idle state, never an error.
func IdleJobRecord(storeKey string) JobRecord {
	return JobRecord{
		StoreKey: storeKey,
		State:    JobStateIdle,
	}
}
