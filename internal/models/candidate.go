package models

import "time"

// CategoryCandidate is a potential-category observation flattened for
// ranking: the term plus its usage metadata.
type CategoryCandidate struct {
	Term           string    `json:"term"`
	Count          int       `json:"count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	ExampleQueries []string  `json:"example_queries,omitempty"`
}
