// Package discovery implements the scheduled category-discovery engine:
// it mines potential-category observations, ranks candidates via an LLM
// oracle with a deterministic fallback, merges the winners into each
// store's active category set, and triggers an incremental reprocess.
package discovery

import (
	"sort"
	"time"

	"github.com/catosphere/catosphere-go/internal/models"
)

// Scoring weights for the deterministic fallback ranker.
const (
	countWeight       = 0.5
	recencyWeight     = 0.3
	persistenceWeight = 0.2
)

// score computes the deterministic rank score for one candidate:
// recently-seen, long-lived, frequently-observed terms score highest.
func score(c models.CategoryCandidate, now time.Time) float64 {
	recency := 100 - daysBetween(c.LastSeen, now)
	if recency < 0 {
		recency = 0
	}
	persistence := daysBetween(c.FirstSeen, c.LastSeen) * 2
	if persistence > 100 {
		persistence = 100
	}
	return countWeight*float64(c.Count) + recencyWeight*recency + persistenceWeight*persistence
}

// rankDeterministic sorts candidates by descending score and returns the top
// maxTerms terms. The sort is stable, so ties keep their input order and the
// result is reproducible.
func rankDeterministic(candidates []models.CategoryCandidate, maxTerms int, now time.Time) []string {
	ranked := make([]models.CategoryCandidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i], now) > score(ranked[j], now)
	})

	if maxTerms > len(ranked) {
		maxTerms = len(ranked)
	}
	terms := make([]string, 0, maxTerms)
	for _, c := range ranked[:maxTerms] {
		terms = append(terms, c.Term)
	}
	return terms
}

func daysBetween(from, to time.Time) float64 {
	d := to.Sub(from).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}
