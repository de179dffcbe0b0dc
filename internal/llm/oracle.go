package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/catosphere/catosphere-go/internal/models"
)

const rankSystemPrompt = `You are a product taxonomy assistant for e-commerce stores.
You are given candidate category terms mined from shopper queries, with usage
metadata, plus the store's existing categories. Select the candidates most
worth promoting to real categories.

Rules:
- Select at most the requested number of terms.
- Never select a term that is already an existing category.
- Never select the same term twice.
- Prefer terms with high counts and recent activity.

Respond with ONLY a JSON array of the selected terms, e.g. ["running shoes","rain jackets"].`

// RankingOracle asks an LLM to pick the best candidate category terms.
// Its output is advisory and must be validated by the caller: responses can
// repeat terms or include existing categories despite the prompt.
type RankingOracle struct {
	model *Model
}

// NewRankingOracle creates an oracle backed by the given model.
func NewRankingOracle(model *Model) *RankingOracle {
	return &RankingOracle{model: model}
}

// Rank selects up to maxTerms terms from candidates. Any error (provider
// down, unparseable response) is returned as-is so the caller can fall back
// to deterministic scoring.
func (o *RankingOracle) Rank(ctx context.Context, candidates []models.CategoryCandidate, existing []string, maxTerms int) ([]string, error) {
	payload, err := json.Marshal(map[string]any{
		"candidates":          candidates,
		"existing_categories": existing,
		"max_terms":           maxTerms,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rank request: %w", err)
	}

	response, err := o.model.GenerateWithSystem(ctx, rankSystemPrompt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}

	terms, err := parseTermList(response)
	if err != nil {
		return nil, fmt.Errorf("parse rank response: %w", err)
	}
	return terms, nil
}

// parseTermList extracts a JSON string array from an LLM response,
// tolerating markdown code fences and surrounding prose.
func parseTermList(response string) ([]string, error) {
	s := strings.TrimSpace(response)

	// Strip a markdown code fence if present
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Fall back to the first [...] span in the response
	if !strings.HasPrefix(s, "[") {
		start := strings.Index(s, "[")
		end := strings.LastIndex(s, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON array in response")
		}
		s = s[start : end+1]
	}

	var terms []string
	if err := json.Unmarshal([]byte(s), &terms); err != nil {
		return nil, fmt.Errorf("unmarshal term array: %w", err)
	}
	return terms, nil
}
