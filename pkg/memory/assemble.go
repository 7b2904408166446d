package memory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/fragment"
)

// AssembleContext builds the prompt context for a query under a token budget.
//
// Historical snippets retrieved from the embedding index fill at most half
// the budget, ordered by descending similarity; the window's recent items
// take the remainder, oldest to newest. When the index is unavailable, the
// query embeds too slowly or nothing clears the similarity floor, the recent
// section gets the full budget. Sections are separated by a blank line.
func (e *Engine) AssembleContext(ctx context.Context, query string, tokenBudget int) (string, error) {
	if tokenBudget <= 0 {
		return "", nil
	}

	historical, used, sims := e.searchHistorical(ctx, query, tokenBudget/2)
	if len(sims) > 0 {
		e.window.SetQuerySimilarities(sims)
	}

	recentBudget := tokenBudget - used
	recent, err := e.window.PromptContext(ctx, recentBudget)
	if err != nil {
		return "", err
	}

	var sections []string
	if len(historical) > 0 {
		sections = append(sections, strings.Join(historical, "\n\n"))
	}
	if recent != "" {
		sections = append(sections, recent)
	}

	return strings.Join(sections, "\n\n"), nil
}

// searchHistorical embeds the query and collects stored snippets by
// descending similarity until the budget is spent. Failures and timeouts
// degrade to an empty result; assembly carries on recent-only.
func (e *Engine) searchHistorical(ctx context.Context, query string, tokenBudget int) ([]string, int, map[string]float64) {
	if e.vectors == nil || e.embedder == nil || query == "" || tokenBudget <= 0 {
		return nil, 0, nil
	}

	qctx, cancel := context.WithTimeout(ctx, e.config.RetrievalTimeout)
	defer cancel()

	embedding, err := e.embedder.Embed(qctx, query)
	if err != nil {
		e.logger.Debug("historical retrieval degraded", zap.Error(err))
		return nil, 0, nil
	}

	results, err := e.vectors.Query(qctx, embedding, DefaultRetrievalTopK)
	if err != nil {
		e.logger.Debug("historical retrieval degraded", zap.Error(err))
		return nil, 0, nil
	}

	inWindow := make(map[string]struct{})
	for _, item := range e.window.Items() {
		inWindow[item.Hash] = struct{}{}
	}

	sims := make(map[string]float64, len(results))
	var parts []string
	used := 0
	for _, result := range results {
		sims[result.Hash] = result.Score

		if result.Score < e.config.MinSimilarity {
			continue
		}
		// The window already covers this entry in the recent section.
		if _, ok := inWindow[result.Hash]; ok {
			continue
		}

		content, err := e.store.Get(ctx, result.Hash)
		if err != nil {
			e.logger.Debug("skipping unservable historical entry",
				zap.String("hash", result.Hash),
				zap.Error(err),
			)
			continue
		}

		tokens := fragment.TokenEstimate(len(content))
		if used+tokens > tokenBudget {
			continue
		}

		parts = append(parts, string(content))
		used += tokens
	}

	return parts, used, sims
}
