package learning

import (
	"context"
	"fmt"

	"adpilot/internal/types"
)

// Expert priors are trusted on authority, not on data volume, so their
// confidence is fixed rather than derived from sample size.
const (
	expertBaseConfidence = 0.85
	expertMaxConfidence  = 0.90
)

// seededRuleTypes are the expert rule types that produce patterns. Targeting
// and structure rules carry advice the rule evaluator cannot act on.
var seededRuleTypes = []types.ExpertRuleType{types.ExpertKill, types.ExpertScale, types.ExpertBenchmark}

// SeedExpertPriors aggregates the curated expert rules into global-scope
// patterns: one pattern per (vertical, rule type), named after the vertical.
// Unlike the data-driven passes this is not account-scoped and runs once per
// learning cycle.
func (l *Learner) SeedExpertPriors(ctx context.Context) (*LearnSummary, error) {
	verticals, err := l.experts.ListVerticals(ctx)
	if err != nil {
		return nil, fmt.Errorf("learner: list expert verticals: %w", err)
	}

	summary := &LearnSummary{}
	for _, vertical := range verticals {
		res := l.seedVertical(ctx, vertical)
		summary.Results = append(summary.Results, res.PassResult)
		if res.Skipped {
			summary.PassesSkipped++
			continue
		}

		for _, p := range res.patterns {
			if err := l.patterns.Upsert(ctx, p); err != nil {
				l.logger.ErrorContext(ctx, "expert prior upsert failed",
					"vertical", vertical,
					"pattern_type", string(p.PatternType),
					"error", err,
				)
				continue
			}
			summary.PatternsLearned++
		}
	}

	return summary, nil
}

func (l *Learner) seedVertical(ctx context.Context, vertical string) PassResultWithPatterns {
	pass := "expert_priors:" + vertical

	rules, err := l.experts.ListByVertical(ctx, vertical, seededRuleTypes...)
	if err != nil {
		l.logger.ErrorContext(ctx, "expert rule fetch failed", "vertical", vertical, "error", err)
		return skipped(pass, "expert rule fetch failed", 0)
	}
	if len(rules) == 0 {
		return skipped(pass, "no expert rules for vertical", 0)
	}

	byType := make(map[types.ExpertRuleType][]*types.ExpertRule)
	for _, r := range rules {
		byType[r.RuleType] = append(byType[r.RuleType], r)
	}

	var patterns []*types.LearnedPattern
	for _, rt := range seededRuleTypes {
		group := byType[rt]
		if len(group) == 0 {
			continue
		}

		data := &types.ExpertPriorData{
			Vertical:  vertical,
			RuleType:  rt,
			RuleCount: len(group),
		}
		for _, r := range group {
			data.Conditions = append(data.Conditions, r.Conditions...)
			if r.ExpertCount > data.ExpertCount {
				data.ExpertCount = r.ExpertCount
			}
		}

		// Global scope: priors apply to every account in the vertical.
		p := l.newPattern(vertical, types.PatternScope{}, data, expertConfidence(data.ExpertCount), len(group))
		patterns = append(patterns, p)
	}

	return learned(pass, len(rules), patterns...)
}

// expertConfidence nudges the fixed base confidence up with the number of
// experts backing the rule, never past the fixed ceiling.
func expertConfidence(expertCount int) float64 {
	conf := expertBaseConfidence + 0.01*float64(expertCount)
	if conf > expertMaxConfidence {
		return expertMaxConfidence
	}
	return conf
}
