package learning

import (
	"time"

	"adpilot/internal/types"
)

const (
	// profileWindowDays is the lookback for winner/loser profiling.
	profileWindowDays = 7
	// profileMinSamples gates the pass on total qualifying snapshots.
	profileMinSamples = 50
	// profileMinCohort is the minimum entity count per cohort before a
	// percentile profile is worth storing.
	profileMinCohort = 10

	// Winner: roas > winnerROAS with spend >= profileMinSpend.
	// Loser: roas < loserROAS with spend >= profileMinSpend.
	winnerROAS      = 150.0
	loserROAS       = 50.0
	profileMinSpend = 50.0
)

// entityAggregate accumulates one entity's totals and metric means over the
// profiling window.
type entityAggregate struct {
	spend       float64
	revenue     float64
	conversions float64
	cpmSum      float64
	ctrSum      float64
	freqSum     float64
	days        int
}

// roas returns the aggregate return on ad spend (revenue/spend x 100).
func (a *entityAggregate) roas() float64 {
	if a.spend <= 0 {
		return 0
	}
	return a.revenue / a.spend * 100
}

// learnProfiles aggregates entities over the last 7 days, splits them into
// winner and loser cohorts, and stores a 25th-75th percentile band per
// feature for each cohort of at least profileMinCohort members.
func (l *Learner) learnProfiles(now time.Time, snaps []*types.PerformanceSnapshot, scope types.PatternScope) PassResultWithPatterns {
	const pass = "winner_loser_profile"
	cutoff := now.AddDate(0, 0, -profileWindowDays)

	aggs := make(map[string]*entityAggregate)
	qualifying := 0
	for _, s := range snaps {
		if s.SnapshotDate.Before(cutoff) || s.HourOfDay != nil {
			continue
		}
		qualifying++
		agg := aggs[s.EntityID]
		if agg == nil {
			agg = &entityAggregate{}
			aggs[s.EntityID] = agg
		}
		agg.spend += s.Spend
		agg.revenue += s.Revenue
		agg.conversions += s.Conversions
		agg.cpmSum += s.CPM
		agg.ctrSum += s.CTR
		agg.freqSum += s.Frequency
		agg.days++
	}

	if qualifying < profileMinSamples {
		return skipped(pass, "insufficient snapshots in profiling window", qualifying)
	}

	var winners, losers []*entityAggregate
	for _, agg := range aggs {
		if agg.spend < profileMinSpend {
			continue
		}
		switch r := agg.roas(); {
		case r > winnerROAS:
			winners = append(winners, agg)
		case r < loserROAS:
			losers = append(losers, agg)
		}
	}

	var patterns []*types.LearnedPattern
	if p := l.profilePattern("winner", winners, scope); p != nil {
		patterns = append(patterns, p)
	}
	if p := l.profilePattern("loser", losers, scope); p != nil {
		patterns = append(patterns, p)
	}

	if len(patterns) == 0 {
		return skipped(pass, "no cohort reached the minimum member count", qualifying)
	}
	return learned(pass, qualifying, patterns...)
}

// profilePattern builds the percentile-band profile for one cohort, or nil
// when the cohort is too small.
func (l *Learner) profilePattern(cohort string, members []*entityAggregate, scope types.PatternScope) *types.LearnedPattern {
	if len(members) < profileMinCohort {
		return nil
	}

	features := map[string][]float64{
		"spend":       make([]float64, 0, len(members)),
		"revenue":     make([]float64, 0, len(members)),
		"conversions": make([]float64, 0, len(members)),
		"roas":        make([]float64, 0, len(members)),
		"cpm":         make([]float64, 0, len(members)),
		"ctr":         make([]float64, 0, len(members)),
		"frequency":   make([]float64, 0, len(members)),
	}
	for _, m := range members {
		days := float64(m.days)
		features["spend"] = append(features["spend"], m.spend)
		features["revenue"] = append(features["revenue"], m.revenue)
		features["conversions"] = append(features["conversions"], m.conversions)
		features["roas"] = append(features["roas"], m.roas())
		features["cpm"] = append(features["cpm"], m.cpmSum/days)
		features["ctr"] = append(features["ctr"], m.ctrSum/days)
		features["frequency"] = append(features["frequency"], m.freqSum/days)
	}

	data := &types.PerformanceProfileData{
		Cohort:   cohort,
		Features: make(map[string]types.PercentileBand, len(features)),
		Members:  len(members),
	}
	for name, values := range features {
		data.Features[name] = types.PercentileBand{
			P25: percentile(values, 25),
			P75: percentile(values, 75),
		}
	}

	return l.newPattern(cohort+"_profile", scope, data, dataConfidence(len(members)), len(members))
}
