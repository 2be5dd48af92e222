package learning

import (
	"sort"
	"time"

	"adpilot/internal/types"
)

const (
	fatigueWindowDays = 30
	// fatigueMinFrequency is the exposure level below which a CTR dip is
	// treated as noise rather than creative wear-out.
	fatigueMinFrequency = 2.0
	// fatigueMinTransitions and fatigueMinSamples both gate the pass.
	fatigueMinTransitions = 20
	fatigueMinSamples     = 100
)

const fatiguePatternName = "creative_fatigue_threshold"

// learnFatigue looks for adjacent-day CTR declines at elevated frequency.
// A transition is a pair of snapshots for the same entity on consecutive
// calendar days where CTR dropped and the later day's frequency exceeds the
// wear-out floor. The pattern records the average frequency at which
// declines set in and the average CTR drop.
func (l *Learner) learnFatigue(now time.Time, snaps []*types.PerformanceSnapshot, scope types.PatternScope) PassResultWithPatterns {
	const pass = "fatigue"
	cutoff := now.AddDate(0, 0, -fatigueWindowDays)

	byEntity := make(map[string][]*types.PerformanceSnapshot)
	raw := 0
	for _, s := range snaps {
		if s.SnapshotDate.Before(cutoff) || s.HourOfDay != nil {
			continue
		}
		raw++
		byEntity[s.EntityID] = append(byEntity[s.EntityID], s)
	}

	if raw < fatigueMinSamples {
		return skipped(pass, "insufficient snapshots for fatigue analysis", raw)
	}

	var freqSum, declineSum float64
	transitions := 0
	for _, series := range byEntity {
		sort.Slice(series, func(i, j int) bool {
			return series[i].SnapshotDate.Before(series[j].SnapshotDate)
		})
		for i := 1; i < len(series); i++ {
			prev, cur := series[i-1], series[i]
			if !cur.SnapshotDate.Equal(prev.SnapshotDate.AddDate(0, 0, 1)) {
				continue
			}
			if cur.CTR >= prev.CTR || cur.Frequency <= fatigueMinFrequency {
				continue
			}
			transitions++
			freqSum += cur.Frequency
			declineSum += prev.CTR - cur.CTR
		}
	}

	if transitions < fatigueMinTransitions {
		return skipped(pass, "insufficient fatigue transitions", raw)
	}

	data := &types.FatigueData{
		AvgFrequency:  freqSum / float64(transitions),
		AvgCTRDecline: declineSum / float64(transitions),
		Transitions:   transitions,
	}

	p := l.newPattern(fatiguePatternName, scope, data, dataConfidence(transitions), raw)
	return learned(pass, raw, p)
}
