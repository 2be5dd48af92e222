package learning

import (
	"sort"
	"time"

	"adpilot/internal/types"
)

const (
	// timeOfDayWindow is the lookback for hourly bucketing.
	timeOfDayWindowDays = 30
	// timeOfDayMinSamples gates the pass.
	timeOfDayMinSamples = 100
	// Hours whose mean ROAS exceeds highHourMultiplier x the cross-hour
	// mean classify high; below lowHourMultiplier x classify low.
	highHourMultiplier = 1.2
	lowHourMultiplier  = 0.8
)

// timeOfDayPatternName is the fixed pattern_name for the hourly profile;
// scope distinguishes accounts, so one name suffices.
const timeOfDayPatternName = "hourly_roas_profile"

// learnTimeOfDay buckets the last 30 days of snapshots by hour_of_day,
// computes the mean ROAS per hour across spending snapshots, and classifies
// each hour against the overall cross-hour mean.
func (l *Learner) learnTimeOfDay(now time.Time, snaps []*types.PerformanceSnapshot, scope types.PatternScope) PassResultWithPatterns {
	const pass = "time_of_day"
	cutoff := now.AddDate(0, 0, -timeOfDayWindowDays)

	byHour := make(map[int][]float64)
	qualifying := 0
	for _, s := range snaps {
		if s.HourOfDay == nil || s.Spend <= 0 || s.SnapshotDate.Before(cutoff) {
			continue
		}
		qualifying++
		byHour[*s.HourOfDay] = append(byHour[*s.HourOfDay], s.ROAS)
	}

	if qualifying < timeOfDayMinSamples {
		return skipped(pass, "insufficient hourly snapshots", qualifying)
	}

	// Cross-hour mean: the mean of per-hour means, so hours with heavy
	// sampling do not drown out sparse ones.
	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	var overall float64
	hourMeans := make(map[int]float64, len(byHour))
	for _, h := range hours {
		m := mean(byHour[h])
		hourMeans[h] = m
		overall += m
	}
	overall /= float64(len(hours))

	data := &types.TimeOfDayData{OverallMeanROAS: overall}
	for _, h := range hours {
		hp := types.HourPerformance{
			Hour:           h,
			MeanROAS:       hourMeans[h],
			SampleSize:     len(byHour[h]),
			Classification: types.HourAverage,
		}
		switch {
		case hourMeans[h] > overall*highHourMultiplier:
			hp.Classification = types.HourHigh
		case hourMeans[h] < overall*lowHourMultiplier:
			hp.Classification = types.HourLow
		}
		data.Hours = append(data.Hours, hp)
	}

	p := l.newPattern(timeOfDayPatternName, scope, data, dataConfidence(qualifying), qualifying)
	return learned(pass, qualifying, p)
}
