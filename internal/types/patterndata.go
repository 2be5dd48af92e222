package types

import (
	"encoding/json"
	"fmt"
)

// PatternPayload is the typed pattern_data payload of a LearnedPattern. The
// concrete type is determined by the pattern's PatternType; consumers switch
// on the concrete type rather than digging through an untyped blob.
type PatternPayload interface {
	// PatternType returns the pattern type this payload belongs to.
	PatternType() PatternType
}

// Compile-time assertions that every payload variant implements PatternPayload.
var (
	_ PatternPayload = (*TimeOfDayData)(nil)
	_ PatternPayload = (*PerformanceProfileData)(nil)
	_ PatternPayload = (*ClusterData)(nil)
	_ PatternPayload = (*FatigueData)(nil)
	_ PatternPayload = (*ExpertPriorData)(nil)
)

// HourPerformance is one hour bucket in a time-of-day pattern.
type HourPerformance struct {
	Hour           int       `json:"hour"`
	MeanROAS       float64   `json:"mean_roas"`
	SampleSize     int       `json:"sample_size"`
	Classification HourClass `json:"classification"`
}

// TimeOfDayData is the payload for PatternTimeOfDay: per-hour mean ROAS over
// the learning window, classified against the cross-hour mean.
type TimeOfDayData struct {
	Hours           []HourPerformance `json:"hours"`
	OverallMeanROAS float64           `json:"overall_mean_roas"`
}

// PatternType implements PatternPayload.
func (*TimeOfDayData) PatternType() PatternType { return PatternTimeOfDay }

// PercentileBand is the 25th-75th percentile range of one profile feature.
type PercentileBand struct {
	P25 float64 `json:"p25"`
	P75 float64 `json:"p75"`
}

// PerformanceProfileData is the payload for winner/loser profiling: for each
// feature, the interquartile band across the cohort.
type PerformanceProfileData struct {
	Cohort   string                    `json:"cohort"` // "winner" or "loser"
	Features map[string]PercentileBand `json:"features"`
	Members  int                       `json:"members"`
}

// PatternType implements PatternPayload.
func (d *PerformanceProfileData) PatternType() PatternType {
	if d.Cohort == "loser" {
		return PatternLoserProfile
	}
	return PatternWinnerProfile
}

// Cluster is one k-means cluster: its centroid in normalized feature space,
// size, and a terse qualitative label.
type Cluster struct {
	Label    string    `json:"label"`
	Size     int       `json:"size"`
	Centroid []float64 `json:"centroid"`
}

// ClusterData is the payload for PatternPerformanceClusters. Centroid
// coordinates are in min-max normalized [0,1] space; Features records the
// coordinate order. Clustering uses random centroid initialization, so
// repeated runs on the same data are best-effort, not reproducible.
type ClusterData struct {
	K          int       `json:"k"`
	Features   []string  `json:"features"`
	Clusters   []Cluster `json:"clusters"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
}

// PatternType implements PatternPayload.
func (*ClusterData) PatternType() PatternType { return PatternPerformanceClusters }

// FatigueData is the payload for PatternFatigueThreshold: the averaged
// frequency and CTR-decline magnitude across qualifying adjacent-day declines.
type FatigueData struct {
	AvgFrequency  float64 `json:"avg_frequency"`
	AvgCTRDecline float64 `json:"avg_ctr_decline"`
	Transitions   int     `json:"transitions"`
}

// PatternType implements PatternPayload.
func (*FatigueData) PatternType() PatternType { return PatternFatigueThreshold }

// ExpertPriorData is the payload for the expert_* pattern types: the
// aggregated conditions of a vertical's expert rules of one rule type.
type ExpertPriorData struct {
	Vertical    string         `json:"vertical"`
	RuleType    ExpertRuleType `json:"rule_type"`
	Conditions  RuleConditions `json:"conditions"`
	ExpertCount int            `json:"expert_count"`
	RuleCount   int            `json:"rule_count"`
}

// PatternType implements PatternPayload.
func (d *ExpertPriorData) PatternType() PatternType {
	switch d.RuleType {
	case ExpertKill:
		return PatternExpertKill
	case ExpertScale:
		return PatternExpertScale
	default:
		return PatternExpertBenchmark
	}
}

// DecodePatternData unmarshals a raw pattern_data JSONB payload into the
// concrete variant for the given pattern type. The switch is exhaustive over
// PatternType; an unknown type is an error rather than an untyped passthrough.
func DecodePatternData(pt PatternType, raw []byte) (PatternPayload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("pattern data: empty payload for type %q", pt)
	}

	var payload PatternPayload
	switch pt {
	case PatternTimeOfDay:
		payload = &TimeOfDayData{}
	case PatternWinnerProfile, PatternLoserProfile:
		payload = &PerformanceProfileData{}
	case PatternPerformanceClusters:
		payload = &ClusterData{}
	case PatternFatigueThreshold:
		payload = &FatigueData{}
	case PatternExpertKill, PatternExpertScale, PatternExpertBenchmark:
		payload = &ExpertPriorData{}
	default:
		return nil, fmt.Errorf("pattern data: unknown pattern type %q", pt)
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("pattern data: decode %q: %w", pt, err)
	}
	return payload, nil
}

// EncodePatternData marshals a typed payload for JSONB storage.
func EncodePatternData(p PatternPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("pattern data: nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("pattern data: encode %q: %w", p.PatternType(), err)
	}
	return data, nil
}
