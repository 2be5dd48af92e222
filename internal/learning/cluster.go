package learning

import (
	"time"

	"adpilot/internal/types"
)

const (
	// clusterWindowDays is the lookback for clustering.
	clusterWindowDays = 7
	// clusterMinSpend filters out noise rows with negligible spend.
	clusterMinSpend = 10.0
	// clusterMinSamples gates the pass.
	clusterMinSamples = 50
	// clusterK is the fixed cluster count.
	clusterK = 4
	// clusterMaxIterations bounds the k-means loop when assignments
	// keep oscillating.
	clusterMaxIterations = 100
)

// clusterFeatures is the fixed feature vector order for clustering.
var clusterFeatures = []string{"cpm", "ctr", "cpc", "cpa", "roas", "frequency"}

// clusterPatternName is the fixed pattern_name for the cluster pattern.
const clusterPatternName = "performance_clusters"

// learnClusters runs k-means (k=4, Euclidean distance, random centroid
// initialization) over min-max normalized snapshot feature vectors from the
// last 7 days. Random initialization makes results non-deterministic across
// runs; the stored pattern is best-effort, not reproducible.
func (l *Learner) learnClusters(now time.Time, snaps []*types.PerformanceSnapshot, scope types.PatternScope) PassResultWithPatterns {
	const pass = "clustering"
	cutoff := now.AddDate(0, 0, -clusterWindowDays)

	var vectors [][]float64
	for _, s := range snaps {
		if s.SnapshotDate.Before(cutoff) || s.Spend <= clusterMinSpend || s.HourOfDay != nil {
			continue
		}
		vectors = append(vectors, []float64{s.CPM, s.CTR, s.CPC, s.CPA, s.ROAS, s.Frequency})
	}

	if len(vectors) < clusterMinSamples {
		return skipped(pass, "insufficient snapshots for clustering", len(vectors))
	}

	normalized := minMaxNormalize(vectors)
	centroids, assignments, iterations, converged := l.kmeans(normalized, clusterK)

	sizes := make([]int, clusterK)
	for _, c := range assignments {
		sizes[c]++
	}

	data := &types.ClusterData{
		K:          clusterK,
		Features:   clusterFeatures,
		Iterations: iterations,
		Converged:  converged,
	}
	for i, centroid := range centroids {
		data.Clusters = append(data.Clusters, types.Cluster{
			Label:    clusterLabel(centroid),
			Size:     sizes[i],
			Centroid: centroid,
		})
	}

	p := l.newPattern(clusterPatternName, scope, data, dataConfidence(len(vectors)), len(vectors))
	return learned(pass, len(vectors), p)
}

// kmeans clusters the normalized points into k clusters. It returns the
// final centroids, per-point assignments, the iteration count, and whether
// the loop converged (no point changed cluster) before the iteration cap.
func (l *Learner) kmeans(points [][]float64, k int) (centroids [][]float64, assignments []int, iterations int, converged bool) {
	dims := len(points[0])

	// Random initialization: pick k distinct points as starting centroids.
	centroids = make([][]float64, k)
	for i, idx := range l.rng.Perm(len(points))[:k] {
		centroids[i] = append([]float64(nil), points[idx]...)
	}

	assignments = make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}

	for iterations = 1; iterations <= clusterMaxIterations; iterations++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, euclidean(p, centroids[0])
			for c := 1; c < k; c++ {
				if d := euclidean(p, centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			converged = true
			break
		}

		// Recompute centroids as the mean of assigned points. Empty
		// clusters keep their previous centroid.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	if iterations > clusterMaxIterations {
		iterations = clusterMaxIterations
	}

	return centroids, assignments, iterations, converged
}

// clusterLabel derives a terse qualitative label from the mean normalized
// centroid value.
func clusterLabel(centroid []float64) string {
	switch m := mean(centroid); {
	case m > 0.7:
		return "high performers"
	case m > 0.5:
		return "above average"
	case m > 0.3:
		return "below average"
	default:
		return "low performers"
	}
}
