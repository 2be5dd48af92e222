package learning

import (
	"math"
	"testing"
)

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{10, 20, 30, 40}

	cases := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{25, 17.5},
		{50, 25},
		{75, 32.5},
		{100, 40},
	}
	for _, tc := range cases {
		if got := percentile(values, tc.p); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}

	// Input must survive untouched.
	if values[0] != 10 || values[3] != 40 {
		t.Error("percentile mutated its input")
	}
}

func TestMinMaxNormalizeZeroRangeColumn(t *testing.T) {
	rows := [][]float64{
		{0, 5, 100},
		{10, 5, 200},
		{5, 5, 150},
	}
	out := minMaxNormalize(rows)

	for i, row := range out {
		if row[1] != 0 {
			t.Errorf("row %d: zero-range column normalized to %v, want 0", i, row[1])
		}
		for d, v := range row {
			if v < 0 || v > 1 {
				t.Errorf("row %d dim %d: %v outside [0,1]", i, d, v)
			}
		}
	}
	if out[0][0] != 0 || out[1][0] != 1 || out[1][2] != 1 {
		t.Error("min-max endpoints did not map to 0 and 1")
	}
	if rows[1][0] != 10 {
		t.Error("minMaxNormalize mutated its input")
	}
}

func TestStddev(t *testing.T) {
	if got := stddev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); math.Abs(got-2) > 1e-9 {
		t.Errorf("stddev = %v, want 2", got)
	}
	if got := stddev(nil); got != 0 {
		t.Errorf("stddev(nil) = %v, want 0", got)
	}
}
