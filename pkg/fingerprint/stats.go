package fingerprint

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// colStats holds the four window statistics of one base column. All four
// are nil when the window had no valid observation for the column.
type colStats struct {
	mean   *float64
	min    *float64
	max    *float64
	stddev *float64
}

// computeColStats computes mean, min, max and population stddev over the
// valid (non-nil) values of one column across the given window rows.
// Results are rounded to four decimals, matching the precision the models
// were tuned against.
func computeColStats(window [][]*float64, col int) colStats {
	values := make([]float64, 0, len(window))
	for _, row := range window {
		if v := row[col]; v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return colStats{}
	}
	return colStats{
		mean:   round4(stat.Mean(values, nil)),
		min:    round4(floats.Min(values)),
		max:    round4(floats.Max(values)),
		stddev: round4(stat.PopStdDev(values, nil)),
	}
}

func round4(v float64) *float64 {
	r := math.Round(v*1e4) / 1e4
	return &r
}
