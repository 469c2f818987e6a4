package fingerprint

import (
	"fmt"
	"sort"
)

// Extractor converts each tag's chronological FingerprintRow sequence into
// FeatureRows via a two-phase windowing rule: a fixed warm-up block whose
// statistics are repeated across all warm-up rows, then a trailing window
// that grows until it reaches windowSize and slides from there. The warm-up
// asymmetry is deliberate and must not be smoothed over.
type Extractor struct {
	warmupSize int
	windowSize int
}

// NewExtractor validates the window parameters.
func NewExtractor(warmupSize, windowSize int) (*Extractor, error) {
	if warmupSize <= 0 {
		return nil, fmt.Errorf("warmup size must be positive, got %d", warmupSize)
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	return &Extractor{warmupSize: warmupSize, windowSize: windowSize}, nil
}

// Extract produces exactly one FeatureRow per input FingerprintRow. Input
// rows must be ordered by tag id then timestamp (the assembler's contract);
// output rows are ordered by timestamp then tag id so downstream batch
// processing is timestamp-monotonic. antennaCount fixes the axis width k;
// every vector has length 10k.
func (e *Extractor) Extract(rows []*FingerprintRow, antennaCount int) []*FeatureRow {
	out := make([]*FeatureRow, 0, len(rows))
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].TagID == rows[start].TagID {
			end++
		}
		out = append(out, e.extractTag(rows[start:end], antennaCount)...)
		start = end
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].TagID < out[j].TagID
	})
	return out
}

// extractTag applies the two-phase rule to one tag's chronological rows.
func (e *Extractor) extractTag(rows []*FingerprintRow, antennaCount int) []*FeatureRow {
	n := len(rows)
	if n == 0 {
		return nil
	}
	base := make([][]*float64, n)
	for i, row := range rows {
		base[i] = baseColumns(row, antennaCount)
	}
	cols := 2 * antennaCount

	out := make([]*FeatureRow, n)

	// Warm-up phase: one statistic vector over the block [0, min(W0,n)-1],
	// assigned unchanged to every row of the block.
	warmupEnd := e.warmupSize
	if warmupEnd > n {
		warmupEnd = n
	}
	warmupStats := make([]colStats, cols)
	for c := 0; c < cols; c++ {
		warmupStats[c] = computeColStats(base[:warmupEnd], c)
	}
	for i := 0; i < warmupEnd; i++ {
		out[i] = buildFeatureRow(rows[i], base[i], warmupStats)
	}

	// Sliding phase: each row gets statistics over its own trailing window.
	for i := e.warmupSize; i < n; i++ {
		beg := i - e.windowSize + 1
		if beg < 0 {
			beg = 0
		}
		stats := make([]colStats, cols)
		for c := 0; c < cols; c++ {
			stats[c] = computeColStats(base[beg:i+1], c)
		}
		out[i] = buildFeatureRow(rows[i], base[i], stats)
	}

	return out
}

// baseColumns lays out a row's 2k base columns: RSSI per antenna, then
// read-count per antenna.
func baseColumns(row *FingerprintRow, antennaCount int) []*float64 {
	cols := make([]*float64, 0, 2*antennaCount)
	cols = append(cols, row.RSSI...)
	cols = append(cols, row.ReadCount...)
	return cols
}

// buildFeatureRow assembles the fixed-layout vector:
// [raw 2k, mean 2k, min 2k, max 2k, stddev 2k].
func buildFeatureRow(row *FingerprintRow, base []*float64, stats []colStats) *FeatureRow {
	cols := len(base)
	vector := make([]*float64, 0, 5*cols)
	vector = append(vector, base...)
	for _, s := range stats {
		vector = append(vector, s.mean)
	}
	for _, s := range stats {
		vector = append(vector, s.min)
	}
	for _, s := range stats {
		vector = append(vector, s.max)
	}
	for _, s := range stats {
		vector = append(vector, s.stddev)
	}
	return &FeatureRow{
		TagID:     row.TagID,
		Timestamp: row.Timestamp,
		TrueX:     row.TrueX,
		TrueY:     row.TrueY,
		Vector:    vector,
	}
}
