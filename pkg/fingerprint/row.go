// Package fingerprint turns raw RFID readings into per-tag feature rows
// suitable for coordinate regression. It is a pure transformation layer:
// inputs come fully materialized from the store, outputs are ephemeral and
// recomputed on every pipeline run.
package fingerprint

import (
	"time"
)

// FingerprintRow is one wide row keyed by (tag, timestamp): one RSSI cell
// and one read-count cell per antenna on the shared antenna axis. A nil
// cell means the antenna produced no reading at that timestamp.
type FingerprintRow struct {
	TagID     string
	Timestamp time.Time
	RSSI      []*float64
	ReadCount []*float64
	TrueX     *float64
	TrueY     *float64
}

// FeatureRow is a FingerprintRow plus the engineered feature vector. The
// vector layout is fixed: raw RSSI per antenna, raw read-count per antenna,
// then mean, min, max and population stddev blocks over the 2k base
// columns, 10k entries total for k antennas. Identification fields trail
// as metadata and are never part of the vector.
type FeatureRow struct {
	TagID     string
	Timestamp time.Time
	TrueX     *float64
	TrueY     *float64
	Vector    []*float64
}

// VectorLength returns the feature-vector length for k antennas.
func VectorLength(antennaCount int) int {
	return 10 * antennaCount
}
