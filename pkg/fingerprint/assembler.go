package fingerprint

import (
	"sort"
	"time"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/logx"
)

// Assembler joins raw readings into one FingerprintRow per distinct
// (tag, timestamp) over a fixed antenna axis.
type Assembler struct {
	axis   []string
	index  map[string]int
	truthX map[string]*float64
	truthY map[string]*float64
	logger *logx.Logger
}

// NewAssembler derives the antenna axis (antenna ids sorted ascending) and
// the tag ground-truth map. The axis ordering is the column layout for all
// downstream stages.
func NewAssembler(antennas []*pkg.Antenna, tags []*pkg.Tag, logger *logx.Logger) *Assembler {
	axis := make([]string, 0, len(antennas))
	for _, a := range antennas {
		axis = append(axis, a.ID)
	}
	sort.Strings(axis)

	index := make(map[string]int, len(axis))
	for i, id := range axis {
		index[id] = i
	}

	truthX := make(map[string]*float64, len(tags))
	truthY := make(map[string]*float64, len(tags))
	for _, t := range tags {
		truthX[t.ID] = t.TrueX
		truthY[t.ID] = t.TrueY
	}

	return &Assembler{axis: axis, index: index, truthX: truthX, truthY: truthY, logger: logger}
}

// Axis returns the antenna axis in column order.
func (a *Assembler) Axis() []string {
	return a.axis
}

// cell accumulates duplicate readings for one (tag, timestamp, antenna)
// triple; duplicates are averaged.
type cell struct {
	sum   float64
	count int
}

type rowKey struct {
	tagID string
	ts    int64 // UnixNano
}

// Assemble groups readings by (tag, timestamp) and lays them out on the
// antenna axis. Antennas with no reading at a timestamp leave their cells
// nil. True coordinates are merged by tag id as a left join: tags without
// known truth get nil coordinates, and readings of tags missing from the
// tag list still produce rows. Readings for antennas outside the axis are
// skipped, which is the one declared way this join drops data.
// Output rows are ordered by tag id, then timestamp ascending.
func (a *Assembler) Assemble(readings []*pkg.Reading) []*FingerprintRow {
	k := len(a.axis)
	rssi := make(map[rowKey][]*cell)
	rc := make(map[rowKey][]*cell)
	skipped := 0

	for _, r := range readings {
		col, ok := a.index[r.AntennaID]
		if !ok {
			skipped++
			continue
		}
		key := rowKey{tagID: r.TagID, ts: r.ReadTime.UnixNano()}
		if _, ok := rssi[key]; !ok {
			rssi[key] = make([]*cell, k)
			rc[key] = make([]*cell, k)
		}
		addCell(rssi[key], col, r.RSSI)
		addCell(rc[key], col, float64(r.ReadCount))
	}

	if skipped > 0 {
		a.logger.Warn("readings skipped for unknown antennas", "count", skipped)
	}

	keys := make([]rowKey, 0, len(rssi))
	for key := range rssi {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tagID != keys[j].tagID {
			return keys[i].tagID < keys[j].tagID
		}
		return keys[i].ts < keys[j].ts
	})

	rows := make([]*FingerprintRow, 0, len(keys))
	for _, key := range keys {
		row := &FingerprintRow{
			TagID:     key.tagID,
			Timestamp: timeFromUnixNano(key.ts),
			RSSI:      finalize(rssi[key]),
			ReadCount: finalize(rc[key]),
			TrueX:     a.truthX[key.tagID],
			TrueY:     a.truthY[key.tagID],
		}
		rows = append(rows, row)
	}
	return rows
}

func timeFromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func addCell(cells []*cell, col int, v float64) {
	if cells[col] == nil {
		cells[col] = &cell{}
	}
	cells[col].sum += v
	cells[col].count++
}

func finalize(cells []*cell) []*float64 {
	out := make([]*float64, len(cells))
	for i, c := range cells {
		if c == nil {
			continue
		}
		out[i] = pkg.Float(c.sum / float64(c.count))
	}
	return out
}
