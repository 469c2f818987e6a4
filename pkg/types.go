package pkg

import (
	"fmt"
	"time"
)

// TagRole describes how a tag participates in positioning.
type TagRole string

const (
	// RoleReference marks a tag with trusted true coordinates, used to
	// supervise model training.
	RoleReference TagRole = "ref"
	// RoleTarget marks a tag whose coordinates must be predicted.
	RoleTarget TagRole = "tar"
)

// Valid reports whether the role is one of the two known roles.
func (r TagRole) Valid() bool {
	return r == RoleReference || r == RoleTarget
}

// Antenna is a fixed reader antenna. The installed position is kept for
// deployment records only; the positioning core uses antennas purely as a
// column axis.
type Antenna struct {
	ID string  `json:"antenna_id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Tag is an RFID tag known to the system. Optional coordinates are nil
// pointers when unknown. A reference tag always carries true coordinates
// and never predicted ones; a target tag receives predicted coordinates
// after evaluation.
type Tag struct {
	ID     string   `json:"tag_id"`
	Role   TagRole  `json:"role"`
	TrueX  *float64 `json:"true_x,omitempty"`
	TrueY  *float64 `json:"true_y,omitempty"`
	PredX  *float64 `json:"pred_x,omitempty"`
	PredY  *float64 `json:"pred_y,omitempty"`
	IsRead bool     `json:"is_read"`
}

// Validate enforces the role/coordinate invariants.
func (t *Tag) Validate() error {
	if !t.Role.Valid() {
		return fmt.Errorf("tag %s: role must be %q or %q, got %q", t.ID, RoleReference, RoleTarget, t.Role)
	}
	if t.Role == RoleReference {
		if t.TrueX == nil || t.TrueY == nil {
			return fmt.Errorf("tag %s: reference tag requires true coordinates", t.ID)
		}
		if t.PredX != nil || t.PredY != nil {
			return fmt.Errorf("tag %s: reference tag must not carry predicted coordinates", t.ID)
		}
	}
	return nil
}

// Reading is a single raw observation of a tag by an antenna. Readings are
// append-only; many readings accumulate per (tag, antenna) pair over time.
type Reading struct {
	ID        int64     `json:"reading_id,omitempty"`
	TagID     string    `json:"tag_id"`
	AntennaID string    `json:"antenna_id"`
	ReadCount int       `json:"rc"`
	RSSI      float64   `json:"rssi"`
	ReadTime  time.Time `json:"read_time"`
}

// Event is a timestamped system event kept in the telemetry ring buffer and
// optionally published over MQTT.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Float returns a pointer to v. Optional numeric fields throughout the
// system are *float64 so that a gap stays distinguishable from zero.
func Float(v float64) *float64 { return &v }
