package tagsee

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rfidlab/tagpos/pkg"
)

// parseReadingBatch converts one WebSocket frame into readings. Heartbeat
// and error frames yield an empty batch. The read count is fixed at 1 per
// observation; a missing RSSI becomes 0.
func parseReadingBatch(data []byte, now time.Time) ([]*pkg.Reading, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if msg.ErrorCode != 0 || msg.Type != "reading" {
		return nil, nil
	}

	readings := make([]*pkg.Reading, 0, len(msg.Tags))
	for _, t := range msg.Tags {
		rssi := 0.0
		if t.RSSI != nil {
			rssi = *t.RSSI
		}
		readings = append(readings, &pkg.Reading{
			TagID:     t.EPC,
			AntennaID: antennaID(t.Antenna),
			ReadCount: 1,
			RSSI:      rssi,
			ReadTime:  t.timestamp(now),
		})
	}
	return readings, nil
}

// wsMessage is one WebSocket frame from the gateway. Heartbeats carry
// type "heartbeat"; reading frames carry type "reading" plus a tag list.
type wsMessage struct {
	ErrorCode int     `json:"errorCode"`
	Type      string  `json:"type"`
	Tags      []wsTag `json:"tags"`
}

// wsTag is one observed tag inside a reading frame. The antenna field is a
// number on some gateway firmwares and a string on others.
type wsTag struct {
	EPC           string      `json:"epc"`
	Antenna       interface{} `json:"antenna"`
	RSSI          *float64    `json:"rssi"`
	LastSeenTime  string      `json:"lastSeenTime"`
	FirstSeenTime string      `json:"firstSeenTime"`
	Timestamp     string      `json:"timestamp"`
}

// timestamp picks the best available read time: lastSeenTime, then
// firstSeenTime, then timestamp, falling back to now.
func (t *wsTag) timestamp(now time.Time) time.Time {
	for _, s := range []string{t.LastSeenTime, t.FirstSeenTime, t.Timestamp} {
		if s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return now
}

func antennaID(v interface{}) string {
	switch a := v.(type) {
	case string:
		return a
	case float64:
		return fmt.Sprintf("%d", int64(a))
	case json.Number:
		return a.String()
	default:
		return fmt.Sprint(a)
	}
}
