package tagsee

import (
	"testing"
	"time"
)

func TestParseReadingBatch(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("reading frame", func(t *testing.T) {
		frame := []byte(`{
			"errorCode": 0,
			"type": "reading",
			"tags": [
				{"epc": "E200001", "antenna": 1, "rssi": -51.5, "lastSeenTime": "2025-03-01T11:59:58.123456Z"},
				{"epc": "E200002", "antenna": "2", "rssi": -60}
			]
		}`)
		readings, err := parseReadingBatch(frame, now)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if len(readings) != 2 {
			t.Fatalf("expected 2 readings, got %d", len(readings))
		}

		first := readings[0]
		if first.TagID != "E200001" || first.AntennaID != "1" || first.RSSI != -51.5 {
			t.Errorf("unexpected first reading: %+v", first)
		}
		if first.ReadCount != 1 {
			t.Errorf("expected read count 1, got %d", first.ReadCount)
		}
		want := time.Date(2025, 3, 1, 11, 59, 58, 123456000, time.UTC)
		if !first.ReadTime.Equal(want) {
			t.Errorf("expected read time %s, got %s", want, first.ReadTime)
		}

		second := readings[1]
		if second.AntennaID != "2" {
			t.Errorf("expected string antenna id preserved, got %q", second.AntennaID)
		}
		if !second.ReadTime.Equal(now) {
			t.Errorf("expected fallback to now, got %s", second.ReadTime)
		}
	})

	t.Run("heartbeat yields no readings", func(t *testing.T) {
		readings, err := parseReadingBatch([]byte(`{"errorCode":0,"type":"heartbeat"}`), now)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if readings != nil {
			t.Errorf("expected nil batch, got %+v", readings)
		}
	})

	t.Run("error frame yields no readings", func(t *testing.T) {
		readings, err := parseReadingBatch([]byte(`{"errorCode":5,"type":"reading","tags":[{"epc":"x"}]}`), now)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if readings != nil {
			t.Errorf("expected nil batch, got %+v", readings)
		}
	})

	t.Run("malformed frame is an error", func(t *testing.T) {
		if _, err := parseReadingBatch([]byte(`not json`), now); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("missing rssi becomes zero", func(t *testing.T) {
		frame := []byte(`{"errorCode":0,"type":"reading","tags":[{"epc":"E1","antenna":3}]}`)
		readings, err := parseReadingBatch(frame, now)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if readings[0].RSSI != 0 {
			t.Errorf("expected rssi 0, got %v", readings[0].RSSI)
		}
	})
}

func TestWSTag_TimestampPreference(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("lastSeenTime wins", func(t *testing.T) {
		tag := &wsTag{
			LastSeenTime:  "2025-03-01T10:00:00Z",
			FirstSeenTime: "2025-03-01T09:00:00Z",
			Timestamp:     "2025-03-01T08:00:00Z",
		}
		if got := tag.timestamp(now); got.Hour() != 10 {
			t.Errorf("expected lastSeenTime, got %s", got)
		}
	})

	t.Run("falls through unparsable values", func(t *testing.T) {
		tag := &wsTag{LastSeenTime: "garbage", FirstSeenTime: "2025-03-01 09:00:00.5"}
		got := tag.timestamp(now)
		if got.Hour() != 9 || got.Nanosecond() != 500000000 {
			t.Errorf("expected firstSeenTime with space layout, got %s", got)
		}
	})

	t.Run("all empty falls back to now", func(t *testing.T) {
		if got := (&wsTag{}).timestamp(now); !got.Equal(now) {
			t.Errorf("expected now, got %s", got)
		}
	})
}
