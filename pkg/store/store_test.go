package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tagpos.db"), logx.NewLogger("error", "test"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Antennas(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertAntenna(ctx, &pkg.Antenna{ID: "ant2", X: 4, Y: 0}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.InsertAntenna(ctx, &pkg.Antenna{ID: "ant1", X: 0, Y: 0}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	t.Run("get", func(t *testing.T) {
		a, err := s.GetAntenna(ctx, "ant2")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if a == nil || a.X != 4 || a.Y != 0 {
			t.Errorf("unexpected antenna: %+v", a)
		}
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		a, err := s.GetAntenna(ctx, "nope")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if a != nil {
			t.Errorf("expected nil, got %+v", a)
		}
	})

	t.Run("list ordered by id", func(t *testing.T) {
		antennas, err := s.ListAntennas(ctx)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(antennas) != 2 || antennas[0].ID != "ant1" || antennas[1].ID != "ant2" {
			t.Errorf("unexpected list: %+v", antennas)
		}
	})

	t.Run("insert replaces existing", func(t *testing.T) {
		if err := s.InsertAntenna(ctx, &pkg.Antenna{ID: "ant1", X: 9, Y: 9}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		a, _ := s.GetAntenna(ctx, "ant1")
		if a.X != 9 {
			t.Errorf("expected replaced antenna, got %+v", a)
		}
	})
}

func TestStore_Tags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ref := &pkg.Tag{ID: "ref1", Role: pkg.RoleReference, TrueX: pkg.Float(1), TrueY: pkg.Float(2)}
	tar := &pkg.Tag{ID: "tar1", Role: pkg.RoleTarget}
	for _, tag := range []*pkg.Tag{ref, tar} {
		if err := s.InsertTag(ctx, tag); err != nil {
			t.Fatalf("insert %s failed: %v", tag.ID, err)
		}
	}

	t.Run("rejects invalid tag", func(t *testing.T) {
		err := s.InsertTag(ctx, &pkg.Tag{ID: "bad", Role: pkg.RoleReference})
		if err == nil {
			t.Error("expected validation error for reference tag without truth")
		}
	})

	t.Run("role filter", func(t *testing.T) {
		refs, err := s.ListTags(ctx, pkg.RoleReference)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(refs) != 1 || refs[0].ID != "ref1" {
			t.Errorf("unexpected reference tags: %+v", refs)
		}
		all, err := s.ListTags(ctx, "")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 tags, got %d", len(all))
		}
	})

	t.Run("rejects bad role filter", func(t *testing.T) {
		if _, err := s.ListTags(ctx, "bogus"); err == nil {
			t.Error("expected error for invalid role filter")
		}
	})

	t.Run("save prediction updates target only", func(t *testing.T) {
		if err := s.SavePrediction(ctx, "tar1", 3.5, 4.5); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		got, _ := s.GetTag(ctx, "tar1")
		if got.PredX == nil || *got.PredX != 3.5 || got.PredY == nil || *got.PredY != 4.5 {
			t.Errorf("unexpected prediction: %+v", got)
		}
		if err := s.SavePrediction(ctx, "ref1", 1, 1); err == nil {
			t.Error("expected error saving prediction on a reference tag")
		}
		if err := s.SavePrediction(ctx, "ghost", 1, 1); err == nil {
			t.Error("expected error saving prediction on an unknown tag")
		}
	})

	t.Run("mark read", func(t *testing.T) {
		if err := s.MarkRead(ctx, "tar1"); err != nil {
			t.Fatalf("mark read failed: %v", err)
		}
		got, _ := s.GetTag(ctx, "tar1")
		if !got.IsRead {
			t.Error("expected tag marked read")
		}
		// Unknown tags are a no-op, not an error.
		if err := s.MarkRead(ctx, "ghost"); err != nil {
			t.Errorf("expected no error for unknown tag, got %v", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		tar.TrueX = pkg.Float(7)
		tar.TrueY = pkg.Float(8)
		if err := s.UpdateTag(ctx, tar); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		got, _ := s.GetTag(ctx, "tar1")
		if got.TrueX == nil || *got.TrueX != 7 {
			t.Errorf("unexpected tag after update: %+v", got)
		}
		missing := &pkg.Tag{ID: "ghost", Role: pkg.RoleTarget}
		if err := s.UpdateTag(ctx, missing); err == nil {
			t.Error("expected error updating unknown tag")
		}
	})
}

func TestStore_Readings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456000, time.UTC)

	id, err := s.InsertReading(ctx, &pkg.Reading{
		TagID: "t1", AntennaID: "a1", ReadCount: 2, RSSI: -51.5, ReadTime: at,
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if id == 0 {
		t.Error("expected generated reading id")
	}

	batch := []*pkg.Reading{
		{TagID: "t1", AntennaID: "a2", ReadCount: 1, RSSI: -60, ReadTime: at.Add(time.Second)},
		{TagID: "t2", AntennaID: "a1", ReadCount: 1, RSSI: -55, ReadTime: at.Add(2 * time.Second)},
	}
	if err := s.InsertReadings(ctx, batch); err != nil {
		t.Fatalf("batch insert failed: %v", err)
	}

	t.Run("list all", func(t *testing.T) {
		readings, err := s.ListReadings(ctx)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(readings) != 3 {
			t.Fatalf("expected 3 readings, got %d", len(readings))
		}
	})

	t.Run("timestamp roundtrip keeps sub-second precision", func(t *testing.T) {
		readings, err := s.ReadingsByTag(ctx, "t1")
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		var found bool
		for _, r := range readings {
			if r.ReadTime.Equal(at) {
				found = true
			}
		}
		if !found {
			t.Errorf("no reading with exact timestamp %s in %+v", at, readings)
		}
	})

	t.Run("by tag", func(t *testing.T) {
		readings, _ := s.ReadingsByTag(ctx, "t1")
		if len(readings) != 2 {
			t.Errorf("expected 2 readings for t1, got %d", len(readings))
		}
	})

	t.Run("by antenna", func(t *testing.T) {
		readings, _ := s.ReadingsByAntenna(ctx, "a1")
		if len(readings) != 2 {
			t.Errorf("expected 2 readings for a1, got %d", len(readings))
		}
	})
}

func TestStore_Reset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.InsertAntenna(ctx, &pkg.Antenna{ID: "a1"})
	s.InsertTag(ctx, &pkg.Tag{ID: "tar1", Role: pkg.RoleTarget})
	s.InsertReading(ctx, &pkg.Reading{TagID: "tar1", AntennaID: "a1", RSSI: -50, ReadTime: time.Now()})

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	antennas, _ := s.ListAntennas(ctx)
	tags, _ := s.ListTags(ctx, "")
	readings, _ := s.ListReadings(ctx)
	if len(antennas) != 0 || len(tags) != 0 || len(readings) != 0 {
		t.Errorf("expected empty store, got %d antennas, %d tags, %d readings",
			len(antennas), len(tags), len(readings))
	}
}
