package runhist

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/positioning"
)

func openTestHistory(t *testing.T, limit int) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "runs.db"), limit, logx.NewLogger("error", "test"))
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func runResult(seq int) *positioning.RunResult {
	started := time.Date(2025, 3, 1, 12, 0, seq, 0, time.UTC)
	return &positioning.RunResult{
		RunID:     fmt.Sprintf("run-%s", started.Format("20060102T150405.000000000Z")),
		StartedAt: started,
		RowCount:  seq,
	}
}

func TestHistory_SaveAndGet(t *testing.T) {
	h := openTestHistory(t, 10)

	want := runResult(1)
	if err := h.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := h.Get(want.RunID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.RunID != want.RunID || got.RowCount != 1 {
		t.Errorf("unexpected run: %+v", got)
	}

	missing, err := h.Get("run-nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown run, got %+v", missing)
	}
}

func TestHistory_List_MostRecentFirst(t *testing.T) {
	h := openTestHistory(t, 10)
	for i := 1; i <= 3; i++ {
		if err := h.Save(runResult(i)); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	runs, err := h.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i, want := range []int{3, 2, 1} {
		if runs[i].RowCount != want {
			t.Errorf("run %d: row count %d, want %d", i, runs[i].RowCount, want)
		}
	}

	limited, err := h.List(2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 2 || limited[0].RowCount != 3 {
		t.Errorf("unexpected limited list: %+v", limited)
	}
}

func TestHistory_PrunesBeyondLimit(t *testing.T) {
	h := openTestHistory(t, 2)
	for i := 1; i <= 4; i++ {
		if err := h.Save(runResult(i)); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	runs, err := h.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 retained runs, got %d", len(runs))
	}
	// The oldest runs are pruned; the two newest survive.
	if runs[0].RowCount != 4 || runs[1].RowCount != 3 {
		t.Errorf("unexpected surviving runs: %d, %d", runs[0].RowCount, runs[1].RowCount)
	}

	old, err := h.Get(runResult(1).RunID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if old != nil {
		t.Error("expected pruned run to be gone")
	}
}

func TestHistory_PrunesManyInOneSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	logger := logx.NewLogger("error", "test")

	h, err := Open(path, 10, logger)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	for i := 1; i <= 6; i++ {
		if err := h.Save(runResult(i)); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopen with a smaller limit; the next save prunes five runs at once.
	h, err = Open(path, 2, logger)
	if err != nil {
		t.Fatalf("failed to reopen history: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	if err := h.Save(runResult(7)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err := h.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 retained runs, got %d", len(runs))
	}
	if runs[0].RowCount != 7 || runs[1].RowCount != 6 {
		t.Errorf("unexpected surviving runs: %d, %d", runs[0].RowCount, runs[1].RowCount)
	}
	for i := 1; i <= 5; i++ {
		got, err := h.Get(runResult(i).RunID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected run %d pruned, still present", i)
		}
	}
}
