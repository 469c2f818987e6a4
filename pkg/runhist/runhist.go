// Package runhist persists pipeline run summaries in a bbolt database so
// past accuracy stays inspectable across daemon restarts.
package runhist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/positioning"
)

const runsBucket = "runs"

// History stores run results keyed by run id. Run ids embed the start
// timestamp, so bucket order is chronological.
type History struct {
	db     *bolt.DB
	limit  int
	logger *logx.Logger
}

// Open opens (creating if needed) the history database. At most limit runs
// are retained; older ones are pruned on save.
func Open(path string, limit int, logger *logx.Logger) (*History, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}
	return &History{db: db, limit: limit, logger: logger}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Save stores one run result and prunes beyond the retention limit.
func (h *History) Save(result *positioning.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	return h.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))
		if err := bucket.Put([]byte(result.RunID), data); err != nil {
			return err
		}

		count := 0
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			count++
		}
		excess := count - h.limit
		if excess <= 0 {
			return nil
		}
		// Deleting through the cursor keeps the iteration position valid.
		for k, _ := cursor.First(); k != nil && excess > 0; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

// Get fetches one run by id. Returns nil when not found.
func (h *History) Get(runID string) (*positioning.RunResult, error) {
	var result *positioning.RunResult
	err := h.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(runID))
		if data == nil {
			return nil
		}
		result = &positioning.RunResult{}
		return json.Unmarshal(data, result)
	})
	return result, err
}

// List returns up to limit runs, most recent first (0 means all).
func (h *History) List(limit int) ([]*positioning.RunResult, error) {
	var results []*positioning.RunResult
	err := h.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			var r positioning.RunResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt run entry %s: %w", k, err)
			}
			results = append(results, &r)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	})
	return results, err
}
