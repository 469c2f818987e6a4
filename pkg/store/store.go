// Package store persists antennas, tags and raw readings in SQLite and is
// the durable side of the positioning pipeline.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/logx"
)

// Store wraps the SQLite database holding the three durable record kinds.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *logx.Logger
}

// Open opens (creating if needed) the SQLite database at dbPath and ensures
// the schema exists.
func Open(dbPath string, logger *logx.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath, logger: logger}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("store_opened", "db_path", dbPath)
	return s, nil
}

// initializeSchema creates the tables and indexes.
func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS antenna (
		antenna_id TEXT PRIMARY KEY,
		x REAL NOT NULL,
		y REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tag (
		tag_id TEXT PRIMARY KEY,
		role TEXT NOT NULL CHECK(role IN ('ref','tar')),
		true_x REAL,
		true_y REAL,
		pred_x REAL,
		pred_y REAL,
		is_read INTEGER NOT NULL DEFAULT 0,
		CHECK (
			(role='ref' AND pred_x IS NULL AND pred_y IS NULL AND true_x IS NOT NULL AND true_y IS NOT NULL)
			OR (role='tar')
		)
	);

	CREATE TABLE IF NOT EXISTS reading (
		reading_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag_id TEXT NOT NULL,
		antenna_id TEXT NOT NULL,
		rc INTEGER NOT NULL CHECK(rc >= 0),
		rssi REAL NOT NULL,
		read_time DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reading_tag ON reading(tag_id);
	CREATE INDEX IF NOT EXISTS idx_reading_antenna ON reading(antenna_id);
	CREATE INDEX IF NOT EXISTS idx_reading_time ON reading(read_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertAntenna inserts or replaces an antenna.
func (s *Store) InsertAntenna(ctx context.Context, a *pkg.Antenna) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO antenna (antenna_id, x, y) VALUES (?, ?, ?)",
		a.ID, a.X, a.Y,
	)
	if err != nil {
		return fmt.Errorf("failed to insert antenna %s: %w", a.ID, err)
	}
	return nil
}

// GetAntenna fetches an antenna by id. Returns nil when not found.
func (s *Store) GetAntenna(ctx context.Context, id string) (*pkg.Antenna, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT antenna_id, x, y FROM antenna WHERE antenna_id = ?", id)
	var a pkg.Antenna
	if err := row.Scan(&a.ID, &a.X, &a.Y); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get antenna %s: %w", id, err)
	}
	return &a, nil
}

// ListAntennas returns all antennas ordered by id.
func (s *Store) ListAntennas(ctx context.Context) ([]*pkg.Antenna, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT antenna_id, x, y FROM antenna ORDER BY antenna_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list antennas: %w", err)
	}
	defer rows.Close()

	var antennas []*pkg.Antenna
	for rows.Next() {
		var a pkg.Antenna
		if err := rows.Scan(&a.ID, &a.X, &a.Y); err != nil {
			return nil, err
		}
		antennas = append(antennas, &a)
	}
	return antennas, rows.Err()
}

// InsertTag inserts or replaces a tag after validating its invariants.
func (s *Store) InsertTag(ctx context.Context, t *pkg.Tag) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tag (tag_id, role, true_x, true_y, pred_x, pred_y, is_read)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Role), t.TrueX, t.TrueY, t.PredX, t.PredY, boolToInt(t.IsRead),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tag %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTag updates all mutable fields of an existing tag.
func (s *Store) UpdateTag(ctx context.Context, t *pkg.Tag) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tag SET role = ?, true_x = ?, true_y = ?, pred_x = ?, pred_y = ?, is_read = ?
		 WHERE tag_id = ?`,
		string(t.Role), t.TrueX, t.TrueY, t.PredX, t.PredY, boolToInt(t.IsRead), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tag %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("tag %s not found", t.ID)
	}
	return nil
}

// GetTag fetches a tag by id. Returns nil when not found.
func (s *Store) GetTag(ctx context.Context, id string) (*pkg.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tag_id, role, true_x, true_y, pred_x, pred_y, is_read
		 FROM tag WHERE tag_id = ?`, id)
	t, err := scanTag(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tag %s: %w", id, err)
	}
	return t, nil
}

// ListTags returns tags ordered by id, optionally filtered by role. An
// empty role returns all tags.
func (s *Store) ListTags(ctx context.Context, role pkg.TagRole) ([]*pkg.Tag, error) {
	query := `SELECT tag_id, role, true_x, true_y, pred_x, pred_y, is_read FROM tag`
	args := []interface{}{}
	if role != "" {
		if !role.Valid() {
			return nil, fmt.Errorf("invalid tag role filter %q", role)
		}
		query += " WHERE role = ?"
		args = append(args, string(role))
	}
	query += " ORDER BY tag_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*pkg.Tag
	for rows.Next() {
		t, err := scanTag(rows.Scan)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// SavePrediction writes the predicted coordinates of a target tag back to
// the store. Reference tags are rejected to keep the role invariant intact.
func (s *Store) SavePrediction(ctx context.Context, tagID string, x, y float64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tag SET pred_x = ?, pred_y = ? WHERE tag_id = ? AND role = 'tar'",
		x, y, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to save prediction for tag %s: %w", tagID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("tag %s is not a known target tag", tagID)
	}
	return nil
}

// MarkRead sets the observed flag on a tag. Unknown tags are ignored so the
// collector can run ahead of tag registration.
func (s *Store) MarkRead(ctx context.Context, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tag SET is_read = 1 WHERE tag_id = ?", tagID)
	if err != nil {
		return fmt.Errorf("failed to mark tag %s read: %w", tagID, err)
	}
	return nil
}

// InsertReading appends one raw reading and returns its generated id.
func (s *Store) InsertReading(ctx context.Context, r *pkg.Reading) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reading (tag_id, antenna_id, rc, rssi, read_time) VALUES (?, ?, ?, ?, ?)",
		r.TagID, r.AntennaID, r.ReadCount, r.RSSI, r.ReadTime.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	return res.LastInsertId()
}

// InsertReadings appends a batch of readings in a single transaction.
func (s *Store) InsertReadings(ctx context.Context, readings []*pkg.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO reading (tag_id, antenna_id, rc, rssi, read_time) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.TagID, r.AntennaID, r.ReadCount, r.RSSI, r.ReadTime.UTC().Format(timeLayout)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert reading for tag %s: %w", r.TagID, err)
		}
	}
	return tx.Commit()
}

// ListReadings returns every raw reading. No ordering is guaranteed; the
// assembler imposes its own.
func (s *Store) ListReadings(ctx context.Context) ([]*pkg.Reading, error) {
	return s.queryReadings(ctx,
		"SELECT reading_id, tag_id, antenna_id, rc, rssi, read_time FROM reading")
}

// ReadingsByTag returns all readings observed for one tag.
func (s *Store) ReadingsByTag(ctx context.Context, tagID string) ([]*pkg.Reading, error) {
	return s.queryReadings(ctx,
		"SELECT reading_id, tag_id, antenna_id, rc, rssi, read_time FROM reading WHERE tag_id = ?",
		tagID)
}

// ReadingsByAntenna returns all readings collected by one antenna.
func (s *Store) ReadingsByAntenna(ctx context.Context, antennaID string) ([]*pkg.Reading, error) {
	return s.queryReadings(ctx,
		"SELECT reading_id, tag_id, antenna_id, rc, rssi, read_time FROM reading WHERE antenna_id = ?",
		antennaID)
}

// Reset clears all three tables.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"reading", "tag", "antenna"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}
	s.logger.Warn("store_reset", "db_path", s.dbPath)
	return nil
}

const timeLayout = "2006-01-02 15:04:05.999999999"

func (s *Store) queryReadings(ctx context.Context, query string, args ...interface{}) ([]*pkg.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []*pkg.Reading
	for rows.Next() {
		var r pkg.Reading
		var ts string
		if err := rows.Scan(&r.ID, &r.TagID, &r.AntennaID, &r.ReadCount, &r.RSSI, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			// Older rows may carry RFC3339 timestamps from CSV imports.
			t, err = time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("failed to parse read_time %q: %w", ts, err)
			}
		}
		r.ReadTime = t.UTC()
		readings = append(readings, &r)
	}
	return readings, rows.Err()
}

func scanTag(scan func(dest ...interface{}) error) (*pkg.Tag, error) {
	var t pkg.Tag
	var role string
	var isRead int
	if err := scan(&t.ID, &role, &t.TrueX, &t.TrueY, &t.PredX, &t.PredY, &isRead); err != nil {
		return nil, err
	}
	t.Role = pkg.TagRole(role)
	t.IsRead = isRead != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
