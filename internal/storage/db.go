// Package storage keeps the monitor's small amount of restart state in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitor_state (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const (
	keyLastUpdateID   = "last_update_id"
	keyLastReportHour = "last_report_hour"
)

// Cursor is the loop state that survives a restart.
type Cursor struct {
	// LastUpdateID is the highest processed Bot API update id.
	LastUpdateID int64
	// LastReportHour is the unix time of the start of the hour that last
	// received its scheduled report, or 0.
	LastReportHour int64
}

// DB wraps a SQLite database for monitor state.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// LoadCursor returns the stored cursor. Missing keys read as zero.
func (d *DB) LoadCursor() (Cursor, error) {
	var c Cursor
	rows, err := d.db.Query("SELECT key, value FROM monitor_state WHERE key IN (?, ?)", keyLastUpdateID, keyLastReportHour)
	if err != nil {
		return c, fmt.Errorf("load cursor: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return Cursor{}, fmt.Errorf("load cursor: %w", err)
		}
		switch key {
		case keyLastUpdateID:
			c.LastUpdateID = value
		case keyLastReportHour:
			c.LastReportHour = value
		}
	}
	if err := rows.Err(); err != nil {
		return Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	return c, nil
}

// SaveCursor stores both cursor fields in a single transaction. The update id
// never moves backwards.
func (d *DB) SaveCursor(c Cursor) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	now := d.now().Unix()
	stmts := []struct {
		query string
		key   string
		value int64
	}{
		{"INSERT INTO monitor_state (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = MAX(value, excluded.value), updated_at = excluded.updated_at", keyLastUpdateID, c.LastUpdateID},
		{"INSERT INTO monitor_state (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at", keyLastReportHour, c.LastReportHour},
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s.query, s.key, s.value, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("save %s: %w", s.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdatedAt returns when the cursor was last saved, or the zero time if never.
func (d *DB) UpdatedAt() (time.Time, error) {
	var ts sql.NullInt64
	err := d.db.QueryRow("SELECT MAX(updated_at) FROM monitor_state").Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ts.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64, 0), nil
}
