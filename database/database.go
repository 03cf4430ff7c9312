package database

import (
	"database/sql"
	"fmt"
	"time"

	"imagededup/types"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite index of scanned images and the append-only operation
// log.
type DB struct {
	conn *sql.DB
}

// Open initializes the database, creating tables as needed.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		format TEXT,
		width INTEGER,
		height INTEGER,
		modified_at TEXT,
		size INTEGER,
		digest TEXT,
		indexed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_images_path ON images(path);
	CREATE INDEX IF NOT EXISTS idx_images_digest ON images(digest);

	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		succeeded INTEGER,
		failed INTEGER,
		total INTEGER,
		detail TEXT
	);`

	if _, err := conn.Exec(createTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// StoreImage inserts or replaces the index entry for one image.
func (db *DB) StoreImage(record *types.ImageRecord) error {
	stmt, err := db.conn.Prepare(`
		INSERT OR REPLACE INTO images (
			path, format, width, height, modified_at, size, digest, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %w", record.Path, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		record.Path,
		record.Format,
		record.Width,
		record.Height,
		// Nanosecond precision keeps the scanner's unchanged-file check
		// exact across a store/lookup round trip.
		record.ModifiedAt.Format(time.RFC3339Nano),
		record.Size,
		record.Digest,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cannot store record for %s: %w", record.Path, err)
	}

	return nil
}

// LookupImage returns the stored record for a path, or nil when the path has
// not been indexed.
func (db *DB) LookupImage(path string) (*types.ImageRecord, error) {
	row := db.conn.QueryRow(`
		SELECT path, format, width, height, modified_at, size, digest
		FROM images WHERE path = ?`, path)

	var record types.ImageRecord
	var modifiedAt string
	err := row.Scan(&record.Path, &record.Format, &record.Width, &record.Height, &modifiedAt, &record.Size, &record.Digest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot look up %s: %w", path, err)
	}

	record.ModifiedAt, err = time.Parse(time.RFC3339Nano, modifiedAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt modified time for %s: %w", path, err)
	}

	return &record, nil
}

// RemoveImage drops the index entry for one path. Called after a successful
// deletion so the index does not reference missing files.
func (db *DB) RemoveImage(path string) error {
	_, err := db.conn.Exec("DELETE FROM images WHERE path = ?", path)
	return err
}

// Append writes one entry to the operation log. Entries are never updated or
// compacted here; retention is someone else's concern.
func (db *DB) Append(entry types.OperationLogEntry) error {
	_, err := db.conn.Exec(`
		INSERT INTO operations (timestamp, kind, status, succeeded, failed, total, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.Format(time.RFC3339),
		entry.Kind,
		entry.Status,
		entry.Succeeded,
		entry.Failed,
		entry.Total,
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("cannot append operation entry: %w", err)
	}
	return nil
}

// Operations returns the most recent log entries, newest first.
func (db *DB) Operations(limit int) ([]types.OperationLogEntry, error) {
	rows, err := db.conn.Query(`
		SELECT timestamp, kind, status, succeeded, failed, total, detail
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("cannot query operations: %w", err)
	}
	defer rows.Close()

	var entries []types.OperationLogEntry
	for rows.Next() {
		var entry types.OperationLogEntry
		var timestamp string
		if err := rows.Scan(&timestamp, &entry.Kind, &entry.Status, &entry.Succeeded, &entry.Failed, &entry.Total, &entry.Detail); err != nil {
			return nil, err
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ScanStats summarizes the current index.
type ScanStats struct {
	TotalImages   int
	UniqueDigests int
}

// GetScanStats reports how many images and distinct contents are indexed.
func (db *DB) GetScanStats() (*ScanStats, error) {
	var stats ScanStats
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM images").Scan(&stats.TotalImages); err != nil {
		return nil, fmt.Errorf("cannot count images: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(DISTINCT digest) FROM images WHERE digest != ''").Scan(&stats.UniqueDigests); err != nil {
		return nil, fmt.Errorf("cannot count digests: %w", err)
	}
	return &stats, nil
}
