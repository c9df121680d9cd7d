package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("database is closed")

// DB wraps the SQLite database instance that stores list snapshots.
type DB struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}
	// One writer is all SQLite allows anyway; this keeps WAL checkpoints predictable.
	db.SetMaxOpenConns(1)

	dbWrapper := &DB{db: db}
	if err := dbWrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Debugf("SQLite database opened at %s", path)
	return dbWrapper, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		checksum TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		d.closed = true

		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		} else {
			log.Debug("Database closed.")
		}
	})

	return d.closeErr
}

// Has checks if a snapshot exists.
func (d *DB) Has(name string) bool {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return false
	}

	var exists bool
	err := d.db.QueryRow("SELECT EXISTS(SELECT 1 FROM snapshots WHERE name = ?)", name).Scan(&exists)
	return err == nil && exists
}

// Get returns the payload and checksum stored under name.
func (d *DB) Get(name string) (payload []byte, checksum string, err error) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return nil, "", ErrClosed
	}

	err = d.db.QueryRow("SELECT payload, checksum FROM snapshots WHERE name = ?", name).Scan(&payload, &checksum)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	} else if err != nil {
		return nil, "", fmt.Errorf("error querying snapshot %s: %w", name, err)
	}
	return payload, checksum, nil
}

// Put replaces the snapshot stored under name inside a single transaction,
// so readers see either the old row or the new one.
func (d *DB) Put(name string, payload []byte, checksum string) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", name, err)
	}
	_, err = tx.Exec(`
		INSERT INTO snapshots (name, payload, checksum, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
	`, name, payload, checksum, time.Now().UnixNano())
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Warnf("Rollback failed for snapshot %s", name)
		}
		return fmt.Errorf("failed to write snapshot %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", name, err)
	}
	return nil
}

// Delete removes the snapshot stored under name. Missing names are not an error.
func (d *DB) Delete(name string) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	if _, err := d.db.Exec("DELETE FROM snapshots WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", name, err)
	}
	return nil
}

// Names lists all stored snapshot names in alphabetical order.
func (d *DB) Names() ([]string, error) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	rows, err := d.db.Query("SELECT name FROM snapshots ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
