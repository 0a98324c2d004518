// Package store keeps an append-only journal of delivered notifications in SQLite.
// The journal is an audit trail for the ops API. It is never read back into the
// monitor's high-water mark.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryDSN is a private in-memory database. It lives as long as the single pooled connection.
const MemoryDSN = ":memory:"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store: closed")

// Store wraps SQLite access for the notification journal.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Entry is one journaled notification.
type Entry struct {
	ID           int64     `json:"id"`
	SpotID       int64     `json:"spot_id"`
	Callsign     string    `json:"callsign"`
	Association  string    `json:"association"`
	Summit       string    `json:"summit"`
	SummitName   string    `json:"summit_name,omitempty"`
	DistanceKm   float64   `json:"distance_km"`
	FrequencyMHz float64   `json:"frequency_mhz"`
	Mode         string    `json:"mode"`
	SpottedAt    time.Time `json:"spotted_at"`
	NotifiedAt   time.Time `json:"notified_at"`
}

// Open opens (and migrates) the journal at dsn. An empty dsn selects MemoryDSN.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            spot_id INTEGER NOT NULL,
            callsign TEXT,
            association TEXT,
            summit TEXT,
            summit_name TEXT,
            distance_km REAL,
            frequency_mhz REAL,
            mode TEXT,
            spotted_at TIMESTAMP,
            notified_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_spot ON notifications(spot_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordNotification appends e and returns its row id. NotifiedAt defaults to now.
func (s *Store) RecordNotification(ctx context.Context, e Entry) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if e.NotifiedAt.IsZero() {
		e.NotifiedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO notifications(spot_id, callsign, association, summit, summit_name, distance_km, frequency_mhz, mode, spotted_at, notified_at)
        VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.SpotID, e.Callsign, e.Association, e.Summit, e.SummitName, e.DistanceKm, e.FrequencyMHz, e.Mode, e.SpottedAt.UTC(), e.NotifiedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("record notification %d: %w", e.SpotID, err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// ListNotifications returns up to limit entries, newest first.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, spot_id, callsign, association, summit, summit_name, distance_km, frequency_mhz, mode, spotted_at, notified_at
        FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var name sql.NullString
		if err := rows.Scan(&e.ID, &e.SpotID, &e.Callsign, &e.Association, &e.Summit, &name, &e.DistanceKm, &e.FrequencyMHz, &e.Mode, &e.SpottedAt, &e.NotifiedAt); err != nil {
			return nil, err
		}
		e.SummitName = name.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of journaled notifications.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
