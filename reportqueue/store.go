// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const syncLockName = "sync"

// Store is the durable per-device report store. All reports ever queued on
// this device live here until explicitly purged; an unsynced report is
// never dropped except by an explicit Remove.
//
// Store methods are safe for concurrent use. Writes are serialized to
// avoid SQLite locking issues.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex
}

// NewStore initializes the report schema on db and returns a store.
// A nil logger falls back to slog.Default().
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize report store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// initializeDatabase creates the report tables and enables WAL mode.
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			report_type TEXT NOT NULL,
			location    TEXT NOT NULL,
			description TEXT NOT NULL,
			severity    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			synced      INTEGER NOT NULL DEFAULT 0
		)`,

		// Attachments live in a separate table so image bytes stay binary
		// instead of being string-serialized into the report row.
		`CREATE TABLE IF NOT EXISTS report_images (
			report_id  TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			mime_type  TEXT NOT NULL,
			data       BLOB NOT NULL,
			PRIMARY KEY (report_id, position)
		)`,

		// Background sync registrations, coalesced by tag. Persisted so a
		// request made while offline survives a process restart.
		`CREATE TABLE IF NOT EXISTS sync_requests (
			tag          TEXT PRIMARY KEY,
			requested_at TEXT NOT NULL
		)`,

		// Storage-visible advisory lock. The foreground page and the
		// background trigger may be separate execution contexts, so the
		// single-flight guard cannot live in memory alone.
		`CREATE TABLE IF NOT EXISTS queue_lock (
			name         TEXT PRIMARY KEY,
			locked_since TEXT NOT NULL
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create report table: %w", err)
		}
	}
	return nil
}

// Load returns all persisted reports in insertion order. Read failures
// fail open: a corrupt or unreadable store is treated as empty and logged,
// never returned as an error.
func (s *Store) Load(ctx context.Context) []Report {
	reports, err := s.queryReports(ctx, `SELECT id, title, report_type, location, description, severity, created_at, synced
		FROM reports ORDER BY rowid`)
	if err != nil {
		s.logger.Warn("failed to load reports, treating store as empty", "error", err)
		return []Report{}
	}
	return reports
}

// Unsynced returns reports still awaiting submission, oldest first. Unlike
// Load, store failures here are returned: the sync coordinator must not
// mistake an unreadable store for an empty queue.
func (s *Store) Unsynced(ctx context.Context) ([]Report, error) {
	reports, err := s.queryReports(ctx, `SELECT id, title, report_type, location, description, severity, created_at, synced
		FROM reports WHERE synced = 0 ORDER BY rowid`)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	return reports, nil
}

func (s *Store) queryReports(ctx context.Context, query string) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		var r Report
		var synced int
		if err := rows.Scan(&r.ID, &r.Title, &r.Type, &r.Location, &r.Description, &r.Severity, &r.Timestamp, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Synced = synced != 0
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	rows.Close()

	for i := range reports {
		images, err := s.loadImages(ctx, reports[i].ID)
		if err != nil {
			// A report with unreadable attachments is still a report.
			s.logger.Warn("failed to load report images", "report_id", reports[i].ID, "error", err)
			continue
		}
		reports[i].Images = images
	}
	return reports, nil
}

func (s *Store) loadImages(ctx context.Context, reportID string) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mime_type, data FROM report_images
		WHERE report_id = ? ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.MIMEType, &img.Data); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Append validates the draft, assigns an ID and creation timestamp, and
// persists the report with synced=false. Persistence happens before any
// network attempt, so the report survives a crash or restart even while
// offline. A write failure is surfaced as a StorageError; previously
// stored reports are never affected by a failed append.
func (s *Store) Append(ctx context.Context, d Draft) (Report, error) {
	if err := ValidateDraft(d); err != nil {
		return Report{}, err
	}

	report := Report{
		ID:          NewReportID(),
		Title:       d.Title,
		Type:        d.Type,
		Location:    d.Location,
		Description: d.Description,
		Severity:    d.Severity,
		Images:      d.Images,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Synced:      false,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Report{}, &StorageError{Op: "append", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, title, report_type, location, description, severity, created_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, report.ID, report.Title, report.Type, report.Location, report.Description, report.Severity, report.Timestamp)
	if err != nil {
		return Report{}, &StorageError{Op: "append", Err: err}
	}

	for i, img := range report.Images {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_images (report_id, position, mime_type, data)
			VALUES (?, ?, ?, ?)
		`, report.ID, i, img.MIMEType, img.Data)
		if err != nil {
			return Report{}, &StorageError{Op: "append", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return Report{}, &StorageError{Op: "append", Err: err}
	}
	return report, nil
}

// MarkSynced flips a report's synced flag to true. Idempotent: marking an
// already-synced report or an unknown ID is a no-op, since a concurrent
// purge may have removed it. The flag is monotonic and never reverts.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE reports SET synced = 1 WHERE id = ? AND synced = 0`, id)
	if err != nil {
		return &StorageError{Op: "mark synced", Err: err}
	}
	return nil
}

// Remove deletes a report and its attachments. Idempotent.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return &StorageError{Op: "remove", Err: err}
	}
	return nil
}

// CountUnsynced returns the number of reports awaiting submission.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE synced = 0`).Scan(&n)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// ClearSynced purges all reports the hub has acknowledged and returns how
// many were removed. Unsynced reports are untouched.
func (s *Store) ClearSynced(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE synced = 1`)
	if err != nil {
		return 0, &StorageError{Op: "clear synced", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "clear synced", Err: err}
	}
	return int(n), nil
}

// AcquireSyncLock takes the storage-visible sync lock. Returns false if
// another execution context holds it and the lock is not older than
// staleAfter; a stale lock (crashed pass) is stolen.
func (s *Store) AcquireSyncLock(ctx context.Context, staleAfter time.Duration) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &StorageError{Op: "lock", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var lockedSince string
	err = tx.QueryRowContext(ctx, `SELECT locked_since FROM queue_lock WHERE name = ?`, syncLockName).Scan(&lockedSince)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO queue_lock (name, locked_since) VALUES (?, ?)`,
			syncLockName, now.Format(time.RFC3339Nano)); err != nil {
			return false, &StorageError{Op: "lock", Err: err}
		}
	case err != nil:
		return false, &StorageError{Op: "lock", Err: err}
	default:
		since, perr := time.Parse(time.RFC3339Nano, lockedSince)
		if perr == nil && now.Sub(since) <= staleAfter {
			return false, nil // held by another pass
		}
		s.logger.Warn("stealing stale sync lock", "locked_since", lockedSince)
		if _, err := tx.ExecContext(ctx, `UPDATE queue_lock SET locked_since = ? WHERE name = ?`,
			now.Format(time.RFC3339Nano), syncLockName); err != nil {
			return false, &StorageError{Op: "lock", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &StorageError{Op: "lock", Err: err}
	}
	return true, nil
}

// ReleaseSyncLock drops the sync lock. Idempotent.
func (s *Store) ReleaseSyncLock(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_lock WHERE name = ?`, syncLockName); err != nil {
		return &StorageError{Op: "unlock", Err: err}
	}
	return nil
}

// AddSyncRequest registers a named background sync request. Requests are
// coalesced by tag: registering an already-pending tag is a no-op.
func (s *Store) AddSyncRequest(ctx context.Context, tag string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO sync_requests (tag, requested_at) VALUES (?, ?)`,
		tag, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &StorageError{Op: "register sync", Err: err}
	}
	return nil
}

// TakeSyncRequests removes and returns all pending sync request tags.
func (s *Store) TakeSyncRequests(ctx context.Context) ([]string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM sync_requests ORDER BY requested_at`)
	if err != nil {
		return nil, &StorageError{Op: "take sync requests", Err: err}
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, &StorageError{Op: "take sync requests", Err: err}
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "take sync requests", Err: err}
	}
	rows.Close()

	if len(tags) > 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_requests`); err != nil {
			return nil, &StorageError{Op: "take sync requests", Err: err}
		}
	}
	return tags, nil
}
