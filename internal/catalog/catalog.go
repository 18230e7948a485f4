// Package catalog is the durable, crash-safe home for FileObservations,
// VisitRecords, and the revisit schedule. It is the only component in the
// system that performs persistent writes; every other component depends on
// it but is never depended upon by it.
//
// Storage is a single modernc.org/sqlite database per configured db.dir,
// opened with WAL journaling so the writer (always exactly one goroutine at
// a time, see internal/pipeline) never blocks a future read-only consumer.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrStoreUnavailable is returned when the catalog directory cannot be
// created, or exists but is not writable.
var ErrStoreUnavailable = errors.New("catalog: store unavailable")

// Observation is the current or historical row for a path.
type Observation struct {
	Digest        string
	Path          string
	Mtime         int64
	Size          int64
	FirstObserved int64
	DeletedBefore *int64
}

// Stats is a read-only diagnostics snapshot; it backs the --stats CLI flag
// and is not consulted by any pipeline decision.
type Stats struct {
	CurrentObservations int64
	PendingRevisits     int64
	NextRevisitTime     *int64
}

// Catalog owns the single sqlite connection that the core writes through.
type Catalog struct {
	db *sql.DB
}

// Open creates dir if absent, opens (or creates) the schema, and enables
// WAL. The writer connection is capped at one open connection: the core
// guarantees only one goroutine ever calls into Catalog at a time, and
// capping the pool makes that guarantee load-bearing rather than advisory.
func Open(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir %s: %v", ErrStoreUnavailable, dir, err)
	}
	if err := checkWritable(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	dbPath := dir + "/catalog.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, dbPath, err)
	}
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return c, nil
}

func checkWritable(dir string) error {
	probe := dir + "/.write-check"
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(probe)
}

func (c *Catalog) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := c.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	for _, stmt := range schemaStatements {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// CurrentObservations returns the current (non-deleted) row for each listed
// path that exists. Order is not guaranteed to match the input.
func (c *Catalog) CurrentObservations(ctx context.Context, paths []string) ([]Observation, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	query := fmt.Sprintf(
		`SELECT digest, path, mtime, size, first_observed FROM file_observations
		 WHERE deleted_before IS NULL AND path IN (%s)`,
		strings.Join(placeholders, ","),
	)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Digest, &o.Path, &o.Mtime, &o.Size, &o.FirstObserved); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ClearVisits empties the VisitRecord table in one transaction. Called at
// the start of each bulk walk; entries absent after a completed walk
// represent paths that no longer exist under the roots.
func (c *Catalog) ClearVisits(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM visit_records`)
	return err
}

// DueForRevisit returns up to 1000 paths whose revisit_time is <= now,
// ordered by revisit_time ascending, plus the earliest revisit_time > now
// across the whole table (nil if there is none). nextTime is queried
// independently of the due-paths batch so it always honors its contract,
// even when more than 1000 paths are simultaneously due.
func (c *Catalog) DueForRevisit(ctx context.Context, now int64) (nextTime *int64, paths []string, err error) {
	const batchCap = 1000
	rows, err := c.db.QueryContext(ctx,
		`SELECT path FROM visit_records
		 WHERE revisit_time IS NOT NULL AND revisit_time <= ?
		 ORDER BY revisit_time ASC
		 LIMIT ?`, now, batchCap)
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return nil, nil, err
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	rows.Close()

	var at int64
	err = c.db.QueryRowContext(ctx,
		`SELECT revisit_time FROM visit_records
		 WHERE revisit_time IS NOT NULL AND revisit_time > ?
		 ORDER BY revisit_time ASC
		 LIMIT 1`, now,
	).Scan(&at)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, paths, nil
	case err != nil:
		return nil, nil, err
	}
	nextTime = &at
	return nextTime, paths, nil
}

// Snapshot returns the read-only diagnostics backing --stats.
func (c *Catalog) Snapshot(ctx context.Context) (Stats, error) {
	var s Stats
	row := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_observations WHERE deleted_before IS NULL`)
	if err := row.Scan(&s.CurrentObservations); err != nil {
		return Stats{}, err
	}
	row = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visit_records WHERE revisit_time IS NOT NULL`)
	if err := row.Scan(&s.PendingRevisits); err != nil {
		return Stats{}, err
	}
	var next sql.NullInt64
	row = c.db.QueryRowContext(ctx, `SELECT MIN(revisit_time) FROM visit_records WHERE revisit_time IS NOT NULL`)
	if err := row.Scan(&next); err != nil {
		return Stats{}, err
	}
	if next.Valid {
		s.NextRevisitTime = &next.Int64
	}
	return s, nil
}

// Tx is a single batch's worth of catalog writes. The Visit Worker opens
// exactly one Tx per flushed batch and commits (or rolls back) it as a
// whole, so either the whole batch lands or none of it does.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a new batch transaction.
func (c *Catalog) Begin(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Commit finalizes the batch.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback discards the batch. Safe to call after Commit (no-op).
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// CurrentObservation looks up the current (non-deleted) row for path
// within the batch's transaction. ok is false if no such row exists.
func (t *Tx) CurrentObservation(ctx context.Context, path string) (o Observation, ok bool, err error) {
	err = t.tx.QueryRowContext(ctx,
		`SELECT digest, path, mtime, size, first_observed FROM file_observations
		 WHERE path = ? AND deleted_before IS NULL`,
		path,
	).Scan(&o.Digest, &o.Path, &o.Mtime, &o.Size, &o.FirstObserved)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Observation{}, false, nil
	case err != nil:
		return Observation{}, false, err
	}
	return o, true, nil
}

// RecordObservation is a no-op if a current row already exists with
// identical digest and mtime. Otherwise it replaces the current row in
// place (preserving its first_observed) or inserts a new one with
// first_observed = now.
func (t *Tx) RecordObservation(ctx context.Context, digest, path string, mtime, size, now int64) error {
	var existingID int64
	var existingDigest string
	var existingMtime int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, digest, mtime FROM file_observations WHERE path = ? AND deleted_before IS NULL`,
		path,
	).Scan(&existingID, &existingDigest, &existingMtime)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO file_observations (path, digest, mtime, size, first_observed, deleted_before)
			 VALUES (?, ?, ?, ?, ?, NULL)`,
			path, digest, mtime, size, now)
		return err
	case err != nil:
		return err
	}

	if existingDigest == digest && existingMtime == mtime {
		return nil
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE file_observations SET digest = ?, mtime = ?, size = ? WHERE id = ?`,
		digest, mtime, size, existingID)
	return err
}

// MarkDeleted sets deleted_before = now on the current row for path, if
// any. Non-current rows are untouched.
func (t *Tx) MarkDeleted(ctx context.Context, path string, now int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE file_observations SET deleted_before = ? WHERE path = ? AND deleted_before IS NULL`,
		now, path)
	return err
}

// RecordVisit upserts a VisitRecord. A nil revisitTime means the path is
// settled and carries no future obligation.
func (t *Tx) RecordVisit(ctx context.Context, path string, revisitTime *int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO visit_records (path, revisit_time) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET revisit_time = excluded.revisit_time`,
		path, revisitTime)
	return err
}

// ForgetVisit removes the VisitRecord entirely, recording that path is
// known-deleted rather than merely settled.
func (t *Tx) ForgetVisit(ctx context.Context, path string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM visit_records WHERE path = ?`, path)
	return err
}
