// Package automation implements the SQL-backed, deduplicated automation
// job store and worker (spec.md §4.10). Grounded on the teacher's
// internal/store (database/sql + modernc.org/sqlite, inline schema
// creation, audit-row-per-transition pattern) for the SQLite path, and on
// jordigilh-kubernaut / ncecere-raito (pgx/v5 + goose/v3 migrations) for
// the optional Postgres path named in the expanded spec's domain stack.
package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a job's place in the automation state machine.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// validTransitions enumerates the allowed status transitions (§4.10):
// queued->running, running->{done,failed}, failed->queued.
var validTransitions = map[Status]map[Status]bool{
	StatusQueued:  {StatusRunning: true},
	StatusRunning: {StatusDone: true, StatusFailed: true},
	StatusFailed:  {StatusQueued: true},
}

// Job is one automation job row.
type Job struct {
	ID          string
	DedupeKey   string
	JobType     string
	Domain      string
	Payload     json.RawMessage
	Status      Status
	Failures    int
	NextRetryAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transition is one audit row appended on every status change.
type Transition struct {
	ID        int64
	JobID     string
	From      Status
	To        Status
	Reason    string
	CreatedAt time.Time
}

// Store persists automation jobs and their audit trail.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// dialect isolates the few syntax differences between SQLite and Postgres
// placeholders, so the rest of Store's SQL is shared between both drivers.
type dialect struct {
	name         string
	placeholder  func(n int) string
	upsertIgnore string // not set by either dialect and not read by any query
}

func sqliteDialect() dialect {
	return dialect{
		name:        "sqlite",
		placeholder: func(n int) string { return "?" },
	}
}

func postgresDialect() dialect {
	return dialect{
		name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
}

func (d dialect) ph(n int) string { return d.placeholder(n) }

// NewSQLiteStore opens (creating if needed) a SQLite-backed automation job
// store at path, using the teacher's own driver, modernc.org/sqlite.
func NewSQLiteStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("automation: opening sqlite %s: %w", path, err)
	}
	s := &Store{db: db, dialect: sqliteDialect()}
	if err := s.initSchemaSQLite(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchemaSQLite() error {
	schema := `
	CREATE TABLE IF NOT EXISTS automation_jobs (
		id TEXT PRIMARY KEY,
		dedupe_key TEXT NOT NULL UNIQUE,
		job_type TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'queued',
		failures INTEGER NOT NULL DEFAULT 0,
		next_retry_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT (datetime('now')),
		updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_automation_jobs_status ON automation_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_automation_jobs_domain ON automation_jobs(domain);

	CREATE TABLE IF NOT EXISTS automation_job_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES automation_jobs(id),
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS automation_domain_failures (
		domain TEXT PRIMARY KEY,
		failures INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		next_retry_at DATETIME
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("automation: initializing sqlite schema: %w", err)
	}
	return nil
}

// Enqueue inserts a new job, or returns the existing row if dedupe_key
// already exists (invariant 8: deterministic deduplication).
func (s *Store) Enqueue(ctx context.Context, jobType, domain, dedupeKey string, payload any) (*Job, error) {
	if existing, err := s.byDedupeKey(ctx, dedupeKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("automation: marshaling payload: %w", err)
	}
	id := uuid.NewString()

	query := fmt.Sprintf(
		`INSERT INTO automation_jobs (id, dedupe_key, job_type, domain, payload, status) VALUES (%s, %s, %s, %s, %s, %s)`,
		s.dialect.ph(1), s.dialect.ph(2), s.dialect.ph(3), s.dialect.ph(4), s.dialect.ph(5), s.dialect.ph(6),
	)
	if _, err := s.db.ExecContext(ctx, query, id, dedupeKey, jobType, domain, string(raw), string(StatusQueued)); err != nil {
		// A racing insert may have beaten us between the dedupe check and
		// this insert; re-read rather than surface a duplicate-key error.
		if existing, lookupErr := s.byDedupeKey(ctx, dedupeKey); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("automation: inserting job: %w", err)
	}

	return s.byID(ctx, id)
}

func (s *Store) byDedupeKey(ctx context.Context, dedupeKey string) (*Job, error) {
	query := fmt.Sprintf(`SELECT id, dedupe_key, job_type, domain, payload, status, failures, next_retry_at, created_at, updated_at
		FROM automation_jobs WHERE dedupe_key = %s`, s.dialect.ph(1))
	return s.scanOne(s.db.QueryRowContext(ctx, query, dedupeKey))
}

func (s *Store) byID(ctx context.Context, id string) (*Job, error) {
	query := fmt.Sprintf(`SELECT id, dedupe_key, job_type, domain, payload, status, failures, next_retry_at, created_at, updated_at
		FROM automation_jobs WHERE id = %s`, s.dialect.ph(1))
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) scanOne(row *sql.Row) (*Job, error) {
	var j Job
	var payload string
	var nextRetry sql.NullTime
	err := row.Scan(&j.ID, &j.DedupeKey, &j.JobType, &j.Domain, &payload, &j.Status, &j.Failures, &nextRetry, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("automation: scanning job row: %w", err)
	}
	j.Payload = json.RawMessage(payload)
	if nextRetry.Valid {
		j.NextRetryAt = nextRetry.Time
	}
	return &j, nil
}

// Transition validates and applies a status change, appending an audit row.
func (s *Store) Transition(ctx context.Context, jobID string, to Status, reason string) error {
	job, err := s.byID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("automation: unknown job %q", jobID)
	}
	allowed := validTransitions[job.Status]
	if !allowed[to] {
		return fmt.Errorf("automation: invalid transition %s -> %s for job %q", job.Status, to, jobID)
	}

	updateQuery := fmt.Sprintf(`UPDATE automation_jobs SET status = %s, updated_at = %s WHERE id = %s`,
		s.dialect.ph(1), s.currentTimestampExpr(2), s.dialect.ph(3))
	args := []any{string(to)}
	if s.dialect.name == "sqlite" {
		args = append(args, jobID)
	} else {
		args = append(args, time.Now().UTC(), jobID)
	}
	if _, err := s.db.ExecContext(ctx, updateQuery, args...); err != nil {
		return fmt.Errorf("automation: updating job status: %w", err)
	}

	auditQuery := fmt.Sprintf(`INSERT INTO automation_job_transitions (job_id, from_status, to_status, reason) VALUES (%s, %s, %s, %s)`,
		s.dialect.ph(1), s.dialect.ph(2), s.dialect.ph(3), s.dialect.ph(4))
	if _, err := s.db.ExecContext(ctx, auditQuery, jobID, string(job.Status), string(to), reason); err != nil {
		return fmt.Errorf("automation: appending audit row: %w", err)
	}
	return nil
}

// currentTimestampExpr returns SQLite's own datetime('now') expression for
// sqlite (argPos is ignored) or the nth bind position for postgres, where
// the caller supplies time.Now() as an arg.
func (s *Store) currentTimestampExpr(argPos int) string {
	if s.dialect.name == "sqlite" {
		return "(datetime('now'))"
	}
	return s.dialect.ph(argPos)
}

// RecordDomainFailure increments a domain's failure count; once it
// reaches maxDomainFailures the domain is blocked, otherwise the domain's
// next eligible retry is set by exponential backoff.
func (s *Store) RecordDomainFailure(ctx context.Context, domain string, maxDomainFailures, backoffBaseMs int) error {
	failures, blocked, err := s.domainState(ctx, domain)
	if err != nil {
		return err
	}
	failures++
	if failures >= maxDomainFailures {
		blocked = true
	}
	delayMs := float64(backoffBaseMs)
	for i := 1; i < failures; i++ {
		delayMs *= 2
	}
	nextRetry := time.Now().Add(time.Duration(delayMs) * time.Millisecond)

	upsert := fmt.Sprintf(`INSERT INTO automation_domain_failures (domain, failures, blocked, next_retry_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT(domain) DO UPDATE SET failures = %s, blocked = %s, next_retry_at = %s`,
		s.dialect.ph(1), s.dialect.ph(2), s.dialect.ph(3), s.dialect.ph(4),
		s.dialect.ph(2), s.dialect.ph(3), s.dialect.ph(4))
	_, err = s.db.ExecContext(ctx, upsert, domain, failures, boolToStorage(s.dialect, blocked), nextRetry)
	return err
}

func boolToStorage(d dialect, b bool) any {
	if d.name == "sqlite" {
		if b {
			return 1
		}
		return 0
	}
	return b
}

func (s *Store) domainState(ctx context.Context, domain string) (failures int, blocked bool, err error) {
	query := fmt.Sprintf(`SELECT failures, blocked FROM automation_domain_failures WHERE domain = %s`, s.dialect.ph(1))
	var blockedRaw any
	row := s.db.QueryRowContext(ctx, query, domain)
	if scanErr := row.Scan(&failures, &blockedRaw); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("automation: reading domain state: %w", scanErr)
	}
	switch v := blockedRaw.(type) {
	case int64:
		blocked = v != 0
	case bool:
		blocked = v
	}
	return failures, blocked, nil
}

// DomainBlocked reports whether domain has exceeded maxDomainFailures.
func (s *Store) DomainBlocked(ctx context.Context, domain string) (bool, error) {
	_, blocked, err := s.domainState(ctx, domain)
	return blocked, err
}

// SweepExpired marks every queued job older than ttl as failed, per §4.10
// "TTL'd queued jobs are marked failed".
func (s *Store) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	query := fmt.Sprintf(`SELECT id FROM automation_jobs WHERE status = %s AND created_at < %s`,
		s.dialect.ph(1), s.dialect.ph(2))
	rows, err := s.db.QueryContext(ctx, query, string(StatusQueued), cutoff)
	if err != nil {
		return 0, fmt.Errorf("automation: sweeping expired jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		// A TTL sweep force-fails a job regardless of the normal
		// queued->running->failed chain, so update directly.
		update := fmt.Sprintf(`UPDATE automation_jobs SET status = %s WHERE id = %s`, s.dialect.ph(1), s.dialect.ph(2))
		if _, err := s.db.ExecContext(ctx, update, string(StatusFailed), id); err != nil {
			return len(ids), err
		}
		audit := fmt.Sprintf(`INSERT INTO automation_job_transitions (job_id, from_status, to_status, reason) VALUES (%s, %s, %s, %s)`,
			s.dialect.ph(1), s.dialect.ph(2), s.dialect.ph(3), s.dialect.ph(4))
		if _, err := s.db.ExecContext(ctx, audit, id, string(StatusQueued), string(StatusFailed), "ttl_expired"); err != nil {
			return len(ids), err
		}
	}
	return len(ids), nil
}

// NextQueued returns the oldest queued job, or nil if none are waiting.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	query := fmt.Sprintf(`SELECT id, dedupe_key, job_type, domain, payload, status, failures, next_retry_at, created_at, updated_at
		FROM automation_jobs WHERE status = %s ORDER BY created_at ASC LIMIT 1`, s.dialect.ph(1))
	return s.scanOne(s.db.QueryRowContext(ctx, query, string(StatusQueued)))
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
