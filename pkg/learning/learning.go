// Package learning implements the SQLite-backed store for host/domain
// yield signals that feed the planner's frontier ordering and the
// orchestrator's per-field effort scaling. Grounded on the teacher's
// internal/store (database/sql + modernc.org/sqlite, inline schema
// creation via sql.Open with WAL pragmas, one method per query/update).
package learning

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the learned-yield persistence layer.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS host_yield (
	host TEXT PRIMARY KEY,
	attempts INTEGER NOT NULL DEFAULT 0,
	candidates_found INTEGER NOT NULL DEFAULT 0,
	accepted_found INTEGER NOT NULL DEFAULT 0,
	last_seen_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS field_path_yield (
	category TEXT NOT NULL,
	field_key TEXT NOT NULL,
	key_path TEXT NOT NULL,
	hits INTEGER NOT NULL DEFAULT 0,
	last_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (category, field_key, key_path)
);
`

// Open opens (creating if needed) the SQLite learning store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("learning: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("learning: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordHostAttempt records one fetch attempt against host and how many
// candidates it ultimately produced (0 candidatesFound/acceptedFound is a
// normal, recordable outcome — a dry well still informs future ordering).
func (s *Store) RecordHostAttempt(host string, candidatesFound, acceptedFound int) error {
	_, err := s.db.Exec(`
		INSERT INTO host_yield (host, attempts, candidates_found, accepted_found, last_seen_at)
		VALUES (?, 1, ?, ?, datetime('now'))
		ON CONFLICT(host) DO UPDATE SET
			attempts = attempts + 1,
			candidates_found = candidates_found + excluded.candidates_found,
			accepted_found = accepted_found + excluded.accepted_found,
			last_seen_at = datetime('now')
	`, host, candidatesFound, acceptedFound)
	if err != nil {
		return fmt.Errorf("learning: record host attempt for %s: %w", host, err)
	}
	return nil
}

// HostYield summarizes one host's track record.
type HostYield struct {
	Host            string
	Attempts        int
	CandidatesFound int
	AcceptedFound   int
	LastSeenAt      time.Time
}

// GetHostYield returns the recorded track record for host, or a
// zero-valued HostYield (Attempts 0) if the host has never been tried.
func (s *Store) GetHostYield(host string) (HostYield, error) {
	var y HostYield
	y.Host = host
	err := s.db.QueryRow(`
		SELECT attempts, candidates_found, accepted_found, last_seen_at
		FROM host_yield WHERE host = ?
	`, host).Scan(&y.Attempts, &y.CandidatesFound, &y.AcceptedFound, &y.LastSeenAt)
	if err == sql.ErrNoRows {
		return y, nil
	}
	if err != nil {
		return HostYield{}, fmt.Errorf("learning: get host yield for %s: %w", host, err)
	}
	return y, nil
}

// HostYieldScore returns an integer yield score in the same small range
// the planner's priority formula expects (roughly -10..10): a host with
// a strong accepted-candidate rate over several attempts scores high,
// an untried host scores zero, and a host that has been tried often
// with nothing accepted scores negative.
func (s *Store) HostYieldScore(host string) (int, error) {
	var attempts, accepted int
	err := s.db.QueryRow(`SELECT attempts, accepted_found FROM host_yield WHERE host = ?`, host).Scan(&attempts, &accepted)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("learning: host yield score for %s: %w", host, err)
	}
	return yieldScore(attempts, accepted), nil
}

func yieldScore(attempts, accepted int) int {
	if attempts == 0 {
		return 0
	}
	rate := float64(accepted) / float64(attempts)
	score := int(rate*10) - (attempts-accepted)/3
	if score > 10 {
		return 10
	}
	if score < -10 {
		return -10
	}
	return score
}

// RecordFieldPathHit records that a field was found at a given key path
// for a category, growing the learned affinity that later runs use to
// prioritize extraction methods for the same field/category pair.
func (s *Store) RecordFieldPathHit(category, fieldKey, keyPath string) error {
	_, err := s.db.Exec(`
		INSERT INTO field_path_yield (category, field_key, key_path, hits, last_seen_at)
		VALUES (?, ?, ?, 1, datetime('now'))
		ON CONFLICT(category, field_key, key_path) DO UPDATE SET
			hits = hits + 1,
			last_seen_at = datetime('now')
	`, category, fieldKey, keyPath)
	if err != nil {
		return fmt.Errorf("learning: record field path hit for %s/%s: %w", category, fieldKey, err)
	}
	return nil
}

// TopKeyPaths returns the most-hit key paths recorded for a field within
// a category, most-hit first, used to seed keyPathAffinity scoring.
func (s *Store) TopKeyPaths(category, fieldKey string, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT key_path FROM field_path_yield
		WHERE category = ? AND field_key = ?
		ORDER BY hits DESC, last_seen_at DESC
		LIMIT ?
	`, category, fieldKey, limit)
	if err != nil {
		return nil, fmt.Errorf("learning: top key paths for %s/%s: %w", category, fieldKey, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var keyPath string
		if err := rows.Scan(&keyPath); err != nil {
			return nil, fmt.Errorf("learning: scan key path: %w", err)
		}
		out = append(out, keyPath)
	}
	return out, rows.Err()
}
