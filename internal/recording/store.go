package recording

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// migrationsFS holds the recording job ledger's schema, embedded the same
// way the teacher's internal/store package embeds its own migrations.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sqlite-backed ledger of recording jobs: one row per
// trajectory-zip or combined-package recording, tracking its lifecycle from
// start through completion or failure. Grounded on
// internal/store/store.go's Open/migrate shape, repurposed from the
// teacher's coding-agent job table to recording jobs.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the sqlite database at dsn and
// applies any pending migrations.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("recording: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording: enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// CreateJob inserts a running job row with the caller's id and the given
// kind ("trajectory" or "combined").
func (s *Store) CreateJob(id, kind string) error {
	_, err := s.db.Exec(
		`INSERT INTO recording_jobs (id, kind, status, started_at) VALUES (?, ?, 'running', ?)`,
		id, kind, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording: create job: %w", err)
	}
	return nil
}

// CompleteJob marks a job completed with the archive it produced.
func (s *Store) CompleteJob(id, archivePath string) error {
	_, err := s.db.Exec(
		`UPDATE recording_jobs SET status = 'completed', archive_path = ?, finished_at = ? WHERE id = ?`,
		archivePath, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording: complete job: %w", err)
	}
	return nil
}

// FailJob marks a job failed with the error that ended it.
func (s *Store) FailJob(id, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE recording_jobs SET status = 'failed', error = ?, finished_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording: fail job: %w", err)
	}
	return nil
}
