package runstate

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"dicer/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// DBFilename is the per-run database file name.
const DBFilename = "state.db"

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database inside runDir.
func Open(runDir string) (*Store, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure run directory: %w", err)
	}

	dbPath := filepath.Join(runDir, DBFilename)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Exists reports whether a run database is present in runDir.
func Exists(runDir string) bool {
	info, err := os.Stat(filepath.Join(runDir, DBFilename))
	return err == nil && !info.IsDir()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return services.Wrap(services.ErrStateCorruption, "state", "schema", "read schema version", err)
	}
	if version != schemaVersion {
		return services.Wrap(services.ErrStateCorruption, "state", "schema",
			fmt.Sprintf("database has version %d, expected %d", version, schemaVersion), nil)
	}
	return nil
}

// CreateRun inserts the run header. The configuration snapshot and its
// canonical hash are fixed at creation.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = RunActive
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (run_id, offer_id, config_json, config_hash, cost_cap, status, created_at, updated_at, finalized_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.OfferID,
		run.ConfigJSON,
		run.ConfigHash,
		run.CostCap,
		run.Status,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTime(run.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun fetches the run header. Returns nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, offer_id, config_json, config_hash, cost_cap, status, created_at, updated_at, finalized_at
         FROM runs WHERE run_id = ?`,
		runID,
	)

	var (
		run          Run
		statusStr    string
		createdRaw   string
		updatedRaw   string
		finalizedRaw sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.OfferID,
		&run.ConfigJSON,
		&run.ConfigHash,
		&run.CostCap,
		&statusStr,
		&createdRaw,
		&updatedRaw,
		&finalizedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.Status = RunStatus(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	if finalizedRaw.Valid {
		if finalized, err := parseTimeString(finalizedRaw.String); err == nil {
			run.FinalizedAt = &finalized
		}
	}
	return &run, nil
}

// UpdateRun persists mutable run header fields.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET cost_cap = ?, status = ?, updated_at = ?, finalized_at = ? WHERE run_id = ?`,
		run.CostCap,
		run.Status,
		run.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(run.FinalizedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
