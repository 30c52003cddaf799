// Package store keeps a SQLite ledger of experiment runs, the jobs they
// submitted and the kink densities they measured.
//
// The database uses modernc.org/sqlite (pure Go, no cgo). The schema is
// managed through numbered *.up.sql migrations embedded from migrations/.
// By default the database lives at ~/.kz-sim/data/ledger.db.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kz-sim/kz-sim/sim/store/migrations"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one invocation of an experiment sweep.
type Run struct {
	ID        string
	Solver    string
	Schedule  string
	NumSpins  int
	Coupling  float64
	NumReads  int
	Seed      int64
	CreatedAt time.Time
}

// Job is one submitted sampling job of a run.
type Job struct {
	ID           string
	RunID        string
	JobID        string
	SubmitTime   string
	AnnealTimeNs float64
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Result is the measured and predicted kink density at one anneal time.
type Result struct {
	RunID         string
	AnnealTimeNs  float64
	KinkDensity   float64
	TheoryDensity float64
	Counts        []int
	CreatedAt     time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the ledger in dataDir.
// If dataDir is empty, defaults to ~/.kz-sim/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kz-sim", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "ledger.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every *.up.sql newer than the recorded schema version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(name, version, string(content)); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs one migration and records its version atomically.
func (s *Store) applyMigration(name string, version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("executing migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", name, err)
	}
	return nil
}

// SaveRun stores a run. CreatedAt defaults to now.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, solver, schedule, num_spins, coupling, num_reads, seed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Solver, run.Schedule, run.NumSpins, run.Coupling, run.NumReads, run.Seed, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, solver, schedule, num_spins, coupling, num_reads, seed, created_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, solver, schedule, num_spins, coupling, num_reads, seed, created_at
		FROM runs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	if err := row.Scan(&run.ID, &run.Solver, &run.Schedule, &run.NumSpins, &run.Coupling,
		&run.NumReads, &run.Seed, &run.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return &run, nil
}

// SaveJob stores a job record. Timestamps default to now.
func (s *Store) SaveJob(ctx context.Context, job Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, run_id, job_id, submit_time, anneal_time_ns, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.RunID, job.JobID, job.SubmitTime, job.AnnealTimeNs, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJobStatus sets the status of a run's job identified by its service id
// and submission time.
func (s *Store) UpdateJobStatus(ctx context.Context, runID, jobID, submitTime, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE run_id = ? AND job_id = ? AND submit_time = ?
	`, status, time.Now().UTC(), runID, jobID, submitTime)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s job submitted at %s: %w", runID, submitTime, ErrNotFound)
	}
	return nil
}

// ListJobs returns a run's jobs ordered by anneal time.
func (s *Store) ListJobs(ctx context.Context, runID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, job_id, submit_time, anneal_time_ns, status, created_at, updated_at
		FROM jobs WHERE run_id = ? ORDER BY anneal_time_ns, created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.RunID, &j.JobID, &j.SubmitTime, &j.AnnealTimeNs, &j.Status,
			&j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

// SaveResult stores or replaces the result at one anneal time of a run.
// NaN densities are stored as NULL.
func (s *Store) SaveResult(ctx context.Context, r Result) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("encoding counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, anneal_time_ns, kink_density, theory_density, counts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, anneal_time_ns) DO UPDATE SET
			kink_density = excluded.kink_density,
			theory_density = excluded.theory_density,
			counts = excluded.counts,
			created_at = excluded.created_at
	`, r.RunID, r.AnnealTimeNs, nullFloat(r.KinkDensity), nullFloat(r.TheoryDensity), string(counts), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

// ListResults returns a run's results ordered by anneal time.
func (s *Store) ListResults(ctx context.Context, runID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, anneal_time_ns, kink_density, theory_density, counts, created_at
		FROM results WHERE run_id = ? ORDER BY anneal_time_ns
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var kink, theory sql.NullFloat64
		var counts string
		if err := rows.Scan(&r.RunID, &r.AnnealTimeNs, &kink, &theory, &counts, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
			return nil, fmt.Errorf("decoding counts: %w", err)
		}
		r.KinkDensity = floatOrNaN(kink)
		r.TheoryDensity = floatOrNaN(theory)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
