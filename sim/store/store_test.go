package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/jobs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveTestRun(t *testing.T, s *Store, id string, created time.Time) Run {
	t.Helper()
	run := Run{
		ID:        id,
		Solver:    "local-sa",
		Schedule:  "FALLBACK_SCHEDULE.csv",
		NumSpins:  512,
		Coupling:  -1.4,
		NumReads:  100,
		Seed:      42,
		CreatedAt: created,
	}
	require.NoError(t, s.SaveRun(context.Background(), run))
	return run
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, filepath.Join(dir, "ledger.db"), s.Path())
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	saveTestRun(t, s, "run-1", time.Now().UTC())
	require.NoError(t, s.Close())

	s, err = NewStore(dir)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetRun(context.Background(), "run-1")
	assert.NoError(t, err)
}

func TestRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	saveTestRun(t, s, "run-old", older)
	want := saveTestRun(t, s, "run-new", newer)

	got, err := s.GetRun(ctx, "run-new")
	require.NoError(t, err)
	assert.Equal(t, want.Solver, got.Solver)
	assert.Equal(t, want.NumSpins, got.NumSpins)
	assert.Equal(t, want.Coupling, got.Coupling)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, want.CreatedAt)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-old", runs[1].ID)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.SaveRun(ctx, want), "duplicate run id")
}

func TestJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestRun(t, s, "run-1", time.Time{})

	for i, ns := range []float64{20, 5} {
		require.NoError(t, s.SaveJob(ctx, Job{
			ID:           []string{"a", "b"}[i],
			RunID:        "run-1",
			JobID:        []string{"job-20", "job-5"}[i],
			SubmitTime:   "2026-01-01T00:00:00Z",
			AnnealTimeNs: ns,
			Status:       "PENDING",
		}))
	}
	require.NoError(t, s.UpdateJobStatus(ctx, "run-1", "job-5", "2026-01-01T00:00:00Z", "COMPLETED"))

	got, err := s.ListJobs(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5.0, got[0].AnnealTimeNs)
	assert.Equal(t, "COMPLETED", got[0].Status)
	assert.Equal(t, "PENDING", got[1].Status)

	err = s.UpdateJobStatus(ctx, "run-1", "job-5", "another time", "FAILED")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.SaveJob(ctx, Job{ID: "c", RunID: "no-such-run", JobID: "x", SubmitTime: "t", Status: "PENDING"})
	assert.Error(t, err, "foreign key must be enforced")
}

func TestResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestRun(t, s, "run-1", time.Time{})

	require.NoError(t, s.SaveResult(ctx, Result{RunID: "run-1", AnnealTimeNs: 10, KinkDensity: 0.1, TheoryDensity: math.NaN(), Counts: []int{1, 2}}))
	require.NoError(t, s.SaveResult(ctx, Result{RunID: "run-1", AnnealTimeNs: 5, KinkDensity: 0.3, TheoryDensity: 0.25, Counts: []int{3}}))
	// Replaces the 10ns row.
	require.NoError(t, s.SaveResult(ctx, Result{RunID: "run-1", AnnealTimeNs: 10, KinkDensity: 0.2, TheoryDensity: 0.15, Counts: []int{4, 4}}))

	got, err := s.ListResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5.0, got[0].AnnealTimeNs)
	assert.Equal(t, []int{3}, got[0].Counts)
	assert.Equal(t, 0.2, got[1].KinkDensity)
	assert.Equal(t, []int{4, 4}, got[1].Counts)
}

func TestResults_NaNStoredAsNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestRun(t, s, "run-1", time.Time{})

	require.NoError(t, s.SaveResult(ctx, Result{RunID: "run-1", AnnealTimeNs: 1, KinkDensity: math.NaN(), TheoryDensity: math.Inf(1)}))
	got, err := s.ListResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, math.IsNaN(got[0].KinkDensity))
	assert.True(t, math.IsNaN(got[0].TheoryDensity))
	assert.Nil(t, got[0].Counts)
}

func TestJobRecorder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestRun(t, s, "run-1", time.Time{})
	rec := &JobRecorder{Store: s, RunID: "run-1"}

	queued := jobs.Submission{JobID: "job-1", SubmitTime: "2026-01-01T00:00:00Z"}
	require.NoError(t, rec.JobSubmitted(ctx, queued, sim.SampleParams{NumReads: 1, AnnealingTimeNs: 7}))
	inline := jobs.Submission{JobID: `{"type":"SampleSet"}`, SubmitTime: jobs.InlineSubmitTime}
	require.NoError(t, rec.JobSubmitted(ctx, inline, sim.SampleParams{NumReads: 1, AnnealingTimeNs: 3}))

	got, err := s.ListJobs(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, string(jobs.StatusCompleted), got[0].Status, "inline jobs are complete on submission")
	assert.Equal(t, string(jobs.StatusPending), got[1].Status)

	require.NoError(t, rec.JobFinished(ctx, queued, jobs.StatusCompleted))
	got, err = s.ListJobs(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusCompleted), got[1].Status)
}

func TestMigrate_FailedMigrationLeavesNoTrace(t *testing.T) {
	s := newTestStore(t)
	bad := fstest.MapFS{
		"002_extra.up.sql": &fstest.MapFile{Data: []byte(`
			CREATE TABLE extra (id INTEGER PRIMARY KEY);
			INSERT INTO no_such_table (id) VALUES (1);
		`)},
	}

	err := s.migrate(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_extra.up.sql")

	var version int
	require.NoError(t, s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)

	var tables int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'extra'").Scan(&tables))
	assert.Zero(t, tables, "partial migration must roll back")
}
