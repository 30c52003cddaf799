package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/jobs"
)

// JobRecorder records a run's job submissions and status changes in the ledger.
type JobRecorder struct {
	Store *Store
	RunID string
}

var _ jobs.Observer = (*JobRecorder)(nil)

// JobSubmitted implements jobs.Observer.
func (r *JobRecorder) JobSubmitted(ctx context.Context, sub jobs.Submission, params sim.SampleParams) error {
	status := jobs.StatusPending
	if sub.SubmitTime == jobs.InlineSubmitTime {
		status = jobs.StatusCompleted
	}
	return r.Store.SaveJob(ctx, Job{
		ID:           uuid.NewString(),
		RunID:        r.RunID,
		JobID:        sub.JobID,
		SubmitTime:   sub.SubmitTime,
		AnnealTimeNs: params.AnnealingTimeNs,
		Status:       string(status),
	})
}

// JobFinished implements jobs.Observer.
func (r *JobRecorder) JobFinished(ctx context.Context, sub jobs.Submission, status jobs.Status) error {
	return r.Store.UpdateJobStatus(ctx, r.RunID, sub.JobID, sub.SubmitTime, string(status))
}
