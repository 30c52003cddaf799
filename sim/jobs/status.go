// Package jobs tracks sampling jobs submitted to an annealing service: status
// lookup, polling, result retrieval, and an in-process service that runs a
// local sampler behind the same interface.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
)

// Status is the remote status of a submitted problem.
type Status string

// These are the values a Status can take.
const (
	StatusPending    Status = "PENDING"     // problem is waiting in a queue
	StatusInProgress Status = "IN_PROGRESS" // problem is being solved
	StatusCompleted  Status = "COMPLETED"   // solving succeeded
	StatusFailed     Status = "FAILED"      // solving failed
	StatusCancelled  Status = "CANCELLED"   // problem cancelled by user
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InlineSubmitTime marks jobs whose id is the serialized sample set itself,
// produced by sampling in-process rather than on a service.
const InlineSubmitTime = "SA"

// labelMarker separates the label text from the submission time.
const labelMarker = "submitted: "

// SubmitTimeLayout formats submission times embedded in problem labels.
const SubmitTimeLayout = time.RFC3339Nano

var (
	// ErrNotFound is returned by a ProblemAPI for unknown problem ids.
	ErrNotFound = errors.New("problem not found")

	// ErrNotReady is returned when an answer is requested before completion.
	ErrNotReady = errors.New("problem has no answer yet")
)

// ProblemStatus is what a ProblemAPI reports about one problem.
type ProblemStatus struct {
	ID     string
	Status Status
	Label  string
}

// ProblemAPI is the annealing service's problem endpoint.
type ProblemAPI interface {
	ProblemStatus(ctx context.Context, id string) (ProblemStatus, error)
	Answer(ctx context.Context, id string) (*sim.SampleSet, error)
}

// Submission identifies a submitted job. SubmitTime disambiguates reused ids:
// a job only counts as ours if its label carries the same time.
type Submission struct {
	JobID      string
	SubmitTime string
}

// Label returns the problem label recorded with a submission time.
func Label(submitTime string) string {
	return "Kibble-Zurek ring, " + labelMarker + submitTime
}

// JobStatus returns the status of a submitted job. The boolean is false when
// the job is unknown to the service or was not submitted at submitTime.
// Inline jobs (a serialized sample set with InlineSubmitTime) are always
// complete and never touch api.
func JobStatus(ctx context.Context, api ProblemAPI, jobID, submitTime string) (Status, bool, error) {
	if submitTime == InlineSubmitTime && sim.IsSerializedSampleSet(jobID) {
		return StatusCompleted, true, nil
	}
	if api == nil {
		return "", false, fmt.Errorf("job %s: no problem API configured", jobID)
	}
	st, err := api.ProblemStatus(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("job %s status: %w", jobID, err)
	}
	_, labelTime, found := strings.Cut(st.Label, labelMarker)
	if !found || labelTime != submitTime {
		return "", false, nil
	}
	return st.Status, true, nil
}

// Samples retrieves a job's answer and unembeds it onto bqm's variables.
func Samples(ctx context.Context, api ProblemAPI, jobID string, emb embedding.Embedding, bqm *sim.BQM) (*sim.SampleSet, error) {
	var ss *sim.SampleSet
	var err error
	if sim.IsSerializedSampleSet(jobID) {
		ss, err = sim.SampleSetFromSerializable(jobID)
	} else if api == nil {
		err = fmt.Errorf("job %s: no problem API configured", jobID)
	} else {
		ss, err = api.Answer(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}
	return embedding.Unembed(ss, emb, bqm)
}
