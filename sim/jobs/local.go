package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
)

// Submitter hands a physical problem to a sampling service.
type Submitter interface {
	Submit(ctx context.Context, prob *embedding.PhysicalProblem, params sim.SampleParams) (Submission, error)
}

// InlineSubmitter samples synchronously and returns the serialized sample set
// as the job id, with InlineSubmitTime as the submission time.
type InlineSubmitter struct {
	Sampler sim.Sampler
}

// Submit implements Submitter.
func (s InlineSubmitter) Submit(ctx context.Context, prob *embedding.PhysicalProblem, params sim.SampleParams) (Submission, error) {
	ss, err := s.Sampler.Sample(ctx, prob.BQM, params)
	if err != nil {
		return Submission{}, err
	}
	ss.Variables = append([]int(nil), prob.Qubits...)
	id, err := ss.Serializable()
	if err != nil {
		return Submission{}, err
	}
	return Submission{JobID: id, SubmitTime: InlineSubmitTime}, nil
}

// localJob is one problem held by a LocalService.
type localJob struct {
	status ProblemStatus
	answer *sim.SampleSet
	err    error
	cancel context.CancelFunc
}

// LocalService is an in-process annealing service. Each submission runs the
// sampler on its own goroutine; status and answers are served through the
// ProblemAPI interface like a remote service would.
type LocalService struct {
	sampler sim.Sampler
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*localJob
	wg   sync.WaitGroup
}

var (
	_ Submitter  = (*LocalService)(nil)
	_ ProblemAPI = (*LocalService)(nil)
	_ Submitter  = InlineSubmitter{}
)

// NewLocalService creates a service backed by sampler.
func NewLocalService(sampler sim.Sampler) *LocalService {
	return &LocalService{
		sampler: sampler,
		now:     time.Now,
		jobs:    make(map[string]*localJob),
	}
}

// Submit queues prob for sampling and returns immediately. The job keeps
// running after ctx ends; use Cancel or Close to stop it.
func (s *LocalService) Submit(ctx context.Context, prob *embedding.PhysicalProblem, params sim.SampleParams) (Submission, error) {
	if err := params.Validate(); err != nil {
		return Submission{}, err
	}
	sub := Submission{
		JobID:      uuid.NewString(),
		SubmitTime: s.now().UTC().Format(SubmitTimeLayout),
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &localJob{
		status: ProblemStatus{ID: sub.JobID, Status: StatusPending, Label: Label(sub.SubmitTime)},
		cancel: cancel,
	}

	s.mu.Lock()
	s.jobs[sub.JobID] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(jobCtx, sub.JobID, prob, params)
	}()
	logrus.Debugf("submitted job %s (%d qubits, %gns)", sub.JobID, len(prob.Qubits), params.AnnealingTimeNs)
	return sub, nil
}

func (s *LocalService) run(ctx context.Context, id string, prob *embedding.PhysicalProblem, params sim.SampleParams) {
	if !s.transition(id, StatusInProgress) {
		return
	}
	ss, err := s.sampler.Sample(ctx, prob.BQM, params)
	if err == nil {
		ss.Variables = append([]int(nil), prob.Qubits...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	if job.status.Status == StatusCancelled {
		return
	}
	if err != nil {
		job.status.Status = StatusFailed
		job.err = err
		logrus.Warnf("job %s failed: %v", id, err)
		return
	}
	job.status.Status = StatusCompleted
	job.answer = ss
}

// transition moves a non-terminal job to next and reports whether it did.
func (s *LocalService) transition(id string, next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	if job.status.Status.Terminal() {
		return false
	}
	job.status.Status = next
	return true
}

// ProblemStatus implements ProblemAPI.
func (s *LocalService) ProblemStatus(_ context.Context, id string) (ProblemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ProblemStatus{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return job.status, nil
}

// Answer implements ProblemAPI.
func (s *LocalService) Answer(_ context.Context, id string) (*sim.SampleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	switch job.status.Status {
	case StatusCompleted:
		return job.answer, nil
	case StatusFailed:
		return nil, fmt.Errorf("job %s failed: %w", id, job.err)
	default:
		return nil, fmt.Errorf("job %s is %s: %w", id, job.status.Status, ErrNotReady)
	}
}

// Cancel stops a job that has not finished.
func (s *LocalService) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if !job.status.Status.Terminal() {
		job.status.Status = StatusCancelled
		job.cancel()
	}
	return nil
}

// Close cancels every unfinished job and waits for all goroutines to exit.
func (s *LocalService) Close() {
	s.mu.Lock()
	for _, job := range s.jobs {
		if !job.status.Status.Terminal() {
			job.status.Status = StatusCancelled
			job.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}
