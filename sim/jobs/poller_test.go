package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
)

// lateAPI reports the job as unknown for the first few lookups, then
// walks it through PENDING and IN_PROGRESS to COMPLETED.
type lateAPI struct {
	hiddenFor int
	calls     int
	sub       Submission
}

func (l *lateAPI) ProblemStatus(_ context.Context, id string) (ProblemStatus, error) {
	l.calls++
	if l.calls <= l.hiddenFor {
		return ProblemStatus{}, ErrNotFound
	}
	steps := []Status{StatusPending, StatusInProgress, StatusCompleted}
	i := l.calls - l.hiddenFor - 1
	if i >= len(steps) {
		i = len(steps) - 1
	}
	return ProblemStatus{ID: id, Status: steps[i], Label: Label(l.sub.SubmitTime)}, nil
}

func (l *lateAPI) Answer(context.Context, string) (*sim.SampleSet, error) {
	return nil, ErrNotReady
}

func TestPoller_RetriesUntilTerminal(t *testing.T) {
	sub := Submission{JobID: "job-1", SubmitTime: "2026-01-01T00:00:00Z"}
	api := &lateAPI{hiddenFor: 2, sub: sub}

	status, err := NewPoller(api, fastPoll).Wait(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, 5, api.calls)
}

func TestPoller_ContextEnds(t *testing.T) {
	sub := Submission{JobID: "job-1", SubmitTime: "t"}
	api := &lateAPI{hiddenFor: 1 << 30, sub: sub}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewPoller(api, fastPoll).Wait(ctx, sub)
	assert.Error(t, err)
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&fakeAPI{}, PollConfig{})
	assert.Equal(t, 1, p.limiter.Burst())
	assert.InDelta(t, 1.0, float64(p.limiter.Limit()), 1e-9)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	long := inlineJobIDString(60)
	got := shortID(long)
	assert.Len(t, got, 40)
	assert.Equal(t, "...", got[37:])
}

func inlineJobIDString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

// recordingObserver keeps every notification.
type recordingObserver struct {
	mu        sync.Mutex
	submitted []Submission
	finished  map[string]Status
}

func (r *recordingObserver) JobSubmitted(_ context.Context, sub Submission, _ sim.SampleParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, sub)
	return nil
}

func (r *recordingObserver) JobFinished(_ context.Context, sub Submission, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]Status)
	}
	r.finished[sub.JobID] = status
	return nil
}

func TestServiceSampler_ThroughLocalService(t *testing.T) {
	svc := NewLocalService(sim.NewAnnealingSampler())
	defer svc.Close()
	obs := &recordingObserver{}
	// Reversed placement: logical variable v lives on qubit 100+(7-v).
	emb := embedding.Embedding{}
	for v := 0; v < 8; v++ {
		emb[v] = []int{100 + 7 - v}
	}
	s := &ServiceSampler{Submitter: svc, API: svc, Poll: fastPoll, Embedding: emb, Observer: obs}

	ring, err := sim.NewRingBQM(8, -1.4)
	require.NoError(t, err)
	ss, err := s.Sample(context.Background(), ring, sim.SampleParams{NumReads: 4, AnnealingTimeNs: 10, Seed: 2})
	require.NoError(t, err)

	assert.Equal(t, 4, ss.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, ss.Variables)
	for i, row := range ss.Samples {
		assert.Equal(t, ring.Energy(row), ss.Energies[i])
	}
	require.Len(t, obs.submitted, 1)
	assert.Equal(t, StatusCompleted, obs.finished[obs.submitted[0].JobID])
}

func TestServiceSampler_InlineMatchesDirectSampling(t *testing.T) {
	ring, err := sim.NewRingBQM(6, -1)
	require.NoError(t, err)
	params := sim.SampleParams{NumReads: 3, AnnealingTimeNs: 4, Seed: 8}

	s := &ServiceSampler{Submitter: InlineSubmitter{Sampler: sim.NewAnnealingSampler()}}
	got, err := s.Sample(context.Background(), ring, params)
	require.NoError(t, err)

	want, err := sim.NewAnnealingSampler().Sample(context.Background(), ring, params)
	require.NoError(t, err)
	assert.Equal(t, want.Samples, got.Samples)
}

func TestServiceSampler_FailedJob(t *testing.T) {
	svc := NewLocalService(errSampler{})
	defer svc.Close()
	obs := &recordingObserver{}
	s := &ServiceSampler{Submitter: svc, API: svc, Poll: fastPoll, Observer: obs}

	ring, err := sim.NewRingBQM(4, -1)
	require.NoError(t, err)
	_, err = s.Sample(context.Background(), ring, sim.SampleParams{NumReads: 1, AnnealingTimeNs: 1})
	assert.ErrorContains(t, err, "finished with status FAILED")
	assert.Equal(t, StatusFailed, obs.finished[obs.submitted[0].JobID])
}

func TestServiceSampler_RejectsChainedEmbedding(t *testing.T) {
	ring, err := sim.NewRingBQM(2, -1)
	require.NoError(t, err)
	s := &ServiceSampler{
		Submitter: InlineSubmitter{Sampler: sim.NewAnnealingSampler()},
		Embedding: embedding.Embedding{0: {0, 1}, 1: {2}},
	}
	_, err = s.Sample(context.Background(), ring, sim.SampleParams{NumReads: 1})
	assert.ErrorIs(t, err, embedding.ErrChains)
}
