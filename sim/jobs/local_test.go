package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
)

var fastPoll = PollConfig{Interval: time.Millisecond, Burst: 1}

// blockingSampler runs until its context ends.
type blockingSampler struct {
	started chan struct{}
}

func (b *blockingSampler) Sample(ctx context.Context, _ *sim.BQM, _ sim.SampleParams) (*sim.SampleSet, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

// errSampler always fails.
type errSampler struct{}

func (errSampler) Sample(context.Context, *sim.BQM, sim.SampleParams) (*sim.SampleSet, error) {
	return nil, errors.New("qpu offline")
}

func physicalRing(t *testing.T, n int) *embedding.PhysicalProblem {
	t.Helper()
	ring, err := sim.NewRingBQM(n, -1.4)
	require.NoError(t, err)
	prob, err := embedding.EmbedBQM(ring, embedding.Identity(n))
	require.NoError(t, err)
	return prob
}

func TestLocalService_SubmitAndPoll(t *testing.T) {
	svc := NewLocalService(sim.NewAnnealingSampler())
	defer svc.Close()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	sub, err := svc.Submit(context.Background(), physicalRing(t, 8), sim.SampleParams{NumReads: 3, AnnealingTimeNs: 5, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, fixed.Format(SubmitTimeLayout), sub.SubmitTime)
	assert.NotEmpty(t, sub.JobID)

	st, err := svc.ProblemStatus(context.Background(), sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, Label(sub.SubmitTime), st.Label)

	status, err := NewPoller(svc, fastPoll).Wait(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	ans, err := svc.Answer(context.Background(), sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, 3, ans.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, ans.Variables)
}

func TestLocalService_FailedJob(t *testing.T) {
	svc := NewLocalService(errSampler{})
	defer svc.Close()

	sub, err := svc.Submit(context.Background(), physicalRing(t, 4), sim.SampleParams{NumReads: 1, AnnealingTimeNs: 1})
	require.NoError(t, err)
	status, err := NewPoller(svc, fastPoll).Wait(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	_, err = svc.Answer(context.Background(), sub.JobID)
	assert.ErrorContains(t, err, "qpu offline")
}

func TestLocalService_Cancel(t *testing.T) {
	bs := &blockingSampler{started: make(chan struct{})}
	svc := NewLocalService(bs)
	defer svc.Close()

	sub, err := svc.Submit(context.Background(), physicalRing(t, 4), sim.SampleParams{NumReads: 1, AnnealingTimeNs: 1})
	require.NoError(t, err)
	<-bs.started

	_, err = svc.Answer(context.Background(), sub.JobID)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, svc.Cancel(sub.JobID))
	status, err := NewPoller(svc, fastPoll).Wait(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	assert.ErrorIs(t, svc.Cancel("nope"), ErrNotFound)
}

func TestLocalService_CloseStopsRunningJobs(t *testing.T) {
	bs := &blockingSampler{started: make(chan struct{})}
	svc := NewLocalService(bs)
	sub, err := svc.Submit(context.Background(), physicalRing(t, 4), sim.SampleParams{NumReads: 1, AnnealingTimeNs: 1})
	require.NoError(t, err)
	<-bs.started

	svc.Close()
	st, err := svc.ProblemStatus(context.Background(), sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
}

func TestLocalService_JobOutlivesSubmitContext(t *testing.T) {
	svc := NewLocalService(sim.NewAnnealingSampler())
	defer svc.Close()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := svc.Submit(ctx, physicalRing(t, 4), sim.SampleParams{NumReads: 2, AnnealingTimeNs: 2})
	require.NoError(t, err)
	cancel()

	status, err := NewPoller(svc, fastPoll).Wait(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
}

func TestLocalService_RejectsInvalidParams(t *testing.T) {
	svc := NewLocalService(sim.NewAnnealingSampler())
	defer svc.Close()
	_, err := svc.Submit(context.Background(), physicalRing(t, 4), sim.SampleParams{NumReads: 0})
	assert.Error(t, err)
}

func TestLocalService_UnknownProblem(t *testing.T) {
	svc := NewLocalService(sim.NewAnnealingSampler())
	defer svc.Close()
	_, err := svc.ProblemStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Answer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInlineSubmitter(t *testing.T) {
	ring, err := sim.NewRingBQM(3, -1)
	require.NoError(t, err)
	prob, err := embedding.EmbedBQM(ring, embedding.Embedding{0: {20}, 1: {21}, 2: {22}})
	require.NoError(t, err)

	sub, err := InlineSubmitter{Sampler: sim.NewAnnealingSampler()}.Submit(
		context.Background(), prob, sim.SampleParams{NumReads: 2, AnnealingTimeNs: 1})
	require.NoError(t, err)
	assert.Equal(t, InlineSubmitTime, sub.SubmitTime)

	ss, err := sim.SampleSetFromSerializable(sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 21, 22}, ss.Variables)
	assert.Equal(t, 2, ss.Len())
}
