package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
)

// fakeAPI serves fixed problem statuses and answers.
type fakeAPI struct {
	statuses map[string]ProblemStatus
	answers  map[string]*sim.SampleSet
	err      error
}

func (f *fakeAPI) ProblemStatus(_ context.Context, id string) (ProblemStatus, error) {
	if f.err != nil {
		return ProblemStatus{}, f.err
	}
	st, ok := f.statuses[id]
	if !ok {
		return ProblemStatus{}, ErrNotFound
	}
	return st, nil
}

func (f *fakeAPI) Answer(_ context.Context, id string) (*sim.SampleSet, error) {
	ss, ok := f.answers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ss, nil
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Kibble-Zurek ring, submitted: 2026-01-02T03:04:05Z", Label("2026-01-02T03:04:05Z"))
}

func inlineJobID(t *testing.T) string {
	t.Helper()
	ring, err := sim.NewRingBQM(4, -1)
	require.NoError(t, err)
	id, err := sim.NewSampleSet(ring, [][]int8{{1, -1, 1, -1}}).Serializable()
	require.NoError(t, err)
	return id
}

func TestJobStatus(t *testing.T) {
	const submitted = "2026-03-01T10:00:00Z"
	api := &fakeAPI{statuses: map[string]ProblemStatus{
		"job-1": {ID: "job-1", Status: StatusInProgress, Label: Label(submitted)},
		"job-2": {ID: "job-2", Status: StatusCompleted, Label: "someone else's problem"},
	}}

	tests := []struct {
		name       string
		jobID      string
		submitTime string
		wantStatus Status
		wantOK     bool
	}{
		{"label time matches", "job-1", submitted, StatusInProgress, true},
		{"label time differs", "job-1", "2026-03-01T11:00:00Z", "", false},
		{"label without marker", "job-2", submitted, "", false},
		{"unknown job", "job-404", submitted, "", false},
		{"inline sample set", inlineJobID(t), InlineSubmitTime, StatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok, err := JobStatus(context.Background(), api, tt.jobID, tt.submitTime)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestJobStatus_InlineNeedsNoAPI(t *testing.T) {
	status, ok, err := JobStatus(context.Background(), nil, inlineJobID(t), InlineSubmitTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, status)
}

func TestJobStatus_Errors(t *testing.T) {
	_, _, err := JobStatus(context.Background(), nil, "job-1", "t")
	assert.ErrorContains(t, err, "no problem API")

	boom := errors.New("connection reset")
	_, _, err = JobStatus(context.Background(), &fakeAPI{err: boom}, "job-1", "t")
	assert.ErrorIs(t, err, boom)
}

func TestSamples(t *testing.T) {
	ring, err := sim.NewRingBQM(4, -1)
	require.NoError(t, err)

	t.Run("inline", func(t *testing.T) {
		ss, err := Samples(context.Background(), nil, inlineJobID(t), embedding.Identity(4), ring)
		require.NoError(t, err)
		assert.Equal(t, [][]int8{{1, -1, 1, -1}}, ss.Samples)
	})

	t.Run("from service through embedding", func(t *testing.T) {
		emb := embedding.Embedding{0: {13}, 1: {12}, 2: {11}, 3: {10}}
		api := &fakeAPI{answers: map[string]*sim.SampleSet{"job-1": {
			Variables: []int{10, 11, 12, 13},
			Samples:   [][]int8{{1, 1, -1, -1}},
		}}}
		ss, err := Samples(context.Background(), api, "job-1", emb, ring)
		require.NoError(t, err)
		assert.Equal(t, [][]int8{{-1, -1, 1, 1}}, ss.Samples)
	})

	t.Run("missing answer", func(t *testing.T) {
		_, err := Samples(context.Background(), &fakeAPI{}, "job-9", embedding.Identity(4), ring)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
