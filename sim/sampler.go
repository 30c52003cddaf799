package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// SampleParams configures one sampling job.
type SampleParams struct {
	NumReads        int     // number of independent anneals (must be > 0)
	AnnealingTimeNs float64 // anneal duration in nanoseconds (must be >= 0)
	Seed            int64   // experiment seed; see PartitionedRNG
}

// Validate checks the parameters.
func (p SampleParams) Validate() error {
	if p.NumReads <= 0 {
		return fmt.Errorf("num_reads must be positive, got %d", p.NumReads)
	}
	if math.IsNaN(p.AnnealingTimeNs) || p.AnnealingTimeNs < 0 {
		return fmt.Errorf("annealing_time must be non-negative, got %f", p.AnnealingTimeNs)
	}
	return nil
}

// Sampler draws spin assignments for a model.
type Sampler interface {
	Sample(ctx context.Context, bqm *BQM, params SampleParams) (*SampleSet, error)
}

// AnnealingSampler is a classical simulated-annealing stand-in for a quantum
// annealer. Each read starts from a random state and runs Metropolis
// single-spin-flip sweeps while the inverse temperature rises geometrically
// across BetaRange. Longer anneal times map to more sweeps, so slower
// quenches leave fewer frozen kinks.
type AnnealingSampler struct {
	SweepsPerNs float64    // sweeps per nanosecond of anneal time (default 1)
	BetaRange   [2]float64 // hot and cold inverse temperatures; zero derives them from the model
}

// NewAnnealingSampler returns a sampler with default settings.
func NewAnnealingSampler() *AnnealingSampler {
	return &AnnealingSampler{SweepsPerNs: 1}
}

// NumSweeps returns the number of sweeps run for an anneal time.
func (s *AnnealingSampler) NumSweeps(annealingTimeNs float64) int {
	perNs := s.SweepsPerNs
	if perNs <= 0 {
		perNs = 1
	}
	n := int(math.Round(annealingTimeNs * perNs))
	if n < 1 {
		return 1
	}
	return n
}

// Sample runs params.NumReads anneals. Results depend only on the model,
// params and the sampler settings.
func (s *AnnealingSampler) Sample(ctx context.Context, bqm *BQM, params SampleParams) (*SampleSet, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rng := NewPartitionedRNG(NewExperimentKey(params.Seed)).ForSubsystem(SubsystemAnnealTime(params.AnnealingTimeNs))
	adj := bqm.adjacency()
	betas := s.betaSchedule(bqm, adj, s.NumSweeps(params.AnnealingTimeNs))
	logrus.Debugf("annealing %d spins: reads=%d sweeps=%d beta=[%g, %g]",
		bqm.NumVariables(), params.NumReads, len(betas), betas[0], betas[len(betas)-1])

	samples := make([][]int8, params.NumReads)
	for r := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples[r] = anneal(bqm.Linear, adj, betas, rng)
	}
	return NewSampleSet(bqm, samples), nil
}

// anneal runs one read and returns its final state.
func anneal(linear []float64, adj [][]neighbor, betas []float64, rng *rand.Rand) []int8 {
	state := make([]int8, len(linear))
	for i := range state {
		if rng.Intn(2) == 0 {
			state[i] = -1
		} else {
			state[i] = 1
		}
	}
	for _, beta := range betas {
		for i := range state {
			field := linear[i]
			for _, nb := range adj[i] {
				field += nb.bias * float64(state[nb.v])
			}
			delta := -2 * float64(state[i]) * field
			if delta <= 0 || rng.Float64() < math.Exp(-beta*delta) {
				state[i] = -state[i]
			}
		}
	}
	return state
}

// betaSchedule returns one inverse temperature per sweep.
func (s *AnnealingSampler) betaSchedule(bqm *BQM, adj [][]neighbor, sweeps int) []float64 {
	hot, cold := s.BetaRange[0], s.BetaRange[1]
	if hot <= 0 || cold <= 0 {
		hot, cold = defaultBetaRange(bqm, adj)
	}
	betas := make([]float64, sweeps)
	if sweeps == 1 {
		betas[0] = cold
		return betas
	}
	ratio := cold / hot
	for k := range betas {
		betas[k] = hot * math.Pow(ratio, float64(k)/float64(sweeps-1))
	}
	return betas
}

// defaultBetaRange picks the hot end so the largest single-flip energy
// increase is accepted with probability 1/2, and the cold end so the smallest
// is accepted with probability 1/100.
func defaultBetaRange(bqm *BQM, adj [][]neighbor) (hot, cold float64) {
	maxField := 0.0
	minBias := math.Inf(1)
	for i, h := range bqm.Linear {
		f := math.Abs(h)
		if f > 0 && f < minBias {
			minBias = f
		}
		for _, nb := range adj[i] {
			a := math.Abs(nb.bias)
			f += a
			if a > 0 && a < minBias {
				minBias = a
			}
		}
		maxField = math.Max(maxField, f)
	}
	if maxField == 0 || math.IsInf(minBias, 1) {
		return 0.1, 1.0
	}
	return math.Ln2 / (2 * maxField), math.Log(100) / (2 * minBias)
}
