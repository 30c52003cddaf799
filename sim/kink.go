package sim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrRaggedSamples is returned when samples do not all have the same length.
var ErrRaggedSamples = errors.New("samples have differing lengths")

// DefectRule decides whether the sign switch between a spin and its ring
// predecessor is a kink.
type DefectRule interface {
	// Name identifies the rule in logs.
	Name() string
	// IsKink reports whether a switch value (spin minus predecessor) is a kink.
	IsKink(switchValue int) bool
}

// DisagreementRule counts neighbours with opposite spins. It applies to
// ferromagnetic rings (negative coupling), whose ground state is uniform.
type DisagreementRule struct{}

func (DisagreementRule) Name() string { return "disagreement" }

func (DisagreementRule) IsKink(switchValue int) bool { return switchValue != 0 }

// AgreementRule counts neighbours with equal spins. It applies to
// antiferromagnetic rings (non-negative coupling), whose ground state alternates.
type AgreementRule struct{}

func (AgreementRule) Name() string { return "agreement" }

func (AgreementRule) IsKink(switchValue int) bool { return switchValue == 0 }

// RuleForCoupling selects the defect rule for a coupling sign.
func RuleForCoupling(coupling float64) DefectRule {
	if coupling < 0 {
		return DisagreementRule{}
	}
	return AgreementRule{}
}

// KinkResult holds per-sample kink counts and their average density.
type KinkResult struct {
	Counts  []int
	Density float64
}

// SignSwitches returns sample[k] - sample[k-1] for every position, where the
// predecessor of position 0 is the last spin of the ring.
func SignSwitches(sample []int8) []int {
	n := len(sample)
	out := make([]int, n)
	for k := 0; k < n; k++ {
		prev := sample[(k+n-1)%n]
		out[k] = int(sample[k]) - int(prev)
	}
	return out
}

// CountKinks applies rule to every sample and returns the per-sample counts.
func CountKinks(samples [][]int8, rule DefectRule) ([]int, error) {
	counts := make([]int, len(samples))
	for i, sample := range samples {
		if len(sample) != len(samples[0]) {
			return nil, fmt.Errorf("sample %d has %d spins, want %d: %w",
				i, len(sample), len(samples[0]), ErrRaggedSamples)
		}
		for _, sw := range SignSwitches(sample) {
			if rule.IsKink(sw) {
				counts[i]++
			}
		}
	}
	return counts, nil
}

// KinkStats computes kink counts per sample and the kink density averaged over
// all samples: mean(count) / ring length. The kink definition follows the
// coupling sign (see RuleForCoupling). An empty sample set, or samples of
// length zero, give a NaN density.
func KinkStats(samples [][]int8, coupling float64) (KinkResult, error) {
	counts, err := CountKinks(samples, RuleForCoupling(coupling))
	if err != nil {
		return KinkResult{}, err
	}
	ringLen := 0
	if len(samples) > 0 {
		ringLen = len(samples[0])
	}
	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	return KinkResult{
		Counts:  counts,
		Density: stat.Mean(values, nil) / float64(ringLen),
	}, nil
}

// SampleSetKinkStats runs KinkStats on a sample set's ordered record.
func SampleSetKinkStats(ss *SampleSet, coupling float64) (KinkResult, error) {
	return KinkStats(ss.Record(), coupling)
}
