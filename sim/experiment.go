package sim

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SweepConfig describes a set of ring experiments that differ only in anneal time.
type SweepConfig struct {
	NumSpins      int
	Coupling      float64
	AnnealTimesNs []float64
	NumReads      int
	Seed          int64
	Schedule      *Schedule // optional; nil leaves TheoryDensity as NaN
	Parallelism   int       // max concurrent jobs (0 = GOMAXPROCS)
}

// Validate checks that the sweep can run.
func (c SweepConfig) Validate() error {
	if c.NumSpins < 2 {
		return fmt.Errorf("num_spins must be at least 2, got %d", c.NumSpins)
	}
	if len(c.AnnealTimesNs) == 0 {
		return fmt.Errorf("at least one anneal time required")
	}
	for _, t := range c.AnnealTimesNs {
		if math.IsNaN(t) || t <= 0 {
			return fmt.Errorf("anneal times must be positive, got %f", t)
		}
	}
	if c.NumReads <= 0 {
		return fmt.Errorf("num_reads must be positive, got %d", c.NumReads)
	}
	return nil
}

// ExperimentPoint is the outcome of one anneal time.
type ExperimentPoint struct {
	AnnealTimeNs  float64
	Counts        []int
	KinkDensity   float64
	TheoryDensity float64
}

// RunSweep samples the ring once per anneal time, concurrently, and returns
// measured and predicted kink densities ordered by anneal time.
func RunSweep(ctx context.Context, cfg SweepConfig, sampler Sampler) ([]ExperimentPoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bqm, err := NewRingBQM(cfg.NumSpins, cfg.Coupling)
	if err != nil {
		return nil, err
	}

	times := append([]float64(nil), cfg.AnnealTimesNs...)
	sort.Float64s(times)

	theory := make([]float64, len(times))
	for i := range theory {
		theory[i] = math.NaN()
	}
	if cfg.Schedule != nil {
		b, err := RateConstant(cfg.Schedule, cfg.Coupling)
		if err != nil {
			logrus.Warnf("no theory curve for schedule %q: %v", cfg.Schedule.Name, err)
		} else {
			theory = KinkDensityForRate(times, b)
		}
	}

	points := make([]ExperimentPoint, len(times))
	limit := cfg.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, t := range times {
		eg.Go(func() error {
			ss, err := sampler.Sample(egCtx, bqm, SampleParams{
				NumReads:        cfg.NumReads,
				AnnealingTimeNs: t,
				Seed:            cfg.Seed,
			})
			if err != nil {
				return fmt.Errorf("anneal time %gns: %w", t, err)
			}
			stats, err := SampleSetKinkStats(ss, cfg.Coupling)
			if err != nil {
				return fmt.Errorf("anneal time %gns: %w", t, err)
			}
			points[i] = ExperimentPoint{
				AnnealTimeNs:  t,
				Counts:        stats.Counts,
				KinkDensity:   stats.Density,
				TheoryDensity: theory[i],
			}
			logrus.Infof("anneal time %gns: kink density %.4f (theory %.4f)", t, stats.Density, theory[i])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}
