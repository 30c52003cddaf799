package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// ErrCrossingAtBoundary is returned when the closest approach of the scaled
// energy curves falls on the first schedule point, where the backward
// difference derivative is undefined.
var ErrCrossingAtBoundary = errors.New("schedule crossing at first point; derivative undefined")

// ErrNoCrossing is returned when no schedule point has finite curve values.
var ErrNoCrossing = errors.New("schedule has no finite crossing point")

// RateConstant returns the Kibble-Zurek rate constant b of a schedule for a
// coupling strength:
//
//	b = 1e9 * pi * A(i) / (B'(i)/B(i) - A'(i)/A(i))
//
// where i is the crossing index of A and B*|J| and primes are derivatives with
// respect to C. See Nature Physics 18, 1324 (2022), arXiv:2202.05847.
// Degenerate schedules produce Inf or NaN without an error.
func RateConstant(sched *Schedule, coupling float64) (float64, error) {
	i := CrossingIndex(sched.A, sched.B, math.Abs(coupling))
	if i < 0 {
		return math.NaN(), ErrNoCrossing
	}
	if i == 0 {
		return math.NaN(), fmt.Errorf("schedule %q, J=%g: %w", sched.Name, coupling, ErrCrossingAtBoundary)
	}
	dA, dB := sched.Derivatives()
	numerator := 1e9 * math.Pi * sched.A[i]
	denominator := dB[i]/sched.B[i] - dA[i]/sched.A[i]
	b := numerator / denominator
	logrus.Debugf("schedule %q J=%g: crossing index %d (C=%g), b=%g", sched.Name, coupling, i, sched.C[i], b)
	return b, nil
}

// TheoreticalKinkDensity returns the Kibble-Zurek kink density predicted for
// each anneal time (in nanoseconds):
//
//	density(t) = (1e-9 * t)^(-1/2) / (2 * pi * sqrt(2b))
//
// with b from RateConstant. The result has one entry per input time.
func TheoreticalKinkDensity(annealTimesNs []float64, coupling float64, sched *Schedule) ([]float64, error) {
	b, err := RateConstant(sched, coupling)
	if err != nil {
		return nil, err
	}
	return KinkDensityForRate(annealTimesNs, b), nil
}

// KinkDensityForRate applies the Kibble-Zurek scaling law for a known rate constant.
func KinkDensityForRate(annealTimesNs []float64, b float64) []float64 {
	scale := 2 * math.Pi * math.Sqrt(2*b)
	out := make([]float64, len(annealTimesNs))
	for i, t := range annealTimesNs {
		out[i] = math.Pow(1e-9*t, -0.5) / scale
	}
	return out
}

// AnnealTimeGrid returns n anneal times log-spaced over [minNs, maxNs], the
// grid theory curves are drawn on.
func AnnealTimeGrid(minNs, maxNs float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{minNs}
	}
	return floats.LogSpan(make([]float64, n), minNs, maxNs)
}
