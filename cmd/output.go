package cmd

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// finiteOrNil maps NaN and Inf to a JSON null.
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func meanInts(counts []int) float64 {
	if len(counts) == 0 {
		return math.NaN()
	}
	xs := make([]float64, len(counts))
	for i, c := range counts {
		xs[i] = float64(c)
	}
	return stat.Mean(xs, nil)
}
