// Package testutil provides shared test infrastructure for the kz-sim
// packages: float assertions and synthetic anneal schedules written as CSV.
package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ScheduleColumns is an anneal schedule in column form.
type ScheduleColumns struct {
	C []float64 // normalized anneal fraction
	A []float64 // A(s) in GHz
	B []float64 // B(s) in GHz
}

// FivePointSchedule is a schedule whose crossing with B*|J| for |J| = 1 falls
// on the middle row, where A = B = 2 and both derivatives are 4 in magnitude.
// The rate constant there is b = 1e9 * pi / 2.
func FivePointSchedule() ScheduleColumns {
	return ScheduleColumns{
		C: []float64{0, 0.25, 0.5, 0.75, 1},
		A: []float64{4, 3, 2, 1, 0.5},
		B: []float64{0.5, 1, 2, 3, 4},
	}
}

// CSV renders the schedule with the header used by published schedule files,
// including the leading s column readers must ignore.
func (s ScheduleColumns) CSV() string {
	var sb strings.Builder
	sb.WriteString("s,A(s) (GHz),B(s) (GHz),C (normalized)\n")
	for i := range s.C {
		fmt.Fprintf(&sb, "%g,%g,%g,%g\n", s.C[i], s.A[i], s.B[i], s.C[i])
	}
	return sb.String()
}

// WriteSchedule writes the schedule as dir/name and returns its path.
func WriteSchedule(t *testing.T, dir, name string, s ScheduleColumns) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(s.CSV()), 0o644); err != nil {
		t.Fatalf("writing schedule %s: %v", path, err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
