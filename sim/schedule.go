package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Column headers of an anneal schedule table.
const (
	ColumnA = "A(s) (GHz)"
	ColumnB = "B(s) (GHz)"
	ColumnC = "C (normalized)"
)

// Schedule defaults.
const (
	DefaultScheduleDir      = "helpers"
	DefaultFallbackSchedule = "FALLBACK_SCHEDULE.csv"
)

// ErrEmptySchedule is returned when a schedule table has no data rows.
var ErrEmptySchedule = errors.New("schedule has no rows")

// Schedule is an anneal schedule sampled at discrete points: the two energy
// scales A(s) and B(s) in GHz and the normalized control coordinate C.
type Schedule struct {
	Name string
	A    []float64
	B    []float64
	C    []float64
}

// Len returns the number of sample points.
func (s *Schedule) Len() int {
	return len(s.C)
}

// Derivatives returns dA/dC and dB/dC as backward differences. Element 0 has
// no predecessor and is NaN.
func (s *Schedule) Derivatives() (dA, dB []float64) {
	n := s.Len()
	dA = make([]float64, n)
	dB = make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			dA[i], dB[i] = math.NaN(), math.NaN()
			continue
		}
		dc := s.C[i] - s.C[i-1]
		dA[i] = (s.A[i] - s.A[i-1]) / dc
		dB[i] = (s.B[i] - s.B[i-1]) / dc
	}
	return dA, dB
}

// ScheduleConfig locates schedule files.
type ScheduleConfig struct {
	Dir      string // directory holding schedule CSVs (default "helpers")
	Fallback string // file used when no schedule is named (default "FALLBACK_SCHEDULE.csv")
}

// DefaultScheduleConfig returns the documented defaults.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{Dir: DefaultScheduleDir, Fallback: DefaultFallbackSchedule}
}

// Path resolves a schedule name to a file path, using the fallback for "".
func (c ScheduleConfig) Path(name string) string {
	if name == "" {
		name = c.Fallback
		if name == "" {
			name = DefaultFallbackSchedule
		}
	}
	return filepath.Join(c.Dir, name)
}

// Load reads the named schedule, or the fallback schedule when name is empty.
func (c ScheduleConfig) Load(name string) (*Schedule, error) {
	path := c.Path(name)
	if name == "" {
		logrus.Debugf("no schedule named, using fallback %s", path)
	}
	return LoadSchedule(path)
}

// LoadSchedule reads a schedule CSV from path.
func LoadSchedule(path string) (*Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schedule: %w", err)
	}
	defer func() { _ = f.Close() }()

	sched, err := ParseSchedule(f)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %s: %w", path, err)
	}
	sched.Name = filepath.Base(path)
	return sched, nil
}

// ParseSchedule reads a schedule table with a header row. Columns are located
// by name; extra columns are ignored and empty cells read as NaN.
func ParseSchedule(r io.Reader) (*Schedule, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptySchedule
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := map[string]int{ColumnA: -1, ColumnB: -1, ColumnC: -1}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, ok := idx[name]; ok {
			idx[name] = i
		}
	}
	for _, col := range []string{ColumnA, ColumnB, ColumnC} {
		if idx[col] < 0 {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	sched := &Schedule{}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}
		vals := make([]float64, 3)
		for k, col := range []string{ColumnA, ColumnB, ColumnC} {
			v, err := parseCell(rec[idx[col]])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", line, col, err)
			}
			vals[k] = v
		}
		sched.A = append(sched.A, vals[0])
		sched.B = append(sched.B, vals[1])
		sched.C = append(sched.C, vals[2])
	}
	if sched.Len() == 0 {
		return nil, ErrEmptySchedule
	}
	return sched, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// CrossingIndex returns the index i minimizing |a[i] - b[i]*scale|: the point
// where the scaled energy curves are closest. NaN entries are skipped and the
// first minimum wins. Returns -1 when no finite entry exists.
func CrossingIndex(a, b []float64, scale float64) int {
	best := -1
	bestDiff := math.Inf(1)
	for i := 0; i < len(a) && i < len(b); i++ {
		d := math.Abs(a[i] - b[i]*scale)
		if math.IsNaN(d) {
			continue
		}
		if best < 0 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}
