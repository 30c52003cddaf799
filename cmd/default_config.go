package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kz-sim/kz-sim/sim"
)

// Solver names an annealing solver and the schedule file describing it.
type Solver struct {
	ID       string `yaml:"id"`
	Schedule string `yaml:"schedule"`
}

// Defaults holds the experiment defaults used when flags are not set.
type Defaults struct {
	Solver           string        `yaml:"solver"`
	NumSpins         int           `yaml:"num_spins"`
	Coupling         float64       `yaml:"coupling"`
	AnnealTimesNs    []float64     `yaml:"anneal_times_ns"`
	NumReads         int           `yaml:"num_reads"`
	Seed             int64         `yaml:"seed"`
	ScheduleDir      string        `yaml:"schedule_dir"`
	FallbackSchedule string        `yaml:"fallback_schedule"`
	EmbeddingDir     string        `yaml:"embedding_dir"`
	DataDir          string        `yaml:"data_dir"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	Parallelism      int           `yaml:"parallelism"`
}

// Config represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Version  string   `yaml:"version"`
	Solvers  []Solver `yaml:"solvers"`
	Defaults Defaults `yaml:"defaults"`
}

// builtinConfig is used when no defaults file exists.
func builtinConfig() Config {
	return Config{
		Solvers: []Solver{{ID: "local-sa", Schedule: sim.DefaultFallbackSchedule}},
		Defaults: Defaults{
			Solver:           "local-sa",
			NumSpins:         512,
			Coupling:         -1.4,
			AnnealTimesNs:    []float64{5, 10, 20, 50, 100},
			NumReads:         100,
			Seed:             42,
			ScheduleDir:      sim.DefaultScheduleDir,
			FallbackSchedule: sim.DefaultFallbackSchedule,
			EmbeddingDir:     sim.DefaultScheduleDir,
			PollInterval:     200 * time.Millisecond,
		},
	}
}

// parseConfig decodes defaults.yaml with strict field checking: typos must
// cause errors.
func parseConfig(data []byte) (Config, error) {
	cfg := builtinConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing defaults YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the defaults for values no experiment can run with.
func (c Config) Validate() error {
	d := c.Defaults
	if d.NumSpins < 2 {
		return fmt.Errorf("defaults.num_spins must be at least 2, got %d", d.NumSpins)
	}
	if d.NumReads <= 0 {
		return fmt.Errorf("defaults.num_reads must be positive, got %d", d.NumReads)
	}
	for _, t := range d.AnnealTimesNs {
		if t <= 0 {
			return fmt.Errorf("defaults.anneal_times_ns must be positive, got %g", t)
		}
	}
	seen := make(map[string]bool, len(c.Solvers))
	for i, s := range c.Solvers {
		if s.ID == "" {
			return fmt.Errorf("solvers[%d].id is empty", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("solvers[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// loadDefaultsConfig reads path, falling back to the builtin defaults when
// the file does not exist.
func loadDefaultsConfig(path string) Config {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logrus.Debugf("defaults file %s not found, using builtin defaults", path)
		return builtinConfig()
	}
	if err != nil {
		logrus.Fatalf("Failed to read defaults file: %v", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		logrus.Fatalf("Failed to load defaults file %s: %v", path, err)
	}
	return cfg
}

// ScheduleFor returns the schedule file of solver. Unknown solvers and
// solvers without a schedule get "" so the fallback schedule is used.
func (c Config) ScheduleFor(solver string) string {
	for _, s := range c.Solvers {
		if s.ID == solver {
			return s.Schedule
		}
	}
	return ""
}

// ScheduleConfig returns where schedule files are found.
func (c Config) ScheduleConfig() sim.ScheduleConfig {
	sc := sim.DefaultScheduleConfig()
	if c.Defaults.ScheduleDir != "" {
		sc.Dir = c.Defaults.ScheduleDir
	}
	if c.Defaults.FallbackSchedule != "" {
		sc.Fallback = c.Defaults.FallbackSchedule
	}
	return sc
}
