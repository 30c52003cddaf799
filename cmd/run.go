package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
	"github.com/kz-sim/kz-sim/sim/jobs"
	"github.com/kz-sim/kz-sim/sim/store"
)

var (
	// CLI flags for the experiment
	solverID      string    // Solver id from defaults.yaml
	numSpins      int       // Ring length
	coupling      float64   // Coupling strength J
	annealTimesNs []float64 // Anneal durations in ns
	numReads      int       // Samples per anneal time
	seed          int64     // Seed for the annealing sampler
	parallelism   int       // Max concurrent jobs

	// CLI flags for job handling
	inline        bool          // Sample in-process instead of through the job service
	pollInterval  time.Duration // Time between job status requests
	sweepsPerNs   float64       // Monte Carlo sweeps per ns of anneal time
	dataDir       string        // Ledger directory
	noLedger      bool          // Skip recording the run
	saveEmbedding bool          // Write the identity embedding to the cache when none is cached
	outputFormat  string        // "table" or "json"
	problemName   string        // "kz" or "kz_nm"
)

// runOptions is the resolved configuration of one run command.
type runOptions struct {
	Problem       sim.ProblemType
	Solver        string
	Schedule      string
	NumSpins      int
	Coupling      float64
	AnnealTimesNs []float64
	NumReads      int
	Seed          int64
	Parallelism   int
	Inline        bool
	PollInterval  time.Duration
	SweepsPerNs   float64
	EmbeddingDir  string
	SaveEmbedding bool
	DataDir       string
	NoLedger      bool
	Output        string
}

// runCmd samples the ring at each anneal time and compares with theory
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a Kibble-Zurek anneal-time sweep on a ring",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadDefaultsConfig(defaultsFilePath)
		opts := resolveRunOptions(cmd, cfg)

		sched, err := cfg.ScheduleConfig().Load(opts.Schedule)
		if err != nil {
			logrus.Fatalf("Failed to load schedule for solver %s: %v", opts.Solver, err)
		}
		logrus.Infof("Starting sweep on %s: %d spins, J=%g, anneal times %v ns, %d reads",
			opts.Solver, opts.NumSpins, opts.Coupling, opts.AnnealTimesNs, opts.NumReads)

		if err := runExperiment(cmd.Context(), opts, sched, os.Stdout); err != nil {
			logrus.Fatalf("Sweep failed: %v", err)
		}
		logrus.Info("Sweep complete.")
	},
}

// resolveRunOptions starts from defaults.yaml and overrides each value whose
// flag was set explicitly.
func resolveRunOptions(cmd *cobra.Command, cfg Config) runOptions {
	d := cfg.Defaults
	opts := runOptions{
		Solver:        d.Solver,
		NumSpins:      d.NumSpins,
		Coupling:      d.Coupling,
		AnnealTimesNs: d.AnnealTimesNs,
		NumReads:      d.NumReads,
		Seed:          d.Seed,
		Parallelism:   d.Parallelism,
		Inline:        inline,
		PollInterval:  d.PollInterval,
		SweepsPerNs:   sweepsPerNs,
		EmbeddingDir:  d.EmbeddingDir,
		SaveEmbedding: saveEmbedding,
		DataDir:       d.DataDir,
		NoLedger:      noLedger,
		Output:        outputFormat,
	}
	flags := cmd.Flags()
	if flags.Changed("solver") {
		opts.Solver = solverID
	}
	if flags.Changed("num-spins") {
		opts.NumSpins = numSpins
	}
	if flags.Changed("coupling") {
		opts.Coupling = coupling
	}
	if flags.Changed("anneal-times") {
		opts.AnnealTimesNs = annealTimesNs
	}
	if flags.Changed("num-reads") {
		opts.NumReads = numReads
	}
	if flags.Changed("seed") {
		opts.Seed = seed
	}
	if flags.Changed("parallelism") {
		opts.Parallelism = parallelism
	}
	if flags.Changed("poll-interval") {
		opts.PollInterval = pollInterval
	}
	if flags.Changed("data-dir") {
		opts.DataDir = dataDir
	}
	opts.Schedule = cfg.ScheduleFor(opts.Solver)
	problem, err := sim.ParseProblemType(problemName)
	if err != nil {
		logrus.Fatalf("Invalid --problem: %v", err)
	}
	opts.Problem = problem
	return opts
}

// resolveEmbedding returns the cached embedding for the ring size, or the
// identity embedding when the solver has none cached.
func resolveEmbedding(opts runOptions) (embedding.Embedding, error) {
	cache, err := embedding.LoadCache(embedding.CachePath(opts.EmbeddingDir, opts.Solver))
	if err != nil {
		return nil, err
	}
	if emb, ok := cache.Get(opts.NumSpins); ok {
		if !emb.IsOneToOne() {
			return nil, fmt.Errorf("cached embedding for %d spins: %w", opts.NumSpins, embedding.ErrChains)
		}
		logrus.Infof("Using cached embedding for %d spins", opts.NumSpins)
		return emb, nil
	}
	emb := embedding.Identity(opts.NumSpins)
	if opts.SaveEmbedding {
		cache.Put(opts.NumSpins, emb)
		if err := cache.Save(); err != nil {
			return nil, err
		}
		logrus.Infof("Cached identity embedding for %d spins", opts.NumSpins)
	}
	return emb, nil
}

// runExperiment runs the sweep through the job layer, records it in the
// ledger and writes the points to w.
func runExperiment(ctx context.Context, opts runOptions, sched *sim.Schedule, w io.Writer) error {
	emb, err := resolveEmbedding(opts)
	if err != nil {
		return err
	}

	annealer := sim.NewAnnealingSampler()
	if opts.SweepsPerNs > 0 {
		annealer.SweepsPerNs = opts.SweepsPerNs
	}
	sampler := &jobs.ServiceSampler{
		Poll:      jobs.PollConfig{Interval: opts.PollInterval, Burst: jobs.DefaultPollConfig.Burst},
		Embedding: emb,
	}
	if opts.Inline {
		sampler.Submitter = jobs.InlineSubmitter{Sampler: annealer}
	} else {
		svc := jobs.NewLocalService(annealer)
		defer svc.Close()
		sampler.Submitter = svc
		sampler.API = svc
	}

	runID := uuid.NewString()
	var ledger *store.Store
	if !opts.NoLedger {
		ledger, err = store.NewStore(opts.DataDir)
		if err != nil {
			return err
		}
		defer ledger.Close()
		err = ledger.SaveRun(ctx, store.Run{
			ID:       runID,
			Solver:   opts.Solver,
			Schedule: sched.Name,
			NumSpins: opts.NumSpins,
			Coupling: opts.Coupling,
			NumReads: opts.NumReads,
			Seed:     opts.Seed,
		})
		if err != nil {
			return err
		}
		sampler.Observer = &store.JobRecorder{Store: ledger, RunID: runID}
		logrus.Infof("Recording run %s in %s", runID, ledger.Path())
	}

	points, err := sim.RunSweep(ctx, sim.SweepConfig{
		NumSpins:      opts.NumSpins,
		Coupling:      opts.Coupling,
		AnnealTimesNs: opts.AnnealTimesNs,
		NumReads:      opts.NumReads,
		Seed:          opts.Seed,
		Schedule:      sched,
		Parallelism:   opts.Parallelism,
	}, sampler)
	if err != nil {
		return err
	}

	if ledger != nil {
		for _, p := range points {
			err := ledger.SaveResult(ctx, store.Result{
				RunID:         runID,
				AnnealTimeNs:  p.AnnealTimeNs,
				KinkDensity:   p.KinkDensity,
				TheoryDensity: p.TheoryDensity,
				Counts:        p.Counts,
			})
			if err != nil {
				return err
			}
		}
	}
	return writePoints(w, runID, opts, points)
}

// pointOutput is the JSON form of one sweep point.
type pointOutput struct {
	AnnealTimeNs  float64  `json:"anneal_time_ns"`
	KinkDensity   *float64 `json:"kink_density"`
	TheoryDensity *float64 `json:"theory_density"`
	MeanKinks     float64  `json:"mean_kinks"`
}

func writePoints(w io.Writer, runID string, opts runOptions, points []sim.ExperimentPoint) error {
	switch opts.Output {
	case "json":
		out := struct {
			RunID   string        `json:"run_id"`
			Problem string        `json:"problem"`
			Lambda  *float64      `json:"lambda,omitempty"`
			Points  []pointOutput `json:"points"`
		}{RunID: runID, Problem: opts.Problem.Label(), Points: make([]pointOutput, len(points))}
		if opts.Problem == sim.ProblemKZNoiseMitigated {
			out.Lambda = finiteOrNil(sim.Lambda(opts.Coupling))
		}
		for i, p := range points {
			out.Points[i] = pointOutput{
				AnnealTimeNs:  p.AnnealTimeNs,
				KinkDensity:   finiteOrNil(p.KinkDensity),
				TheoryDensity: finiteOrNil(p.TheoryDensity),
				MeanKinks:     meanInts(p.Counts),
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "table", "":
		fmt.Fprintf(w, "=== %s: run %s ===\n", opts.Problem.Label(), runID)
		if opts.Problem == sim.ProblemKZNoiseMitigated {
			fmt.Fprintf(w, "lambda=%g\n", sim.Lambda(opts.Coupling))
		}
		fmt.Fprintf(w, "%14s %12s %14s %12s\n", "anneal_ns", "mean_kinks", "kink_density", "theory")
		for _, p := range points {
			fmt.Fprintf(w, "%14g %12.2f %14.5f %12.5f\n", p.AnnealTimeNs, meanInts(p.Counts), p.KinkDensity, p.TheoryDensity)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", opts.Output)
	}
}

func init() {
	runCmd.Flags().StringVar(&solverID, "solver", "", "Solver id from defaults.yaml")
	runCmd.Flags().IntVar(&numSpins, "num-spins", 512, "Number of spins in the ring")
	runCmd.Flags().Float64Var(&coupling, "coupling", -1.4, "Coupling strength J (negative is ferromagnetic)")
	runCmd.Flags().Float64SliceVar(&annealTimesNs, "anneal-times", nil, "Comma-separated anneal durations in ns")
	runCmd.Flags().IntVar(&numReads, "num-reads", 100, "Samples per anneal time")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the annealing sampler")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Max concurrent jobs (0 = GOMAXPROCS)")

	runCmd.Flags().BoolVar(&inline, "inline", false, "Sample in-process instead of through the job service")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 200*time.Millisecond, "Time between job status requests")
	runCmd.Flags().Float64Var(&sweepsPerNs, "sweeps-per-ns", 1, "Monte Carlo sweeps per ns of anneal time")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "", "Ledger directory (default ~/.kz-sim/data)")
	runCmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record the run in the ledger")
	runCmd.Flags().BoolVar(&saveEmbedding, "save-embedding", false, "Cache the identity embedding when none is cached")
	runCmd.Flags().StringVar(&outputFormat, "output", "table", "Output format (table, json)")
	runCmd.Flags().StringVar(&problemName, "problem", "kz", "Problem type (kz, kz_nm)")

	rootCmd.AddCommand(runCmd)
}
