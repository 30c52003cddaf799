package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kz-sim/kz-sim/sim"
)

var (
	theorySchedule string    // Schedule file name, overriding the solver's
	theoryTimes    []float64 // Anneal durations in ns
	gridMinNs      float64   // Smallest duration of a log-spaced grid
	gridMaxNs      float64   // Largest duration of a log-spaced grid
	gridPoints     int       // Number of grid durations (0 = use --anneal-times)
)

// theoryCmd prints the predicted kink density for anneal durations
var theoryCmd = &cobra.Command{
	Use:   "theory",
	Short: "Print the Kibble-Zurek kink density predicted by a schedule",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadDefaultsConfig(defaultsFilePath)
		opts := resolveRunOptions(cmd, cfg)
		name := opts.Schedule
		if theorySchedule != "" {
			name = theorySchedule
		}
		sched, err := cfg.ScheduleConfig().Load(name)
		if err != nil {
			logrus.Fatalf("Failed to load schedule: %v", err)
		}

		times := opts.AnnealTimesNs
		if cmd.Flags().Changed("anneal-times") {
			times = theoryTimes
		}
		if gridPoints > 0 {
			times = sim.AnnealTimeGrid(gridMinNs, gridMaxNs, gridPoints)
		}
		if err := writeTheory(os.Stdout, times, opts.Coupling, sched); err != nil {
			logrus.Fatalf("Theory failed: %v", err)
		}
	},
}

// writeTheory writes the rate constant and one density per anneal time.
func writeTheory(w io.Writer, annealTimesNs []float64, coupling float64, sched *sim.Schedule) error {
	b, err := sim.RateConstant(sched, coupling)
	if err != nil {
		return err
	}
	densities := sim.KinkDensityForRate(annealTimesNs, b)
	fmt.Fprintf(w, "# schedule=%s J=%g b=%.6g\n", sched.Name, coupling, b)
	fmt.Fprintf(w, "%14s %14s\n", "anneal_ns", "kink_density")
	for i, t := range annealTimesNs {
		fmt.Fprintf(w, "%14g %14.6g\n", t, densities[i])
	}
	return nil
}

func init() {
	theoryCmd.Flags().StringVar(&solverID, "solver", "", "Solver id from defaults.yaml")
	theoryCmd.Flags().StringVar(&theorySchedule, "schedule", "", "Schedule file name (overrides the solver's)")
	theoryCmd.Flags().Float64Var(&coupling, "coupling", -1.4, "Coupling strength J")
	theoryCmd.Flags().Float64SliceVar(&theoryTimes, "anneal-times", nil, "Comma-separated anneal durations in ns")
	theoryCmd.Flags().Float64Var(&gridMinNs, "grid-min", 2, "Smallest grid duration in ns")
	theoryCmd.Flags().Float64Var(&gridMaxNs, "grid-max", 350, "Largest grid duration in ns")
	theoryCmd.Flags().IntVar(&gridPoints, "grid-points", 0, "Number of log-spaced grid durations (0 = use --anneal-times)")

	rootCmd.AddCommand(theoryCmd)
}
