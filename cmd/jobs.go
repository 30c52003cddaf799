package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kz-sim/kz-sim/sim/store"
)

var ledgerRunID string // Run to show in detail

// jobsCmd groups ledger commands
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the run ledger",
}

// jobsListCmd prints recorded runs, or one run's jobs and results
var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, or the jobs and results of one run",
	Run: func(cmd *cobra.Command, args []string) {
		dir := loadDefaultsConfig(defaultsFilePath).Defaults.DataDir
		if cmd.Flags().Changed("data-dir") {
			dir = dataDir
		}
		ledger, err := store.NewStore(dir)
		if err != nil {
			logrus.Fatalf("Failed to open ledger: %v", err)
		}
		defer ledger.Close()

		if ledgerRunID == "" {
			err = listRuns(cmd.Context(), ledger, os.Stdout)
		} else {
			err = showRun(cmd.Context(), ledger, ledgerRunID, os.Stdout)
		}
		if err != nil {
			logrus.Fatalf("Failed to list ledger: %v", err)
		}
	},
}

func listRuns(ctx context.Context, ledger *store.Store, w io.Writer) error {
	runs, err := ledger.ListRuns(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tSOLVER\tSPINS\tJ\tREADS\tSEED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%g\t%d\t%d\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Solver, r.NumSpins, r.Coupling, r.NumReads, r.Seed)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, ledger *store.Store, runID string, w io.Writer) error {
	run, err := ledger.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	jobs, err := ledger.ListJobs(ctx, runID)
	if err != nil {
		return err
	}
	results, err := ledger.ListResults(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s: solver=%s schedule=%s spins=%d J=%g reads=%d seed=%d\n\n",
		run.ID, run.Solver, run.Schedule, run.NumSpins, run.Coupling, run.NumReads, run.Seed)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ANNEAL_NS\tSTATUS\tSUBMITTED\tJOB")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%g\t%s\t%s\t%s\n", j.AnnealTimeNs, j.Status, j.SubmitTime, truncate(j.JobID, 40))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ANNEAL_NS\tMEAN_KINKS\tKINK_DENSITY\tTHEORY")
	for _, r := range results {
		fmt.Fprintf(tw, "%g\t%.2f\t%.5f\t%.5f\n", r.AnnealTimeNs, meanInts(r.Counts), r.KinkDensity, r.TheoryDensity)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	jobsListCmd.Flags().StringVar(&ledgerRunID, "run", "", "Show the jobs and results of this run")
	jobsListCmd.Flags().StringVar(&dataDir, "data-dir", "", "Ledger directory (default ~/.kz-sim/data)")

	jobsCmd.AddCommand(jobsListCmd)
	rootCmd.AddCommand(jobsCmd)
}
