package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kz-sim/kz-sim/sim"
)

var samplesPath string // Sample file, "-" for stdin

// kinksCmd computes kink statistics of stored samples
var kinksCmd = &cobra.Command{
	Use:   "kinks",
	Short: "Compute kink counts and density of a sample file",
	Long: `Reads either a serialized sample set ({"type": "SampleSet", ...}) or a
plain JSON array of spin rows and prints the kink count of every sample and
the kink density averaged over all of them.`,
	Run: func(cmd *cobra.Command, args []string) {
		var r io.Reader = os.Stdin
		if samplesPath != "-" {
			f, err := os.Open(samplesPath)
			if err != nil {
				logrus.Fatalf("Failed to open samples: %v", err)
			}
			defer f.Close()
			r = f
		}
		samples, err := readSamples(r)
		if err != nil {
			logrus.Fatalf("Failed to read samples: %v", err)
		}
		c := coupling
		if !cmd.Flags().Changed("coupling") {
			c = loadDefaultsConfig(defaultsFilePath).Defaults.Coupling
		}
		result, err := sim.KinkStats(samples, c)
		if err != nil {
			logrus.Fatalf("Kink stats failed: %v", err)
		}
		writeKinks(os.Stdout, c, result)
	},
}

// readSamples decodes a serialized sample set or a bare [][]int8 array.
func readSamples(r io.Reader) ([][]int8, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if sim.IsSerializedSampleSet(string(data)) {
		ss, err := sim.SampleSetFromSerializable(string(data))
		if err != nil {
			return nil, err
		}
		return ss.Record(), nil
	}
	var samples [][]int8
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("decoding samples: %w", err)
	}
	return samples, nil
}

func writeKinks(w io.Writer, coupling float64, result sim.KinkResult) {
	fmt.Fprintf(w, "rule=%s samples=%d\n", sim.RuleForCoupling(coupling).Name(), len(result.Counts))
	fmt.Fprintf(w, "counts=%v\n", result.Counts)
	fmt.Fprintf(w, "density=%.6g\n", result.Density)
}

func init() {
	kinksCmd.Flags().StringVar(&samplesPath, "samples", "-", "Sample file (\"-\" reads stdin)")
	kinksCmd.Flags().Float64Var(&coupling, "coupling", -1.4, "Coupling strength J; its sign selects the kink rule")

	rootCmd.AddCommand(kinksCmd)
}
