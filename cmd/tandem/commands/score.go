package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/pkg/scoring"
	"github.com/spf13/cobra"
)

var scoreJSON bool

var errNoReadings = errors.New("at least one of --hrv, --heart-rate or --sleep-hours is required")

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a score without recording it",
	Long: `Compute the score and category for a set of readings. Nothing is stored or
sent, and no configuration is needed.

Examples:
  tandem score --hrv 40 --heart-rate 90 --sleep-hours 6
  tandem score --heart-rate 120 --json`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	readingFlags(scoreCmd)
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	hrv, heartRate, sleep := readingValues(cmd)
	if hrv == nil && heartRate == nil && sleep == nil {
		return printer.Error("no readings given", errNoReadings.Error(), nil)
	}

	result := scoring.Score(scoring.Inputs{HRV: hrv, HeartRate: heartRate, SleepHours: sleep})

	if scoreJSON {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal score: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	printer.Printf("Score: %.1f (%s)\n", result.Value, printer.Category(result.Category))
	return nil
}
