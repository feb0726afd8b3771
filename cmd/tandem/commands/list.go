package commands

import (
	"time"

	"github.com/dyluth/tandem/internal/listing"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/internal/timespec"
	"github.com/dyluth/tandem/pkg/scoring"
	"github.com/spf13/cobra"
)

var (
	listSince    string
	listUntil    string
	listCategory string
	listOutput   string
)

// now is the clock for relative --since/--until values and ages.
var now = time.Now

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the samples stored on this node",
	Long: `List the samples in this node's store, oldest first, with their derived
score and category. Reads the store only; the relay is not contacted.

Time filters accept durations relative to now (90m, 2h, 7d), dates
(2026-05-01) or RFC3339 timestamps.

Output Formats:
  default - table
  jsonl   - one scored sample per line, for jq and scripts

Examples:
  tandem list
  tandem list --since 7d --category high
  tandem list --output jsonl | jq .score`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "Only samples at or after this time")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Only samples at or before this time")
	listCmd.Flags().StringVar(&listCategory, "category", "", "Only samples in this category (low, moderate, high)")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "default", "Output format (default or jsonl)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := listing.ParseOutputFormat(listOutput)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), nil)
	}

	current := now()
	since, until, err := timespec.ParseRange(listSince, listUntil, current)
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	filter := listing.Filter{Since: since, Until: until, Category: scoring.Category(listCategory)}
	if err := filter.Validate(); err != nil {
		return printer.Error("invalid filter", err.Error(), nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, newLogger(cfg, true))
	if err != nil {
		return err
	}
	defer st.Close()

	samples := listing.Apply(st.LoadAll(), filter)

	if format == listing.OutputFormatJSONL {
		return listing.FormatJSONL(printer.Stdout, samples)
	}
	listing.FormatTable(printer.Stdout, samples, cfg.Node, current)
	return nil
}
