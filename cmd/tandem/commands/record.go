package commands

import (
	"context"

	"github.com/dyluth/tandem/internal/acquisition"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a sample and send it to the peer",
	Long: `Record one sample from the given readings, store it locally and send it to
the peer: in real time if the peer is online, otherwise to its inbox.

Every reading is optional; missing readings score as neutral.

Examples:
  tandem record --hrv 40 --heart-rate 90 --sleep-hours 6
  tandem record --heart-rate 72`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	readingFlags(recordCmd)
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	s, err := sess.endpoint.Produce(ctx, acquisition.FromFlags(readingValues(cmd)))
	if err != nil {
		return printer.Error(
			"sample not recorded",
			err.Error(),
			[]string{"Readings must be finite numbers"},
		)
	}

	result := s.Score()
	delivery := "queued for " + cfg.Peer
	if sess.endpoint.Reachable() {
		delivery = "sent to " + cfg.Peer
	}
	printer.Success("Recorded sample %s: score %.1f (%s), %s\n",
		s.ID, result.Value, printer.Category(result.Category), delivery)
	return nil
}
