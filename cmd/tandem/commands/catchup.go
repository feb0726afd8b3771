package commands

import (
	"context"
	"time"

	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/internal/watch"
	"github.com/spf13/cobra"
)

var (
	catchUpWait time.Duration
	catchUpPush bool
)

var catchUpCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Ask the peer for samples newer than this node's cutoff",
	Long: `Ask the peer for every sample newer than this node's cutoff and wait for
the answer.

The request goes through the peer's inbox when it is offline; in that case
the answer arrives the next time this node runs.

With --push the whole local sample set is also sent to the peer, which
ignores samples it already holds.

Examples:
  tandem catchup
  tandem catchup --wait 30s
  tandem catchup --push --wait 0`,
	Args: cobra.NoArgs,
	RunE: runCatchUp,
}

func init() {
	catchUpCmd.Flags().DurationVarP(&catchUpWait, "wait", "w", 10*time.Second, "How long to wait for the answer (0 to not wait)")
	catchUpCmd.Flags().BoolVar(&catchUpPush, "push", false, "Also send every local sample to the peer")
	rootCmd.AddCommand(catchUpCmd)
}

func runCatchUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Activation sends the catch-up request
	sess, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	e := sess.endpoint
	before := len(e.Snapshot().Samples)
	printer.Step("Requested samples newer than %s from %s\n", formatCutoff(e.Cutoff()), cfg.Peer)

	if catchUpPush {
		if err := e.PushAll(ctx); err != nil {
			return printer.Error("push failed", err.Error(), nil)
		}
		printer.Step("Sent %d samples to %s\n", before, cfg.Peer)
	}

	if catchUpWait <= 0 {
		return nil
	}

	if _, err := watch.ForCatchUpAnswer(ctx, e, 0, catchUpWait); err != nil {
		printer.Warning("No answer from %s within %s; it will be applied on this node's next run\n", cfg.Peer, catchUpWait)
		return nil
	}

	added := len(e.Snapshot().Samples) - before
	printer.Success("Caught up with %s: %d new samples, cutoff %s\n", cfg.Peer, added, formatCutoff(e.Cutoff()))
	return nil
}

func formatCutoff(t time.Time) string {
	if t.IsZero() {
		return "the beginning"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
