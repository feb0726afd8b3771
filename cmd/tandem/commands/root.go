package commands

import (
	"fmt"

	"github.com/dyluth/tandem/internal/config"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/spf13/cobra"
)

var (
	configPath string
	noColor    bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Tandem - two-node sample replication",
	Long: `Tandem keeps the samples recorded on two devices in sync.

Each node records scored samples locally and replicates them to its peer
through a shared Redis relay: instantly when both are online, through a
durable inbox when the peer is away, and by catch-up when a node returns.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			printer.SetColor(false)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFilename, "Path to tandem.yml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log replication events from one-shot commands")
}
