package commands

import (
	"os"

	"github.com/dyluth/tandem/internal/config"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initSpace    string
	initNode     string
	initPeer     string
	initRelayURL string
	initBackend  string
	initDir      string
	forceInit    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create tandem.yml for this node",
	Long: `Create a tandem.yml for one node of a pair.

Run it once on each device with node and peer swapped:

  tandem init --space household --node phone --peer watch
  tandem init --space household --node watch --peer phone

Use --force to overwrite an existing tandem.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initSpace, "space", "", "Shared space name (required)")
	initCmd.Flags().StringVar(&initNode, "node", os.Getenv(config.EnvNode), "This node's name (required)")
	initCmd.Flags().StringVar(&initPeer, "peer", os.Getenv(config.EnvPeer), "The peer node's name (required)")
	initCmd.Flags().StringVar(&initRelayURL, "relay-url", "", "Redis relay URL (default "+config.DefaultRedisURL+")")
	initCmd.Flags().StringVar(&initBackend, "store", "", "Store backend: file, bolt or sqlite (default file)")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write tandem.yml into")
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing tandem.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := scaffold.Initialize(scaffold.Options{
		Dir:      initDir,
		Space:    initSpace,
		Node:     initNode,
		Peer:     initPeer,
		RelayURL: initRelayURL,
		Backend:  initBackend,
		Force:    forceInit,
	})
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(path, initNode, initPeer)
	return nil
}
