package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/internal/status"
	"github.com/dyluth/tandem/internal/watch"
	"github.com/dyluth/tandem/pkg/sample"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the status server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

var (
	nodeStatusAddr string
	nodeFollow     bool
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run this node's replication endpoint",
	Long: `Run the replication endpoint for the node named in tandem.yml until
interrupted.

While running, the node receives its peer's samples in real time, drains its
inbox, answers catch-up requests and asks for catch-up whenever the peer comes
back. With status.addr (or --status-addr) set it also serves:

  GET  /healthz   relay and endpoint health
  GET  /state     endpoint, reachability and catch-up state
  GET  /samples   scored samples (?category=low|moderate|high)
  POST /catchup   request catch-up from the peer
  POST /reload    reload samples from the store

Examples:
  # Run with the settings in tandem.yml
  tandem node

  # Serve status on localhost and print samples as they arrive
  tandem node --status-addr 127.0.0.1:8080 --follow`,
	RunE: runNode,
}

func init() {
	nodeCmd.Flags().StringVar(&nodeStatusAddr, "status-addr", "", "Serve the HTTP status API on host:port (overrides status.addr)")
	nodeCmd.Flags().BoolVarP(&nodeFollow, "follow", "f", false, "Print each newly replicated sample")
	rootCmd.AddCommand(nodeCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if nodeStatusAddr != "" {
		cfg.Status.Addr = nodeStatusAddr
	}

	sess, err := openSession(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	printer.Success("Node '%s' active in space '%s' (peer: %s)\n", cfg.Node, cfg.Space, cfg.Peer)

	if cfg.StatusEnabled() {
		srv := status.NewServer(sess.endpoint, sess.transport, status.Options{
			Addr:           cfg.Status.Addr,
			AllowedOrigins: cfg.Status.AllowedOrigins,
			Logger:         sess.log,
		})
		if err := srv.Start(); err != nil {
			return printer.Error(
				"status server failed to start",
				err.Error(),
				[]string{"Choose another address with --status-addr"},
			)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		printer.Step("Status API on http://%s\n", srv.Addr())
	}

	if nodeFollow {
		sub := sess.endpoint.Subscribe()
		defer sub.Close()
		go watch.NewSamples(ctx, sub.Updates(), func(s sample.Sample) error {
			printer.Println(watch.FormatSample(s))
			return nil
		})
	}

	<-ctx.Done()
	printer.Step("Shutting down node '%s'\n", cfg.Node)
	return nil
}
