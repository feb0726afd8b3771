package commands

import (
	"context"
	"fmt"
	"time"

	dockerpkg "github.com/dyluth/tandem/internal/docker"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// relayReadyTimeout bounds the wait for a fresh relay to accept connections.
const relayReadyTimeout = 15 * time.Second

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Manage a local Redis relay container",
	Long: `Manage a Redis container, run with Docker, that both nodes can use as
their relay. The container is labelled with the space from tandem.yml and
publishes Redis on 127.0.0.1 only.`,
}

var relayUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the relay container for this space",
	Args:  cobra.NoArgs,
	RunE:  runRelayUp,
}

var relayDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the relay container for this space",
	Args:  cobra.NoArgs,
	RunE:  runRelayDown,
}

var relayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the relay container for this space",
	Args:  cobra.NoArgs,
	RunE:  runRelayStatus,
}

func init() {
	relayCmd.AddCommand(relayUpCmd, relayDownCmd, relayStatusCmd)
	rootCmd.AddCommand(relayCmd)
}

func runRelayUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	relay, err := dockerpkg.StartRelay(ctx, cli, dockerpkg.RelayOptions{
		Space: cfg.Space,
		Image: cfg.Relay.Image,
		Port:  cfg.Relay.Port,
	})
	if err != nil {
		return printer.Error("relay not started", err.Error(), nil)
	}
	printer.Success("Relay container %s running (port %d)\n", relay.Name, relay.Port)

	if err := waitForRelay(ctx, relay.URL()); err != nil {
		return printer.Error(
			"relay not ready",
			err.Error(),
			[]string{fmt.Sprintf("Check the container logs:\n  docker logs %s", relay.Name)},
		)
	}

	printer.Printf("\nRelay URL: %s\n", relay.URL())
	if cfg.Relay.URL != relay.URL() {
		printer.Printf("Set relay.url in %s (or REDIS_URL) to this URL on both nodes.\n", configPath)
	}
	return nil
}

func runRelayDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	printer.Step("Stopping %s...\n", dockerpkg.RelayContainerName(cfg.Space))
	found, err := dockerpkg.StopRelay(ctx, cli, cfg.Space)
	if err != nil {
		return printer.Error("relay not removed", err.Error(), nil)
	}
	if !found {
		return printer.Error(
			fmt.Sprintf("no relay for space '%s'", cfg.Space),
			"No relay container carries this space's label.",
			[]string{"Start one with:\n  tandem relay up"},
		)
	}

	printer.Success("Relay for space '%s' removed\n", cfg.Space)
	return nil
}

func runRelayStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	relay, err := dockerpkg.FindRelay(ctx, cli, cfg.Space)
	if err != nil {
		return err
	}
	if relay == nil {
		printer.Info("No relay container for space '%s'\n", cfg.Space)
		return nil
	}

	printer.Printf("Container: %s\n", relay.Name)
	printer.Printf("State:     %s\n", relay.State)
	printer.Printf("URL:       %s\n", relay.URL())
	return nil
}

// waitForRelay pings url until Redis answers or relayReadyTimeout passes.
func waitForRelay(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(ctx, relayReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis at %s did not answer within %s: %w", url, relayReadyTimeout, err)
		case <-ticker.C:
		}
	}
}
