package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/dyluth/tandem/internal/config"
)

// NewClient connects to the local Docker daemon that hosts the relay
// container. It fails early, with setup hints, when the daemon does not answer.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client for the relay: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf(`cannot manage the relay container, Docker daemon not reachable: %w

Start Docker, or point tandem at an existing Redis instead:
  • set relay.url in tandem.yml
  • or export %s=redis://host:6379/0`, err, config.EnvRedisURL)
	}

	return cli, nil
}
