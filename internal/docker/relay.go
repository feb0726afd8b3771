package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const redisPort = "6379/tcp"

// stopTimeout is the graceful stop window, in seconds.
const stopTimeout = 10

// RelayOptions describes the relay container for one space.
type RelayOptions struct {
	Space string
	Image string
	Port  int // host port; 0 picks the next free one
}

// Relay describes a relay container.
type Relay struct {
	ID    string
	Name  string
	Space string
	Port  int
	State string // Docker state, e.g. "running" or "exited"
}

// Running reports whether the container is up.
func (r Relay) Running() bool {
	return r.State == "running"
}

// URL is the Redis URL for reaching the relay from the host.
func (r Relay) URL() string {
	return RelayURL(r.Port)
}

// FindRelay returns the relay container for space, or nil if there is none.
func FindRelay(ctx context.Context, cli *client.Client, space string) (*Relay, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: relayFilter(space),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return nil, nil
	}

	relay := relayFromContainer(containers[0])
	return &relay, nil
}

// StartRelay makes sure the relay for opts.Space is running: an existing
// container is restarted if stopped, otherwise a new one is created.
// The Redis port is published on 127.0.0.1 only.
func StartRelay(ctx context.Context, cli *client.Client, opts RelayOptions) (*Relay, error) {
	existing, err := FindRelay(ctx, cli, opts.Space)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Running() {
			if err := cli.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
				return nil, fmt.Errorf("failed to start relay container %s: %w", existing.Name, err)
			}
			existing.State = "running"
		}
		return existing, nil
	}

	port := opts.Port
	if port == 0 {
		port, err = FindNextAvailablePort(ctx, cli)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate relay port: %w", err)
		}
	}

	name := RelayContainerName(opts.Space)
	labels := BuildLabels(opts.Space, GenerateRunID(), ComponentRelay)
	labels[LabelRelayPort] = strconv.Itoa(port)

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  opts.Image,
		Labels: labels,
		ExposedPorts: nat.PortSet{
			redisPort: struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			redisPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: strconv.Itoa(port),
				},
			},
		},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}, nil, nil, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("relay image %s not found locally (run: docker pull %s): %w", opts.Image, opts.Image, err)
		}
		return nil, fmt.Errorf("failed to create relay container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start relay container: %w", err)
	}

	return &Relay{ID: resp.ID, Name: name, Space: opts.Space, Port: port, State: "running"}, nil
}

// StopRelay stops and removes the relay for space. Returns false if there
// was none.
func StopRelay(ctx context.Context, cli *client.Client, space string) (bool, error) {
	relay, err := FindRelay(ctx, cli, space)
	if err != nil {
		return false, err
	}
	if relay == nil {
		return false, nil
	}

	timeout := stopTimeout
	// An already-stopped container makes this fail; removal still proceeds
	_ = cli.ContainerStop(ctx, relay.ID, container.StopOptions{Timeout: &timeout})

	if err := cli.ContainerRemove(ctx, relay.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return true, fmt.Errorf("failed to remove %s: %w", relay.Name, err)
	}
	return true, nil
}

func relayFilter(space string) filters.Args {
	return filters.NewArgs(
		filters.Arg("label", fmt.Sprintf("%s=true", LabelProject)),
		filters.Arg("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRelay)),
		filters.Arg("label", fmt.Sprintf("%s=%s", LabelSpace, space)),
	)
}

func relayFromContainer(c types.Container) Relay {
	name := c.ID
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	port, _ := strconv.Atoi(c.Labels[LabelRelayPort])
	return Relay{
		ID:    c.ID,
		Name:  name,
		Space: c.Labels[LabelSpace],
		Port:  port,
		State: c.State,
	}
}
