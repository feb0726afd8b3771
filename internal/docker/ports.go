package docker

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

const (
	// Host ports tried for relay containers
	startPort = 6379
	endPort   = 6478
)

// FindNextAvailablePort returns the first port in 6379-6478 that no tandem
// relay container claims and that can be bound on the host.
func FindNextAvailablePort(ctx context.Context, cli *client.Client) (int, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRelay))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	used := make(map[int]bool)
	for _, c := range containers {
		if port, err := strconv.Atoi(c.Labels[LabelRelayPort]); err == nil {
			used[port] = true
		}
	}

	return pickPort(used, isPortBindable)
}

// pickPort returns the first port in range that is neither used nor unbindable.
func pickPort(used map[int]bool, bindable func(int) bool) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if used[port] {
			continue
		}
		if bindable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available relay ports (range %d-%d exhausted)", startPort, endPort)
}

// isPortBindable checks if a port can be bound on localhost.
func isPortBindable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
