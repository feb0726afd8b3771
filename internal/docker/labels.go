package docker

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Label keys on every container tandem creates
const (
	LabelProject   = "tandem.project"
	LabelSpace     = "tandem.space"
	LabelRunID     = "tandem.run_id"
	LabelComponent = "tandem.component"
	LabelRelayPort = "tandem.relay.port"
)

// ComponentRelay marks the Redis relay container.
const ComponentRelay = "relay"

// BuildLabels creates the label set for a tandem container in space.
// component is optional.
func BuildLabels(space, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject: "true",
		LabelSpace:   space,
		LabelRunID:   runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for one `tandem relay up`.
func GenerateRunID() string {
	return uuid.New().String()
}

// RelayContainerName returns the relay container name for a space
func RelayContainerName(space string) string {
	return fmt.Sprintf("tandem-relay-%s", space)
}

// dockerEnvFile exists inside containers started by Docker.
var dockerEnvFile = "/.dockerenv"

// RelayHost returns the hostname a node uses to reach a relay published on
// the host. Inside a container that is host.docker.internal.
func RelayHost() string {
	if _, err := os.Stat(dockerEnvFile); err == nil {
		return "host.docker.internal"
	}
	return "127.0.0.1"
}

// RelayURL is the Redis URL a node uses to reach a relay published on port.
func RelayURL(port int) string {
	return fmt.Sprintf("redis://%s:%d/0", RelayHost(), port)
}
