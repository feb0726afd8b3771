//go:build integration

package replication

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dyluth/tandem/internal/store"
	"github.com/dyluth/tandem/pkg/relay"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) *redis.Options {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	opts, err := redis.ParseURL(fmt.Sprintf("redis://%s:%s", host, port.Port()))
	require.NoError(t, err)
	return opts
}

func newRedisNode(t *testing.T, opts *redis.Options, dir, node, peer string) *Endpoint {
	t.Helper()

	tr, err := relay.NewTransport(opts, relay.Options{
		Space:         "integration",
		Node:          node,
		Peer:          peer,
		ProbeInterval: 100 * time.Millisecond,
		PollInterval:  50 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	st, err := store.Open(store.Options{Backend: store.BackendBolt, Path: dir + "/" + node + ".db", Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	// Wall clock: timestamps on the two nodes must interleave as they would in production
	e, err := NewEndpoint(Options{Node: node, Transport: tr, Store: st, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// TestReplication_RealRedis runs the offline, reconnect and catch-up cycle
// against a real Redis server
func TestReplication_RealRedis(t *testing.T) {
	opts := setupRedis(t)
	dir := t.TempDir()
	ctx := context.Background()

	watch := newRedisNode(t, opts, dir, "watch", "phone")
	require.NoError(t, watch.Activate(ctx))

	// Phone is offline: both samples wait in its inbox
	s1, err := watch.Produce(ctx, s1Readings)
	require.NoError(t, err)
	s2, err := watch.Produce(ctx, s1Readings)
	require.NoError(t, err)

	phone := newRedisNode(t, opts, dir, "phone", "watch")
	require.NoError(t, phone.Activate(ctx))

	require.Eventually(t, func() bool { return len(phone.Snapshot().Samples) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{s1.ID, s2.ID}, ids(phone.Snapshot().Samples))

	// Once both are up, the phone's own sample travels in real time
	require.Eventually(t, func() bool { return phone.Reachable() && watch.Reachable() }, 5*time.Second, 20*time.Millisecond)
	s3, err := phone.Produce(ctx, s1Readings)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(watch.Snapshot().Samples) == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, ids(phone.Snapshot().Samples), ids(watch.Snapshot().Samples))
	assert.True(t, s3.Timestamp.Equal(watch.Cutoff()))
}
