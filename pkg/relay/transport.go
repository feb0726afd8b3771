package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Tier is a transport reliability level.
type Tier string

const (
	// TierRealtime is fire-and-forget delivery to a connected peer (Redis Pub/Sub)
	TierRealtime Tier = "realtime"

	// TierQueued is ordered, eventually delivered queueing (Redis list)
	TierQueued Tier = "queued"

	// TierSnapshot carries only the latest context blob (Redis string, overwritten)
	TierSnapshot Tier = "snapshot"
)

// ErrNoReceivers is reported to a realtime failure callback when nobody was
// subscribed to the peer's channel at publish time.
var ErrNoReceivers = errors.New("realtime payload had no receivers")

// ErrClosed is reported for sends attempted after Close.
var ErrClosed = errors.New("relay transport closed")

// Default timings used when Options leaves them zero.
const (
	DefaultProbeInterval = 2 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
)

// Options configures a Transport.
type Options struct {
	Space string // Namespace shared by both nodes
	Node  string // This node's name
	Peer  string // The other node's name

	ProbeInterval time.Duration // How often presence is refreshed and the peer checked
	PresenceTTL   time.Duration // Presence key expiry; defaults to 3x ProbeInterval
	PollInterval  time.Duration // How often the inbox and context keys are drained

	Logger zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = DefaultProbeInterval
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = 3 * o.ProbeInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}

// Transport moves replication payloads between two nodes through a shared Redis relay.
//
// Each node listens on its own channel, inbox and context key, and writes to the
// peer's. Reachability is derived from the peer's presence key. Transport is safe
// for concurrent use.
type Transport struct {
	rdb  *redis.Client
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	onPayload func(Tier, []byte)
	onReach   func(bool)
	reachable bool
	probed    bool

	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sends  sync.WaitGroup
	once   sync.Once
}

// NewTransport creates a transport for one node of a pair.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - opts: space, node and peer names plus timings
//
// Returns an error if any name is empty or node and peer are the same.
func NewTransport(redisOpts *redis.Options, opts Options) (*Transport, error) {
	if opts.Space == "" {
		return nil, fmt.Errorf("space name cannot be empty")
	}
	if opts.Node == "" || opts.Peer == "" {
		return nil, fmt.Errorf("node and peer names cannot be empty")
	}
	if opts.Node == opts.Peer {
		return nil, fmt.Errorf("node and peer must differ (both %q)", opts.Node)
	}
	opts.applyDefaults()

	return &Transport{
		rdb:  redis.NewClient(redisOpts),
		opts: opts,
		log:  opts.Logger.With().Str("component", "relay").Logger(),
	}, nil
}

// RedisClient exposes the underlying client for tooling and tests.
func (t *Transport) RedisClient() *redis.Client {
	return t.rdb
}

// Ping verifies Redis connectivity. Useful for health checks.
func (t *Transport) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// OnPayloadReceived registers the callback for inbound payloads from every tier.
// Must be called before Start.
func (t *Transport) OnPayloadReceived(fn func(tier Tier, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPayload = fn
}

// OnReachabilityChanged registers the callback for peer reachability changes.
// Must be called before Start.
func (t *Transport) OnReachabilityChanged(fn func(reachable bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReach = fn
}

// Reachable reports the last probed peer reachability.
func (t *Transport) Reachable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reachable
}

// Start subscribes to this node's realtime channel, performs the first presence
// probe, and launches the receive and probe loops. The loops stop on Close or
// when ctx is cancelled.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.Ping(ctx); err != nil {
		return fmt.Errorf("relay not reachable: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	pubsub := t.rdb.Subscribe(runCtx, RealtimeChannel(t.opts.Space, t.opts.Node))
	// Wait for the subscription to be confirmed so early publishes are not lost
	if _, err := pubsub.Receive(runCtx); err != nil {
		cancel()
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to realtime channel: %w", err)
	}

	t.probe(runCtx)

	t.wg.Add(3)
	go t.realtimeLoop(runCtx, pubsub)
	go t.drainLoop(runCtx)
	go t.probeLoop(runCtx)

	return nil
}

// Close stops all loops, withdraws this node's presence and closes the Redis
// connection. Implements io.Closer. Safe to call multiple times.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		if t.cancel != nil {
			t.cancel()
		}
		t.wg.Wait()
		t.sends.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if delErr := t.rdb.Del(ctx, PresenceKey(t.opts.Space, t.opts.Node)).Err(); delErr != nil {
			t.log.Debug().Err(delErr).Msg("failed to withdraw presence")
		}

		err = t.rdb.Close()
	})
	return err
}

// SendRealtime publishes payload to the peer's realtime channel without waiting.
// onFailure is called (from another goroutine) if the publish fails or nobody
// received it. There is no retry. Close waits for in-flight sends and their
// onFailure callbacks.
func (t *Transport) SendRealtime(ctx context.Context, payload []byte, onFailure func(error)) {
	channel := RealtimeChannel(t.opts.Space, t.opts.Peer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if onFailure != nil {
			go onFailure(ErrClosed)
		}
		return
	}
	t.sends.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.sends.Done()
		receivers, err := t.rdb.Publish(ctx, channel, payload).Result()
		switch {
		case err != nil:
			err = fmt.Errorf("failed to publish realtime payload: %w", err)
		case receivers == 0:
			err = ErrNoReceivers
		default:
			return
		}

		if onFailure != nil {
			onFailure(err)
		}
	}()
}

// EnqueueReliable appends payload to the peer's inbox. Payloads wait in the relay
// until the peer drains them, in submission order.
func (t *Transport) EnqueueReliable(ctx context.Context, payload []byte) error {
	if err := t.rdb.RPush(ctx, InboxKey(t.opts.Space, t.opts.Peer), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue payload: %w", err)
	}
	return nil
}

// PublishSnapshot replaces the peer's context blob. An unconsumed earlier blob is lost.
func (t *Transport) PublishSnapshot(ctx context.Context, payload []byte) error {
	if err := t.rdb.Set(ctx, ContextKey(t.opts.Space, t.opts.Peer), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (t *Transport) deliver(tier Tier, payload []byte) {
	t.mu.Lock()
	fn := t.onPayload
	t.mu.Unlock()

	if fn == nil {
		t.log.Warn().Str("tier", string(tier)).Msg("payload dropped: no receiver registered")
		return
	}
	fn(tier, payload)
}

func (t *Transport) realtimeLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer t.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.deliver(TierRealtime, []byte(msg.Payload))
		}
	}
}

func (t *Transport) drainLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		t.drainInbox(ctx)
		t.consumeSnapshot(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drainInbox pops queued payloads one at a time until the inbox is empty.
func (t *Transport) drainInbox(ctx context.Context) {
	key := InboxKey(t.opts.Space, t.opts.Node)
	for ctx.Err() == nil {
		payload, err := t.rdb.LPop(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				t.log.Debug().Err(err).Msg("inbox drain failed")
			}
			return
		}
		t.deliver(TierQueued, payload)
	}
}

func (t *Transport) consumeSnapshot(ctx context.Context) {
	payload, err := t.rdb.GetDel(ctx, ContextKey(t.opts.Space, t.opts.Node)).Bytes()
	if errors.Is(err, redis.Nil) {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			t.log.Debug().Err(err).Msg("snapshot read failed")
		}
		return
	}
	t.deliver(TierSnapshot, payload)
}

func (t *Transport) probeLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.probe(ctx)
		}
	}
}

// probe refreshes this node's presence and checks the peer's.
// Any Redis error counts as unreachable.
func (t *Transport) probe(ctx context.Context) {
	reachable := false

	err := t.rdb.Set(ctx, PresenceKey(t.opts.Space, t.opts.Node), "1", t.opts.PresenceTTL).Err()
	if err == nil {
		var n int64
		n, err = t.rdb.Exists(ctx, PresenceKey(t.opts.Space, t.opts.Peer)).Result()
		reachable = err == nil && n > 0
	}
	if err != nil && ctx.Err() != nil {
		return
	}

	t.setReachable(reachable)
}

func (t *Transport) setReachable(reachable bool) {
	t.mu.Lock()
	changed := !t.probed || t.reachable != reachable
	t.probed = true
	t.reachable = reachable
	fn := t.onReach
	t.mu.Unlock()

	if !changed {
		return
	}

	t.log.Info().Bool("reachable", reachable).Str("peer", t.opts.Peer).Msg("peer reachability changed")
	if fn != nil {
		fn(reachable)
	}
}
