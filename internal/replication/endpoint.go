package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/tandem/internal/logger"
	"github.com/dyluth/tandem/pkg/relay"
	"github.com/dyluth/tandem/pkg/sample"
	"github.com/rs/zerolog"
)

// State is the endpoint's activation state.
type State string

const (
	StateInactive   State = "inactive"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// ErrNotActive is returned by operations that need an active endpoint.
var ErrNotActive = errors.New("replication endpoint is not active")

// DefaultQueueSize bounds the writer's pending job queue.
const DefaultQueueSize = 64

// Options configures an Endpoint.
type Options struct {
	Node      string
	Transport Transport
	Store     SampleStore
	Logger    zerolog.Logger

	// Clock stamps produced samples. Defaults to time.Now.
	Clock func() time.Time

	// PublishSnapshots also writes each produced sample to the peer's
	// latest-state slot.
	PublishSnapshots bool

	QueueSize int
}

// Snapshot is an immutable view of the working set. Callers must not modify
// Samples.
type Snapshot struct {
	Version uint64
	Samples []sample.Sample
	Cutoff  time.Time
}

// IngestResult describes the effect of one ingestion.
type IngestResult struct {
	Added    []sample.Sample
	Cutoff   time.Time
	Advanced bool
}

// Endpoint is one node's replication endpoint.
//
// Every mutation of the working set, the store and the cutoff runs on a single
// writer goroutine, in submission order. Readers use the last published
// Snapshot and never wait for the writer.
type Endpoint struct {
	node      string
	transport Transport
	store     SampleStore
	clock     func() time.Time
	log       zerolog.Logger
	snapshots bool
	queueSize int

	mu         sync.Mutex
	state      State
	jobs       chan func()
	done       chan struct{}
	runCtx     context.Context
	cancel     context.CancelFunc
	stopWriter context.CancelFunc

	reachable atomic.Bool
	current   atomic.Pointer[Snapshot]

	// Owned by the writer goroutine.
	working      []sample.Sample
	cutoff       time.Time
	storedCutoff time.Time
	version      uint64

	obsMu     sync.Mutex
	observers map[*Subscription]struct{}

	catchUp catchUpTracker
}

// NewEndpoint creates an inactive endpoint.
func NewEndpoint(opts Options) (*Endpoint, error) {
	if opts.Node == "" {
		return nil, fmt.Errorf("node name cannot be empty")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	e := &Endpoint{
		node:      opts.Node,
		transport: opts.Transport,
		store:     opts.Store,
		clock:     opts.Clock,
		log:       logger.Named(opts.Logger, "replication"),
		snapshots: opts.PublishSnapshots,
		queueSize: opts.QueueSize,
		state:     StateInactive,
		observers: make(map[*Subscription]struct{}),
	}
	e.current.Store(&Snapshot{Samples: []sample.Sample{}})

	opts.Transport.OnPayloadReceived(e.handlePayload)
	opts.Transport.OnReachabilityChanged(e.handleReachability)
	return e, nil
}

// Node returns this endpoint's node name.
func (e *Endpoint) Node() string {
	return e.node
}

// State returns the activation state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reachable reports whether the peer was reachable at the last transport report.
func (e *Endpoint) Reachable() bool {
	return e.reachable.Load()
}

// Snapshot returns the last published view of the working set.
func (e *Endpoint) Snapshot() Snapshot {
	return *e.current.Load()
}

// Cutoff returns the cutoff from the last published snapshot.
func (e *Endpoint) Cutoff() time.Time {
	return e.current.Load().Cutoff
}

// Activate loads persisted state, starts the transport and asks the peer for
// anything newer than the persisted cutoff.
func (e *Endpoint) Activate(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateInactive {
		e.mu.Unlock()
		return fmt.Errorf("endpoint %s is already %s", e.node, e.state)
	}
	e.state = StateActivating
	e.runCtx, e.cancel = context.WithCancel(context.Background())
	writerCtx, stopWriter := context.WithCancel(e.runCtx)
	e.stopWriter = stopWriter
	e.jobs = make(chan func(), e.queueSize)
	e.done = make(chan struct{})
	go e.writer(writerCtx, e.jobs, e.done)
	e.mu.Unlock()

	var loaded Snapshot
	err := e.exec(ctx, func() {
		e.working = e.store.LoadAll()
		e.cutoff = e.store.LoadCutoff()
		e.storedCutoff = e.cutoff
		loaded = e.snapshotLocked()
	})
	if err == nil {
		e.publish(loaded)
		err = e.transport.Start(ctx)
	}
	if err != nil {
		e.stop()
		return fmt.Errorf("failed to activate endpoint %s: %w", e.node, err)
	}

	e.mu.Lock()
	e.state = StateActive
	e.mu.Unlock()

	e.logEvent("endpoint_activated", map[string]interface{}{
		"samples": len(loaded.Samples),
		"cutoff":  formatTime(loaded.Cutoff),
	})

	if err := e.RequestCatchUp(ctx); err != nil {
		e.log.Warn().Err(err).Msg("initial catch-up request failed")
	}
	return nil
}

// Close stops the writer and the transport and closes every subscription.
// Closing an inactive endpoint is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	active := e.state != StateInactive
	e.mu.Unlock()
	if !active {
		return nil
	}

	err := e.stop()
	e.closeObservers()
	e.logEvent("endpoint_closed", map[string]interface{}{})
	return err
}

// stop tears down the writer, then the transport, and returns to Inactive.
// Sends stay possible until the transport has closed, so in-flight realtime
// payloads and their queued fallbacks complete.
func (e *Endpoint) stop() error {
	e.mu.Lock()
	cancel, stopWriter, done := e.cancel, e.stopWriter, e.done
	e.state = StateInactive
	e.mu.Unlock()

	if stopWriter != nil {
		stopWriter()
		<-done
	}
	err := e.transport.Close()
	if cancel != nil {
		cancel()
	}
	e.reachable.Store(false)
	return err
}

// writer runs jobs one at a time until ctx is cancelled.
func (e *Endpoint) writer(ctx context.Context, jobs <-chan func(), done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			job()
		}
	}
}

// exec runs fn on the writer goroutine and waits for it to finish.
func (e *Endpoint) exec(ctx context.Context, fn func()) error {
	e.mu.Lock()
	if e.state == StateInactive {
		e.mu.Unlock()
		return ErrNotActive
	}
	jobs, done := e.jobs, e.done
	e.mu.Unlock()

	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case jobs <- job:
	case <-done:
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-done:
		// The writer may have finished the job just before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrNotActive
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshotLocked captures the working set. Writer goroutine only.
func (e *Endpoint) snapshotLocked() Snapshot {
	e.version++
	samples := make([]sample.Sample, len(e.working))
	copy(samples, e.working)
	return Snapshot{Version: e.version, Samples: samples, Cutoff: e.cutoff}
}

// publish makes snap current and notifies observers, unless a newer snapshot
// has already been published.
func (e *Endpoint) publish(snap Snapshot) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	if snap.Version <= e.current.Load().Version {
		return
	}
	e.current.Store(&snap)

	for sub := range e.observers {
		sub.offer(snap)
	}
}

// Reload re-reads the working set and cutoff from the store. The cutoff never
// falls behind the last one this endpoint stored; an advance that never
// reached the store is dropped along with the unsaved samples.
func (e *Endpoint) Reload(ctx context.Context) error {
	var snap Snapshot
	err := e.exec(ctx, func() {
		e.working = e.store.LoadAll()
		floor := e.storedCutoff
		e.storedCutoff = e.store.LoadCutoff()
		e.cutoff = e.storedCutoff
		if floor.After(e.cutoff) {
			e.cutoff = floor
		}
		snap = e.snapshotLocked()
	})
	if err != nil {
		return err
	}

	e.publish(snap)
	e.logEvent("store_reloaded", map[string]interface{}{
		"samples": len(snap.Samples),
		"cutoff":  formatTime(snap.Cutoff),
	})
	return nil
}

// handleReachability records the transport's report. Becoming reachable
// triggers a catch-up request.
func (e *Endpoint) handleReachability(reachable bool) {
	was := e.reachable.Swap(reachable)
	if was == reachable {
		return
	}

	e.logEvent("peer_reachability_changed", map[string]interface{}{
		"reachable": reachable,
	})

	if !reachable || e.State() != StateActive {
		return
	}
	if err := e.RequestCatchUp(e.context()); err != nil {
		e.log.Warn().Err(err).Msg("catch-up request on reconnect failed")
	}
}

// context returns the endpoint's run context, or a cancelled one when inactive.
func (e *Endpoint) context() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return e.runCtx
}

// send encodes env and pushes it over the best available tier: realtime when
// the peer is reachable, falling back to the queue if realtime fails, and the
// queue directly otherwise.
func (e *Endpoint) send(env relay.Envelope) error {
	payload, err := relay.Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	ctx := e.context()
	if !e.reachable.Load() {
		return e.transport.EnqueueReliable(ctx, payload)
	}

	e.transport.SendRealtime(ctx, payload, func(sendErr error) {
		e.logEvent("realtime_fallback", map[string]interface{}{
			"error": sendErr.Error(),
		})
		if err := e.transport.EnqueueReliable(ctx, payload); err != nil {
			e.log.Error().Err(err).Msg("queued fallback failed, payload dropped")
		}
	})
	return nil
}

// logEvent writes a structured replication event. The node name comes from
// the root logger.
func (e *Endpoint) logEvent(eventType string, data map[string]interface{}) {
	logger.Event(e.log, eventType, data)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
