package replication

import (
	"context"
	"errors"
	"sync"

	"github.com/dyluth/tandem/pkg/relay"
)

// ErrLoopbackClosed is returned when sending through a closed loopback.
var ErrLoopbackClosed = errors.New("loopback transport closed")

// Loopback is an in-memory Transport connecting two endpoints in one process.
//
// It keeps the delivery semantics of the Redis relay: realtime payloads fail
// unless the peer is online and the link is up, queued payloads wait until they
// can be delivered in order, and the snapshot slot keeps only the newest blob.
// Callbacks run on a per-node delivery goroutine, never on the sender's.
type Loopback struct {
	name string
	link *loopbackLink
	peer *Loopback

	mu           sync.Mutex
	online       bool
	closed       bool
	failRealtime bool
	onPayload    func(relay.Tier, []byte)
	onReach      func(bool)
	reported     *bool
	queued       [][]byte
	snapshot     []byte
	sent         map[relay.Tier][][]byte

	box *mailbox
}

type loopbackLink struct {
	mu sync.Mutex
	up bool
}

// NewLoopbackPair creates two connected loopback transports. The link starts up.
func NewLoopbackPair(a, b string) (*Loopback, *Loopback) {
	link := &loopbackLink{up: true}
	la := &Loopback{name: a, link: link, sent: map[relay.Tier][][]byte{}}
	lb := &Loopback{name: b, link: link, sent: map[relay.Tier][][]byte{}}
	la.peer, lb.peer = lb, la
	return la, lb
}

// SetLinked raises or cuts the link between the pair. Cutting it makes both
// sides unreachable; raising it flushes queued and snapshot payloads.
func (l *Loopback) SetLinked(up bool) {
	l.link.mu.Lock()
	l.link.up = up
	l.link.mu.Unlock()

	l.refresh()
	l.peer.refresh()
}

// FailRealtime makes every realtime send from this side fail.
func (l *Loopback) FailRealtime(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRealtime = fail
}

// DropPending discards queued and snapshot payloads waiting for this side,
// simulating a lost queue.
func (l *Loopback) DropPending() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queued = nil
	l.snapshot = nil
}

// Sent returns every payload this side has sent on tier, delivered or not.
func (l *Loopback) Sent(tier relay.Tier) [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent[tier]...)
}

// OnPayloadReceived implements Transport.
func (l *Loopback) OnPayloadReceived(fn func(relay.Tier, []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onPayload = fn
}

// OnReachabilityChanged implements Transport.
func (l *Loopback) OnReachabilityChanged(fn func(bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReach = fn
}

// Start implements Transport.
func (l *Loopback) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopbackClosed
	}
	l.online = true
	l.box = newMailbox()
	l.mu.Unlock()

	go l.box.run()

	l.refresh()
	l.peer.refresh()
	return nil
}

// Close implements Transport.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.online = false
	box := l.box
	l.mu.Unlock()

	if box != nil {
		box.stop()
	}
	l.peer.refresh()
	return nil
}

// SendRealtime implements Transport.
func (l *Loopback) SendRealtime(ctx context.Context, payload []byte, onFailure func(error)) {
	l.mu.Lock()
	l.sent[relay.TierRealtime] = append(l.sent[relay.TierRealtime], copyBytes(payload))
	fail := l.failRealtime || l.closed
	l.mu.Unlock()

	if !fail && l.peer.accept(relay.TierRealtime, payload) {
		return
	}
	if onFailure != nil {
		go onFailure(relay.ErrNoReceivers)
	}
}

// EnqueueReliable implements Transport.
func (l *Loopback) EnqueueReliable(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopbackClosed
	}
	l.sent[relay.TierQueued] = append(l.sent[relay.TierQueued], copyBytes(payload))
	l.mu.Unlock()

	l.peer.mu.Lock()
	l.peer.queued = append(l.peer.queued, copyBytes(payload))
	l.peer.mu.Unlock()

	l.peer.refresh()
	return nil
}

// PublishSnapshot implements Transport.
func (l *Loopback) PublishSnapshot(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopbackClosed
	}
	l.sent[relay.TierSnapshot] = append(l.sent[relay.TierSnapshot], copyBytes(payload))
	l.mu.Unlock()

	l.peer.mu.Lock()
	l.peer.snapshot = copyBytes(payload)
	l.peer.mu.Unlock()

	l.peer.refresh()
	return nil
}

func (l *Loopback) linked() bool {
	l.link.mu.Lock()
	defer l.link.mu.Unlock()
	return l.link.up
}

// accept hands a realtime payload to this side if it can receive right now.
func (l *Loopback) accept(tier relay.Tier, payload []byte) bool {
	if !l.linked() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.online || l.onPayload == nil {
		return false
	}
	fn, data := l.onPayload, copyBytes(payload)
	l.box.post(func() { fn(tier, data) })
	return true
}

// refresh re-evaluates reachability and, if this side can receive, flushes
// pending queued and snapshot payloads in order.
func (l *Loopback) refresh() {
	linked := l.linked()

	l.peer.mu.Lock()
	peerOnline := l.peer.online
	l.peer.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.online {
		return
	}

	reachable := linked && peerOnline
	if l.reported == nil || *l.reported != reachable {
		l.reported = &reachable
		if fn := l.onReach; fn != nil {
			l.box.post(func() { fn(reachable) })
		}
	}

	if !linked || l.onPayload == nil {
		return
	}

	fn := l.onPayload
	for _, payload := range l.queued {
		data := payload
		l.box.post(func() { fn(relay.TierQueued, data) })
	}
	l.queued = nil

	if l.snapshot != nil {
		data := l.snapshot
		l.box.post(func() { fn(relay.TierSnapshot, data) })
		l.snapshot = nil
	}
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

// mailbox runs posted functions one at a time, in order, on its own goroutine.
type mailbox struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (m *mailbox) post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for _, fn := range batch {
			select {
			case <-m.quit:
				return
			default:
			}
			fn()
		}

		select {
		case <-m.quit:
			return
		case <-m.wake:
		}
	}
}

func (m *mailbox) stop() {
	close(m.quit)
	<-m.done
}
