package replication

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dyluth/tandem/pkg/relay"
	"github.com/dyluth/tandem/pkg/sample"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var t0 = time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC)

// memStore is an in-memory SampleStore that counts writes and can fail them
type memStore struct {
	mu          sync.Mutex
	samples     []sample.Sample
	cutoff      time.Time
	saves       int
	cutoffSaves int
	fail        bool
	failSamples bool
}

func (m *memStore) LoadAll() []sample.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]sample.Sample{}, m.samples...)
	sample.Sort(out)
	return out
}

func (m *memStore) SaveAll(samples []sample.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || m.failSamples {
		return errors.New("disk full")
	}
	m.saves++
	m.samples = append([]sample.Sample{}, samples...)
	return nil
}

func (m *memStore) LoadCutoff() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cutoff
}

func (m *memStore) SaveCutoff(cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.cutoffSaves++
	m.cutoff = cutoff
	return nil
}

func (m *memStore) writes() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.cutoffSaves
}

func (m *memStore) stored() []sample.Sample {
	return m.LoadAll()
}

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// setFailSamples makes only SaveAll fail; SaveCutoff keeps working
func (m *memStore) setFailSamples(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSamples = fail
}

// stepClock returns a clock that advances one second per call, starting at base
func stepClock(base time.Time) func() time.Time {
	var n int64
	return func() time.Time {
		i := atomic.AddInt64(&n, 1) - 1
		return base.Add(time.Duration(i) * time.Second)
	}
}

func at(offset time.Duration) sample.Sample {
	return sample.New(t0.Add(offset), sample.RawInputs{HRV: sample.Some(50)})
}

func newTestEndpoint(t *testing.T, node string, tr Transport, st SampleStore) *Endpoint {
	t.Helper()
	e, err := NewEndpoint(Options{
		Node:      node,
		Transport: tr,
		Store:     st,
		Logger:    zerolog.Nop(),
		Clock:     stepClock(t0.Add(time.Hour)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// activePair returns two active endpoints over a loopback link once both have
// seen each other and answered each other's initial catch-up request
func activePair(t *testing.T) (watch, phone *Endpoint, watchTr, phoneTr *Loopback, watchSt, phoneSt *memStore) {
	t.Helper()
	ctx := context.Background()

	watchTr, phoneTr = NewLoopbackPair("watch", "phone")
	watchSt, phoneSt = &memStore{}, &memStore{}
	watch = newTestEndpoint(t, "watch", watchTr, watchSt)
	phone = newTestEndpoint(t, "phone", phoneTr, phoneSt)

	require.NoError(t, watch.Activate(ctx))
	require.NoError(t, phone.Activate(ctx))

	require.Eventually(t, func() bool {
		return watch.Reachable() && phone.Reachable() &&
			watch.CatchUp().State == CatchUpIdle && phone.CatchUp().State == CatchUpIdle
	}, waitFor, tick, "pair should settle")
	return
}

func ids(samples []sample.Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.ID
	}
	return out
}

// peerRecorder is a bare loopback peer that records decoded envelopes
type peerRecorder struct {
	mu   sync.Mutex
	envs []received
}

type received struct {
	tier relay.Tier
	env  relay.Envelope
}

func (p *peerRecorder) onPayload(tier relay.Tier, payload []byte) {
	env, err := relay.Decode(payload)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, received{tier: tier, env: env})
}

// batches returns every batch envelope received so far
func (p *peerRecorder) batches() []relay.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []relay.Envelope
	for _, r := range p.envs {
		if r.env.HasBatch() {
			out = append(out, r.env)
		}
	}
	return out
}

// requests returns the cutoff of every catch-up request received so far
func (p *peerRecorder) requests() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []time.Time
	for _, r := range p.envs {
		if r.env.Since != nil {
			out = append(out, *r.env.Since)
		}
	}
	return out
}

func (p *peerRecorder) onTier(tier relay.Tier) []relay.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []relay.Envelope
	for _, r := range p.envs {
		if r.tier == tier {
			out = append(out, r.env)
		}
	}
	return out
}

// startRawPeer starts tr as a bare peer that only records what it receives
func startRawPeer(t *testing.T, tr *Loopback) *peerRecorder {
	t.Helper()
	rec := &peerRecorder{}
	tr.OnPayloadReceived(rec.onPayload)
	tr.OnReachabilityChanged(func(bool) {})
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return rec
}

func mustEncode(t *testing.T, env relay.Envelope) []byte {
	t.Helper()
	data, err := relay.Encode(env)
	require.NoError(t, err)
	return data
}

// sentSample reports whether tr sent a newSample envelope carrying id on tier
func sentSample(t *testing.T, tr *Loopback, tier relay.Tier, id string) bool {
	t.Helper()
	for _, payload := range tr.Sent(tier) {
		env, err := relay.Decode(payload)
		require.NoError(t, err)
		if env.NewSample != nil && env.NewSample.ID == id {
			return true
		}
	}
	return false
}
