package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/tandem/internal/replication"
	"github.com/dyluth/tandem/pkg/sample"
	"github.com/dyluth/tandem/pkg/scoring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC)

// fakeNode is a scripted Node
type fakeNode struct {
	state     replication.State
	reachable bool
	snap      replication.Snapshot
	catchUp   replication.CatchUpStatus
	opErr     error
	requested int
	reloaded  int
}

func (f *fakeNode) Node() string                             { return "phone" }
func (f *fakeNode) State() replication.State                 { return f.state }
func (f *fakeNode) Reachable() bool                          { return f.reachable }
func (f *fakeNode) Snapshot() replication.Snapshot           { return f.snap }
func (f *fakeNode) CatchUp() replication.CatchUpStatus       { return f.catchUp }
func (f *fakeNode) RequestCatchUp(ctx context.Context) error { f.requested++; return f.opErr }
func (f *fakeNode) Reload(ctx context.Context) error         { f.reloaded++; return f.opErr }

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(node Node, relay Pinger, origins ...string) *Server {
	return NewServer(node, relay, Options{Logger: zerolog.Nop(), AllowedOrigins: origins})
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy when active and relay answers", func(t *testing.T) {
		s := newTestServer(&fakeNode{state: replication.StateActive, reachable: true}, fakePinger{})
		w := do(t, s, http.MethodGet, "/healthz")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, HealthResponse{
			Status: "healthy",
			Node:   "phone",
			State:  "active",
			Relay:  "connected",
			Peer:   "reachable",
		}, response)
	})

	t.Run("unhealthy when relay unavailable", func(t *testing.T) {
		s := newTestServer(&fakeNode{state: replication.StateActive}, fakePinger{err: errors.New("connection refused")})
		w := do(t, s, http.MethodGet, "/healthz")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "disconnected", response.Relay)
		assert.Equal(t, "connection refused", response.Error)
	})

	t.Run("unhealthy when endpoint inactive", func(t *testing.T) {
		s := newTestServer(&fakeNode{state: replication.StateInactive}, fakePinger{})
		w := do(t, s, http.MethodGet, "/healthz")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "not active")
	})

	t.Run("rejects other methods", func(t *testing.T) {
		s := newTestServer(&fakeNode{}, fakePinger{})
		w := do(t, s, http.MethodPost, "/healthz")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestSamples(t *testing.T) {
	low := sample.New(t0, sample.RawInputs{
		HRV: sample.Some(200), HeartRate: sample.Some(40), SleepHours: sample.Some(10),
	})
	moderate := sample.New(t0.Add(time.Minute), sample.RawInputs{
		HRV: sample.Some(40), HeartRate: sample.Some(90), SleepHours: sample.Some(6),
	})
	node := &fakeNode{
		state: replication.StateActive,
		snap: replication.Snapshot{
			Samples: []sample.Sample{low, moderate},
			Cutoff:  moderate.Timestamp,
		},
	}
	s := newTestServer(node, fakePinger{})

	t.Run("lists every sample with its score", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/samples")
		require.Equal(t, http.StatusOK, w.Code)

		var response SamplesResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

		assert.Equal(t, "phone", response.Node)
		require.NotNil(t, response.Cutoff)
		assert.True(t, moderate.Timestamp.Equal(*response.Cutoff))
		require.Len(t, response.Samples, 2)
		assert.Equal(t, low.ID, response.Samples[0].ID)
		assert.Equal(t, scoring.CategoryLow, response.Samples[0].Category)
		assert.Equal(t, moderate.ID, response.Samples[1].ID)
		assert.InDelta(t, 57.5, response.Samples[1].Score, 1e-9)
		assert.Equal(t, scoring.CategoryModerate, response.Samples[1].Category)
	})

	t.Run("embeds raw inputs", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/samples")
		assert.Contains(t, w.Body.String(), `"heart_rate":90`)
		assert.Contains(t, w.Body.String(), `"timestamp":"2026-05-01T07:31:00Z"`)
	})

	t.Run("filters by category", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/samples?category=moderate")
		require.Equal(t, http.StatusOK, w.Code)

		var response SamplesResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Len(t, response.Samples, 1)
		assert.Equal(t, moderate.ID, response.Samples[0].ID)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/samples?category=extreme")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown category")
	})

	t.Run("empty set encodes as array and null cutoff", func(t *testing.T) {
		empty := newTestServer(&fakeNode{snap: replication.Snapshot{}}, fakePinger{})
		w := do(t, empty, http.MethodGet, "/samples")
		assert.Contains(t, w.Body.String(), `"samples":[]`)
		assert.Contains(t, w.Body.String(), `"cutoff":null`)
	})
}

func TestState(t *testing.T) {
	node := &fakeNode{
		state:     replication.StateActive,
		reachable: true,
		snap:      replication.Snapshot{Samples: []sample.Sample{sample.New(t0, sample.RawInputs{})}, Cutoff: t0},
		catchUp:   replication.CatchUpStatus{State: replication.CatchUpRequested, Requests: 2, Answered: 1},
	}
	s := newTestServer(node, fakePinger{})

	w := do(t, s, http.MethodGet, "/state")
	require.Equal(t, http.StatusOK, w.Code)

	var response StateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "active", response.State)
	assert.True(t, response.Reachable)
	assert.Equal(t, 1, response.Samples)
	assert.Equal(t, replication.CatchUpRequested, response.CatchUp.State)
	assert.Equal(t, 2, response.CatchUp.Requests)
}

func TestTriggers(t *testing.T) {
	for _, path := range []string{"/catchup", "/reload"} {
		t.Run(path, func(t *testing.T) {
			node := &fakeNode{state: replication.StateActive}
			s := newTestServer(node, fakePinger{})

			w := do(t, s, http.MethodPost, path)
			assert.Equal(t, http.StatusAccepted, w.Code)
			assert.Equal(t, 1, node.requested+node.reloaded)

			node.opErr = replication.ErrNotActive
			w = do(t, s, http.MethodPost, path)
			assert.Equal(t, http.StatusConflict, w.Code)

			node.opErr = errors.New("boom")
			w = do(t, s, http.MethodPost, path)
			assert.Equal(t, http.StatusInternalServerError, w.Code)

			w = do(t, s, http.MethodGet, path)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(&fakeNode{state: replication.StateActive}, fakePinger{}, "http://dashboard.local")

	req := httptest.NewRequest(http.MethodOptions, "/samples", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/samples", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// TestServer_WithEndpoint drives a real endpoint over a loopback transport
func TestServer_WithEndpoint(t *testing.T) {
	ctx := context.Background()
	tr, _ := replication.NewLoopbackPair("phone", "watch")
	e, err := replication.NewEndpoint(replication.Options{
		Node:      "phone",
		Transport: tr,
		Store:     &memStore{},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Activate(ctx))

	incoming := sample.New(t0, sample.RawInputs{HRV: sample.Some(40)})
	_, err = e.Ingest(ctx, []sample.Sample{incoming})
	require.NoError(t, err)

	s := NewServer(e, fakePinger{}, Options{Addr: "127.0.0.1:0", Logger: zerolog.Nop()})
	require.NoError(t, s.Start())
	defer s.Shutdown(ctx)

	resp, err := http.Get("http://" + s.Addr() + "/samples")
	require.NoError(t, err)
	defer resp.Body.Close()

	var response SamplesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	require.Len(t, response.Samples, 1)
	assert.Equal(t, incoming.ID, response.Samples[0].ID)

	post, err := http.Post("http://"+s.Addr()+"/catchup", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)
	assert.Equal(t, 2, e.CatchUp().Requests)
}

type memStore struct {
	samples []sample.Sample
	cutoff  time.Time
}

func (m *memStore) LoadAll() []sample.Sample { return append([]sample.Sample{}, m.samples...) }
func (m *memStore) SaveAll(s []sample.Sample) error {
	m.samples = append([]sample.Sample{}, s...)
	return nil
}
func (m *memStore) LoadCutoff() time.Time             { return m.cutoff }
func (m *memStore) SaveCutoff(cutoff time.Time) error { m.cutoff = cutoff; return nil }
