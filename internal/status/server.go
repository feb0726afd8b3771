// Package status serves a node's health and replicated samples over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/tandem/internal/listing"
	"github.com/dyluth/tandem/internal/logger"
	"github.com/dyluth/tandem/internal/replication"
	"github.com/dyluth/tandem/pkg/scoring"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// pingTimeout bounds the relay check in /healthz.
const pingTimeout = 2 * time.Second

// Node is the replication endpoint surface the server reads and triggers.
// *replication.Endpoint implements it.
type Node interface {
	Node() string
	State() replication.State
	Reachable() bool
	Snapshot() replication.Snapshot
	CatchUp() replication.CatchUpStatus
	RequestCatchUp(ctx context.Context) error
	Reload(ctx context.Context) error
}

// Pinger checks relay connectivity. *relay.Transport implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server provides the HTTP status endpoints for one node.
type Server struct {
	node   Node
	relay  Pinger
	addr   string
	router chi.Router
	log    zerolog.Logger

	server   *http.Server
	listener net.Listener
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(node Node, relay Pinger, opts Options) *Server {
	s := &Server{
		node:  node,
		relay: relay,
		addr:  opts.Addr,
		log:   logger.Named(opts.Logger, "status"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.healthCheckHandler)
	r.Get("/state", s.stateHandler)
	r.Get("/samples", s.samplesHandler)
	r.Post("/catchup", s.catchUpHandler)
	r.Post("/reload", s.reloadHandler)

	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("status server stopped")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Node   string `json:"node"`
	State  string `json:"state"`
	Relay  string `json:"relay,omitempty"`
	Peer   string `json:"peer"`
	Error  string `json:"error,omitempty"`
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the endpoint is active and the relay answers, 503 otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Node:   s.node.Node(),
		State:  string(s.node.State()),
		Peer:   peerLabel(s.node.Reachable()),
	}

	if err := s.relay.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Relay = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response.Relay = "connected"

	if s.node.State() != replication.StateActive {
		response.Status = "unhealthy"
		response.Error = replication.ErrNotActive.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// StateResponse describes the endpoint for GET /state.
type StateResponse struct {
	Node      string                    `json:"node"`
	State     string                    `json:"state"`
	Reachable bool                      `json:"reachable"`
	Samples   int                       `json:"samples"`
	Cutoff    *time.Time                `json:"cutoff"`
	CatchUp   replication.CatchUpStatus `json:"catch_up"`
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.node.Snapshot()
	writeJSON(w, http.StatusOK, StateResponse{
		Node:      s.node.Node(),
		State:     string(s.node.State()),
		Reachable: s.node.Reachable(),
		Samples:   len(snap.Samples),
		Cutoff:    optionalTime(snap.Cutoff),
		CatchUp:   s.node.CatchUp(),
	})
}

// SamplesResponse is the body of GET /samples.
type SamplesResponse struct {
	Node    string                 `json:"node"`
	Cutoff  *time.Time             `json:"cutoff"`
	Samples []listing.ScoredSample `json:"samples"`
}

// samplesHandler serves the current snapshot, newest last. The optional
// category query parameter filters by derived category.
func (s *Server) samplesHandler(w http.ResponseWriter, r *http.Request) {
	filter := listing.Filter{Category: scoring.Category(r.URL.Query().Get("category"))}
	if err := filter.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.node.Snapshot()
	writeJSON(w, http.StatusOK, SamplesResponse{
		Node:    s.node.Node(),
		Cutoff:  optionalTime(snap.Cutoff),
		Samples: listing.ScoreAll(listing.Apply(snap.Samples, filter)),
	})
}

func (s *Server) catchUpHandler(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, "catchup", s.node.RequestCatchUp)
}

func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, "reload", s.node.Reload)
}

// trigger runs an endpoint operation and answers 202 on success.
func (s *Server) trigger(w http.ResponseWriter, r *http.Request, name string, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, replication.ErrNotActive) {
			code = http.StatusConflict
		}
		s.log.Warn().Err(err).Str("operation", name).Msg("status trigger failed")
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "operation": name})
}

func peerLabel(reachable bool) string {
	if reachable {
		return "reachable"
	}
	return "unreachable"
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
