package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/tandem/internal/config"
	"github.com/dyluth/tandem/internal/logger"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/internal/replication"
	"github.com/dyluth/tandem/internal/store"
	"github.com/dyluth/tandem/pkg/relay"
	"github.com/spf13/cobra"
)

// relayCheckTimeout bounds the initial relay ping.
const relayCheckTimeout = 5 * time.Second

// loadConfig reads the file named by --config.
func loadConfig() (*config.TandemConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"configuration not loaded",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Create tandem.yml with at least: version, space, node, peer"},
		)
	}
	return cfg, nil
}

// newLogger builds the root logger. One-shot commands only log warnings
// unless --verbose is set.
func newLogger(cfg *config.TandemConfig, oneShot bool) logger.Logger {
	level := cfg.Log.Level
	if oneShot && !verbose {
		level = "warn"
	}
	return logger.New(logger.Options{
		Level:  level,
		Format: cfg.Log.Format,
		Node:   cfg.Node,
		Writer: os.Stderr,
	})
}

func openStore(cfg *config.TandemConfig, log logger.Logger) (*store.Store, error) {
	st, err := store.Open(store.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Logger:  log,
	})
	if err != nil {
		return nil, printer.ErrorWithContext(
			"sample store not opened",
			err.Error(),
			map[string]string{"Backend": cfg.Store.Backend, "Path": cfg.Store.Path},
			nil,
		)
	}
	return st, nil
}

// session is one activated endpoint with everything it owns.
type session struct {
	cfg       *config.TandemConfig
	log       logger.Logger
	store     *store.Store
	transport *relay.Transport
	endpoint  *replication.Endpoint
}

// openSession wires store, relay transport and endpoint together and
// activates the endpoint.
func openSession(ctx context.Context, cfg *config.TandemConfig, oneShot bool) (*session, error) {
	log := newLogger(cfg, oneShot)

	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		st.Close()
		return nil, err
	}

	tr, err := relay.NewTransport(redisOpts, relay.Options{
		Space:         cfg.Space,
		Node:          cfg.Node,
		Peer:          cfg.Peer,
		ProbeInterval: cfg.Relay.ProbeInterval,
		PresenceTTL:   cfg.Relay.PresenceTTL,
		PollInterval:  cfg.Relay.PollInterval,
		Logger:        log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, relayCheckTimeout)
	defer cancel()
	if err := tr.Ping(pingCtx); err != nil {
		tr.Close()
		st.Close()
		return nil, printer.ErrorWithContext(
			"relay unreachable",
			fmt.Sprintf("Could not reach the Redis relay: %v", err),
			map[string]string{"Relay": cfg.Relay.URL},
			[]string{
				"Start a local relay:\n  tandem relay up",
				"Point relay.url (or REDIS_URL) at a running Redis",
			},
		)
	}

	e, err := replication.NewEndpoint(replication.Options{
		Node:             cfg.Node,
		Transport:        tr,
		Store:            st,
		Logger:           log,
		PublishSnapshots: cfg.Replication.PublishSnapshots,
		QueueSize:        cfg.Replication.QueueSize,
	})
	if err != nil {
		tr.Close()
		st.Close()
		return nil, err
	}

	if err := e.Activate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to activate node %s: %w", cfg.Node, err)
	}

	return &session{cfg: cfg, log: log, store: st, transport: tr, endpoint: e}, nil
}

// Close deactivates the endpoint, which drains in-flight sends, then closes
// the store.
func (s *session) Close() error {
	err := s.endpoint.Close()
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// readingFlags registers the optional reading flags shared by record and score.
func readingFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("hrv", 0, "Heart-rate variability in milliseconds")
	cmd.Flags().Float64("heart-rate", 0, "Heart rate in beats per minute")
	cmd.Flags().Float64("sleep-hours", 0, "Hours slept")
}

// readingValues returns the reading flags, nil for those not given.
func readingValues(cmd *cobra.Command) (hrv, heartRate, sleepHours *float64) {
	get := func(name string) *float64 {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, err := cmd.Flags().GetFloat64(name)
		if err != nil {
			return nil
		}
		return &v
	}
	return get("hrv"), get("heart-rate"), get("sleep-hours")
}
