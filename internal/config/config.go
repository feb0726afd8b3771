package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is the config file looked up in the working directory.
const DefaultFilename = "tandem.yml"

// Environment overrides, applied after the file is parsed.
const (
	EnvRedisURL = "REDIS_URL"
	EnvNode     = "TANDEM_NODE"
	EnvPeer     = "TANDEM_PEER"
)

// Defaults applied to fields left empty.
const (
	DefaultRedisURL      = "redis://localhost:6379/0"
	DefaultRelayImage    = "redis:7-alpine"
	DefaultStoreBackend  = "file"
	DefaultStoreRoot     = ".tandem"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultProbeInterval = 2 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
)

// TandemConfig represents the top-level tandem.yml configuration
type TandemConfig struct {
	Version     string            `yaml:"version" validate:"required,eq=1.0"`
	Space       string            `yaml:"space" validate:"required,name"`
	Node        string            `yaml:"node" validate:"required,name,nefield=Peer"`
	Peer        string            `yaml:"peer" validate:"required,name"`
	Relay       RelayConfig       `yaml:"relay"`
	Store       StoreConfig       `yaml:"store"`
	Replication ReplicationConfig `yaml:"replication"`
	Status      StatusConfig      `yaml:"status"`
	Log         LogConfig         `yaml:"log"`
}

// RelayConfig locates the Redis relay and tunes the transport's timings
type RelayConfig struct {
	URL           string        `yaml:"url" validate:"required"`
	ProbeInterval time.Duration `yaml:"probe_interval" validate:"gte=0"`
	PollInterval  time.Duration `yaml:"poll_interval" validate:"gte=0"`
	PresenceTTL   time.Duration `yaml:"presence_ttl" validate:"gte=0"`

	// Used by `tandem relay up` only
	Image string `yaml:"image,omitempty"`
	Port  int    `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
}

// StoreConfig selects the sample store backend
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file bolt sqlite"`
	Path    string `yaml:"path" validate:"required"`
}

// ReplicationConfig tunes the replication endpoint
type ReplicationConfig struct {
	PublishSnapshots bool `yaml:"publish_snapshots"`
	QueueSize        int  `yaml:"queue_size,omitempty" validate:"gte=0"`
}

// StatusConfig enables the HTTP status server when Addr is set
type StatusConfig struct {
	Addr           string   `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" validate:"dive,required"`
}

// LogConfig configures the root logger
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production.
func (c *TandemConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Relay.URL = v
	}
	if v, ok := lookup(EnvNode); ok && v != "" {
		c.Node = v
	}
	if v, ok := lookup(EnvPeer); ok && v != "" {
		c.Peer = v
	}
}

// ApplyDefaults fills every field left empty
func (c *TandemConfig) ApplyDefaults() {
	if c.Relay.URL == "" {
		c.Relay.URL = DefaultRedisURL
	}
	if c.Relay.ProbeInterval == 0 {
		c.Relay.ProbeInterval = DefaultProbeInterval
	}
	if c.Relay.PollInterval == 0 {
		c.Relay.PollInterval = DefaultPollInterval
	}
	if c.Relay.PresenceTTL == 0 {
		c.Relay.PresenceTTL = 3 * c.Relay.ProbeInterval
	}
	if c.Relay.Image == "" {
		c.Relay.Image = DefaultRelayImage
	}

	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.Path == "" && c.Node != "" {
		c.Store.Path = DefaultStorePath(c.Store.Backend, c.Node)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// DefaultStorePath is where a node keeps its store when no path is configured
func DefaultStorePath(backend, node string) string {
	dir := filepath.Join(DefaultStoreRoot, node)
	switch backend {
	case "bolt":
		return filepath.Join(dir, "samples.db")
	case "sqlite":
		return filepath.Join(dir, "samples.sqlite")
	default:
		return dir
	}
}

// Validate performs strict validation on the configuration.
// Defaults must already be applied.
func (c *TandemConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs[0])
		}
		return err
	}

	if c.Relay.PresenceTTL <= c.Relay.ProbeInterval {
		return fmt.Errorf("relay.presence_ttl (%s) must be longer than relay.probe_interval (%s)",
			c.Relay.PresenceTTL, c.Relay.ProbeInterval)
	}

	if _, err := redis.ParseURL(c.Relay.URL); err != nil {
		return fmt.Errorf("relay.url is not a valid Redis URL: %w", err)
	}

	return nil
}

// RedisOptions parses the relay URL
func (c *TandemConfig) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.Relay.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	return opts, nil
}

// StatusEnabled reports whether the HTTP status server should run
func (c *TandemConfig) StatusEnabled() bool {
	return c.Status.Addr != ""
}

// Load reads tandem.yml from path, applies environment overrides and defaults,
// and validates the result. A relative store path is taken relative to the
// directory holding the config file.
func Load(path string) (*TandemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	config, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(config.Store.Path) {
		config.Store.Path = filepath.Join(filepath.Dir(path), config.Store.Path)
	}
	return config, nil
}

// Parse is Load without the file read
func Parse(data []byte, lookup func(string) (string, bool)) (*TandemConfig, error) {
	var config TandemConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if lookup != nil {
		config.ApplyEnv(lookup)
	}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// describe turns a validator failure into a message naming the yaml path
func describe(fe validator.FieldError) error {
	path := fe.Namespace()
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", path)
	case "name":
		return fmt.Errorf("%s: invalid name %q (lowercase letters, digits, '-' and '_' only)", path, fe.Value())
	case "nefield":
		return fmt.Errorf("%s must differ from peer (both are %q)", path, fe.Value())
	case "oneof":
		return fmt.Errorf("%s: invalid value %q (must be one of: %s)", path, fe.Value(), fe.Param())
	case "hostname_port":
		return fmt.Errorf("%s: %q is not a host:port address", path, fe.Value())
	default:
		return fmt.Errorf("%s: failed %s=%s validation (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
}
