package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `version: "1.0"
space: household
node: watch
peer: phone
`

func noEnv(string) (string, bool) { return "", false }

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, DefaultFilename)

	validConfig := `version: "1.0"
space: household
node: watch
peer: phone
relay:
  url: redis://relay.local:6380/2
  probe_interval: 1s
  poll_interval: 250ms
store:
  backend: bolt
  path: /var/lib/tandem/watch.db
replication:
  publish_snapshots: true
status:
  addr: 127.0.0.1:8088
  allowed_origins: ["http://localhost:3000"]
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(validConfig), 0644))

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "household", config.Space)
	assert.Equal(t, "watch", config.Node)
	assert.Equal(t, "phone", config.Peer)
	assert.Equal(t, "redis://relay.local:6380/2", config.Relay.URL)
	assert.Equal(t, time.Second, config.Relay.ProbeInterval)
	assert.Equal(t, 250*time.Millisecond, config.Relay.PollInterval)
	assert.Equal(t, 3*time.Second, config.Relay.PresenceTTL, "ttl defaults to three probes")
	assert.Equal(t, "bolt", config.Store.Backend)
	assert.Equal(t, "/var/lib/tandem/watch.db", config.Store.Path)
	assert.True(t, config.Replication.PublishSnapshots)
	assert.True(t, config.StatusEnabled())
	assert.Equal(t, []string{"http://localhost:3000"}, config.Status.AllowedOrigins)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)

	opts, err := config.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "relay.local:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestLoad_RelativeStorePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, DefaultFilename)
	require.NoError(t, os.WriteFile(configPath, []byte(minimalConfig), 0644))

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, ".tandem", "watch"), config.Store.Path)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/tandem.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestParse_InvalidYAML(t *testing.T) {
	invalidYAML := `version: "1.0"
node:
  - this is invalid
    yaml syntax
`
	config, err := Parse([]byte(invalidYAML), noEnv)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(minimalConfig+"agents: {}\n"), noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_Defaults(t *testing.T) {
	config, err := Parse([]byte(minimalConfig), noEnv)
	require.NoError(t, err)

	assert.Equal(t, DefaultRedisURL, config.Relay.URL)
	assert.Equal(t, DefaultProbeInterval, config.Relay.ProbeInterval)
	assert.Equal(t, DefaultPollInterval, config.Relay.PollInterval)
	assert.Equal(t, 3*DefaultProbeInterval, config.Relay.PresenceTTL)
	assert.Equal(t, DefaultRelayImage, config.Relay.Image)
	assert.Equal(t, "file", config.Store.Backend)
	assert.Equal(t, filepath.Join(".tandem", "watch"), config.Store.Path)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "console", config.Log.Format)
	assert.False(t, config.Replication.PublishSnapshots)
	assert.False(t, config.StatusEnabled())
}

func TestDefaultStorePath(t *testing.T) {
	assert.Equal(t, filepath.Join(".tandem", "phone"), DefaultStorePath("file", "phone"))
	assert.Equal(t, filepath.Join(".tandem", "phone", "samples.db"), DefaultStorePath("bolt", "phone"))
	assert.Equal(t, filepath.Join(".tandem", "phone", "samples.sqlite"), DefaultStorePath("sqlite", "phone"))
}

func TestParse_EnvOverrides(t *testing.T) {
	config, err := Parse([]byte(minimalConfig), env(map[string]string{
		EnvRedisURL: "redis://elsewhere:6379/0",
		EnvNode:     "phone",
		EnvPeer:     "watch",
	}))
	require.NoError(t, err)

	assert.Equal(t, "redis://elsewhere:6379/0", config.Relay.URL)
	assert.Equal(t, "phone", config.Node)
	assert.Equal(t, "watch", config.Peer)
	assert.Equal(t, filepath.Join(".tandem", "phone"), config.Store.Path, "default path follows the overridden node")
}

func TestParse_EnvOnly(t *testing.T) {
	config, err := Parse([]byte(`version: "1.0"
space: household
`), env(map[string]string{EnvNode: "watch", EnvPeer: "phone"}))
	require.NoError(t, err)
	assert.Equal(t, "watch", config.Node)
}

func TestParse_EmptyEnvValueIgnored(t *testing.T) {
	config, err := Parse([]byte(minimalConfig), env(map[string]string{EnvNode: ""}))
	require.NoError(t, err)
	assert.Equal(t, "watch", config.Node)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unsupported version",
			yaml:    "version: \"2.0\"\nspace: s\nnode: a\npeer: b\n",
			wantErr: "unsupported version: 2.0",
		},
		{
			name:    "missing space",
			yaml:    "version: \"1.0\"\nnode: a\npeer: b\n",
			wantErr: "space is required",
		},
		{
			name:    "missing peer",
			yaml:    "version: \"1.0\"\nspace: s\nnode: a\n",
			wantErr: "peer is required",
		},
		{
			name:    "node equals peer",
			yaml:    "version: \"1.0\"\nspace: s\nnode: a\npeer: a\n",
			wantErr: "node must differ from peer",
		},
		{
			name:    "invalid node name",
			yaml:    "version: \"1.0\"\nspace: s\nnode: My Watch\npeer: b\n",
			wantErr: "node: invalid name",
		},
		{
			name:    "unknown store backend",
			yaml:    minimalConfig + "store:\n  backend: etcd\n  path: /tmp/x\n",
			wantErr: "store.backend: invalid value \"etcd\"",
		},
		{
			name:    "unknown log level",
			yaml:    minimalConfig + "log:\n  level: loud\n",
			wantErr: "log.level: invalid value \"loud\"",
		},
		{
			name:    "bad status address",
			yaml:    minimalConfig + "status:\n  addr: not-an-address\n",
			wantErr: "status.addr",
		},
		{
			name:    "ttl not longer than probe",
			yaml:    minimalConfig + "relay:\n  probe_interval: 5s\n  presence_ttl: 5s\n",
			wantErr: "presence_ttl (5s) must be longer than relay.probe_interval (5s)",
		},
		{
			name:    "bad redis url",
			yaml:    minimalConfig + "relay:\n  url: http://nope\n",
			wantErr: "relay.url is not a valid Redis URL",
		},
		{
			name:    "negative poll interval",
			yaml:    minimalConfig + "relay:\n  poll_interval: -1s\n",
			wantErr: "relay.poll_interval",
		},
		{
			name:    "relay port out of range",
			yaml:    minimalConfig + "relay:\n  port: 70000\n",
			wantErr: "relay.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Parse([]byte(tt.yaml), noEnv)
			require.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
