package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\n"))
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "live-service", cfg.Logging.Service)
	assert.Equal(t, "std", cfg.Logging.Backend)
	assert.Equal(t, 256, cfg.Broker.SubscriberBuffer)
	assert.Equal(t, 4000, cfg.Broker.ChatMaxLength)
	assert.Equal(t, 5*time.Second, cfg.Metrics.IntervalOr())
	assert.Zero(t, cfg.Metrics.WindowOr())
	assert.Equal(t, 5*time.Second, cfg.Broker.DanmuDisplayOr())
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeoutOr())
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no http addr":    "grpc:\n  addr: \":9090\"\n",
		"postgres no dsn": "http:\n  addr: \":8080\"\nstorage:\n  driver: postgres\n",
		"bad driver":      "http:\n  addr: \":8080\"\nstorage:\n  driver: mongo\n",
		"auth no issuer":  "http:\n  addr: \":8080\"\nauth:\n  publicKeyPath: /k.pem\n",
		"room no owner":   "http:\n  addr: \":8080\"\nbroker:\n  rooms:\n    - id: r\n",
		"not yaml":        "http: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Len(t, cfg.Broker.Rooms, 1)
	assert.Equal(t, "demo", cfg.Broker.Rooms[0].ID)
	assert.True(t, cfg.Broker.Rooms[0].Active)
	assert.Equal(t, time.Hour, cfg.Postgres.MaxConnLifetimeOr())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":1\"\nmetrics:\n  window: 60s\n  settle: 250ms\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":1", cfg.HTTP.Addr)
	assert.Equal(t, time.Minute, cfg.Metrics.WindowOr())
	assert.Equal(t, 250*time.Millisecond, cfg.Metrics.SettleOr())
}
