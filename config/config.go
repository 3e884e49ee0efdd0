package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type GRPC struct {
	Addr string `yaml:"addr"` // пусто — gRPC не поднимается
}

type HTTP struct {
	Addr           string   `yaml:"addr"`
	ReadTimeout    string   `yaml:"readTimeout"`
	WriteTimeout   string   `yaml:"writeTimeout"`
	IdleTimeout    string   `yaml:"idleTimeout"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // live-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Storage struct {
	Driver string `yaml:"driver"` // memory|postgres
}

type Postgres struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"maxConns"`
	MinConns        int32  `yaml:"minConns"`
	MaxConnLifetime string `yaml:"maxConnLifetime"`
	MaxConnIdleTime string `yaml:"maxConnIdleTime"`
	ApplicationName string `yaml:"applicationName"`
}

// Redis backs the analytics store; without an address analytics stay in memory.
type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Retention string `yaml:"retention"`
}

// Auth: без publicKeyPath действует доверенный заголовок X-User-ID.
type Auth struct {
	PublicKeyPath string `yaml:"publicKeyPath"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	ClockSkew     string `yaml:"clockSkew"`
}

type SeedRoom struct {
	ID      string `yaml:"id"`
	OwnerID int64  `yaml:"ownerId"`
	Title   string `yaml:"title"`
	Active  bool   `yaml:"active"`
}

type Broker struct {
	SubscriberBuffer int        `yaml:"subscriberBuffer"`
	DanmuDisplay     string     `yaml:"danmuDisplay"`
	ChatMaxLength    int        `yaml:"chatMaxLength"`
	TeardownTimeout  string     `yaml:"teardownTimeout"`
	Rooms            []SeedRoom `yaml:"rooms"`
}

type Metrics struct {
	Interval string `yaml:"interval"`
	Window   string `yaml:"window"` // пусто — окно «с прошлого тика»
	Settle   string `yaml:"settle"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Auth     Auth     `yaml:"auth"`
	Broker   Broker   `yaml:"broker"`
	Metrics  Metrics  `yaml:"metrics"`
}

// LoadConfig reads CONFIG_PATH or ./config/config.yaml.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = StorageMemory
	case StorageMemory:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	if c.Auth.PublicKeyPath != "" && (c.Auth.Issuer == "" || c.Auth.Audience == "") {
		return errors.New("auth.issuer and auth.audience are required with auth.publicKeyPath")
	}

	for i, r := range c.Broker.Rooms {
		if r.ID == "" || r.OwnerID <= 0 {
			return fmt.Errorf("broker.rooms[%d]: id and ownerId are required", i)
		}
	}
	if c.Broker.SubscriberBuffer < 0 || c.Broker.ChatMaxLength < 0 {
		return errors.New("broker sizes must not be negative")
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "live-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Broker.SubscriberBuffer == 0 {
		c.Broker.SubscriberBuffer = 256
	}
	if c.Broker.ChatMaxLength == 0 {
		c.Broker.ChatMaxLength = 4000
	}
	return nil
}

func (h HTTP) ReadTimeoutOr() time.Duration { return parseDurationOr(10*time.Second, h.ReadTimeout) }
func (h HTTP) WriteTimeoutOr() time.Duration { return parseDurationOr(15*time.Second, h.WriteTimeout) }
func (h HTTP) IdleTimeoutOr() time.Duration { return parseDurationOr(60*time.Second, h.IdleTimeout) }

func (p Postgres) MaxConnLifetimeOr() time.Duration { return parseDurationOr(time.Hour, p.MaxConnLifetime) }
func (p Postgres) MaxConnIdleTimeOr() time.Duration { return parseDurationOr(30*time.Minute, p.MaxConnIdleTime) }

func (r Redis) RetentionOr() time.Duration { return parseDurationOr(time.Hour, r.Retention) }

func (a Auth) ClockSkewOr() time.Duration { return parseDurationOr(30*time.Second, a.ClockSkew) }

func (b Broker) DanmuDisplayOr() time.Duration { return parseDurationOr(5*time.Second, b.DanmuDisplay) }
func (b Broker) TeardownTimeoutOr() time.Duration { return parseDurationOr(5*time.Second, b.TeardownTimeout) }

func (m Metrics) IntervalOr() time.Duration { return parseDurationOr(5*time.Second, m.Interval) }

// WindowOr returns 0 when no fixed window is configured.
func (m Metrics) WindowOr() time.Duration { return parseDurationOr(0, m.Window) }

// SettleOr returns how far behind each tick a metrics window ends.
func (m Metrics) SettleOr() time.Duration { return parseDurationOr(0, m.Settle) }

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
