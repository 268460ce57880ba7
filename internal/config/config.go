// Package config loads and validates the control plane's configuration from
// a YAML file overlaid with environment variables, in the teacher's
// hand-rolled validate-after-load style.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration object assembled by Load.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Worker    WorkerConfig    `yaml:"worker"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Streaming StreamingConfig `yaml:"streaming"`
	Providers ProvidersConfig `yaml:"providers"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Retention RetentionConfig `yaml:"retention"`
	API       APIConfig       `yaml:"api"`
	Redis     RedisConfig     `yaml:"redis"`
}

// DatabaseConfig configures the pgx connection pool backing internal/store.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// WorkerConfig configures the Worker Runtime.
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ReclaimMultiplier int           `yaml:"reclaim_multiplier"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
	BaseRetryDelay    time.Duration `yaml:"base_retry_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
}

// BufferConfig configures the Event Buffer's on-disk layout.
type BufferConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// StreamingConfig configures the Streaming Hub's bounded replay buffer.
type StreamingConfig struct {
	ReplayBufferSize int `yaml:"replay_buffer_size"`
}

// ProvidersConfig configures the breaker defaults shared by every
// ProviderEntry unless overridden per-provider.
type ProvidersConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	HalfOpenMax      int           `yaml:"half_open_max"`
	AcquireTimeout   time.Duration `yaml:"acquire_timeout"`
}

// ChannelsConfig configures the Channel Supervisor's probe cadence.
type ChannelsConfig struct {
	ProbeInterval           time.Duration `yaml:"probe_interval"`
	StaleAfter              time.Duration `yaml:"stale_after"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitOpenDuration     time.Duration `yaml:"circuit_open_duration"`

	SlackBotToken string `yaml:"-"`
	SlackChannel  string `yaml:"-"`
}

// RetentionConfig configures the cron-driven cleanup sweeps.
type RetentionConfig struct {
	SessionRetentionDays int           `yaml:"session_retention_days"`
	EventTTL             time.Duration `yaml:"event_ttl"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
}

// APIConfig configures the Request Router.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	CSRFSecret     string `yaml:"-"`
	SessionCookie  string `yaml:"session_cookie"`
}

// RedisConfig enables the optional distributed WIP-limit / streaming mirror
// path. Empty Addr means Redis is not used and everything falls back to
// in-process state.
type RedisConfig struct {
	Addr string `yaml:"-"`
}

// Default returns a Config populated with the teacher's defaults, to be
// overridden by file and environment values.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, SSLMode: "disable",
			MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency: 5, PollInterval: 2 * time.Second,
			HeartbeatInterval: 15 * time.Second, ReclaimMultiplier: 2,
			ShutdownGrace: 30 * time.Second,
			BaseRetryDelay: time.Second, MaxRetryDelay: 5 * time.Minute,
		},
		Buffer:    BufferConfig{BaseDir: "./data/buffer"},
		Streaming: StreamingConfig{ReplayBufferSize: 256},
		Providers: ProvidersConfig{
			FailureThreshold: 5, OpenDuration: 30 * time.Second,
			HalfOpenMax: 1, AcquireTimeout: 10 * time.Second,
		},
		Channels: ChannelsConfig{
			ProbeInterval: 15 * time.Second, StaleAfter: 45 * time.Second,
			CircuitFailureThreshold: 5, CircuitOpenDuration: 60 * time.Second,
		},
		Retention: RetentionConfig{
			SessionRetentionDays: 30, EventTTL: 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		API: APIConfig{
			ListenAddr: ":8080", MaxBodyBytes: 2 * 1024 * 1024,
			SessionCookie: "cp_session",
		},
	}
}

// Load reads .env (if present), then a YAML file at path (if non-empty and
// present), then overlays environment variables, and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverlay(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("SHUTDOWN_GRACE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.ShutdownGrace = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = n
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("BUFFER_BASE_DIR"); v != "" {
		cfg.Buffer.BaseDir = v
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	cfg.API.CSRFSecret = os.Getenv("CSRF_SECRET")
	cfg.Channels.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.Channels.SlackChannel = os.Getenv("SLACK_CHANNEL")
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
}

// ConfigError aggregates one or more field validation failures.
type ConfigError struct {
	Failures []string
}

func (e *ConfigError) Error() string {
	return "config: invalid configuration: " + strings.Join(e.Failures, "; ")
}

// Validate checks field-level invariants and aggregates every failure into a
// single ConfigError, in the teacher's per-struct Validate() style.
func (c Config) Validate() error {
	var failures []string

	if c.Worker.Concurrency < 1 {
		failures = append(failures, "worker.concurrency must be >= 1")
	}
	if c.Worker.ReclaimMultiplier < 2 {
		failures = append(failures, "worker.reclaim_multiplier must be >= 2 (spec: stale heartbeat reclaim at 2x lease)")
	}
	if c.Buffer.BaseDir == "" {
		failures = append(failures, "buffer.base_dir must be set")
	}
	if c.Streaming.ReplayBufferSize < 1 {
		failures = append(failures, "streaming.replay_buffer_size must be >= 1")
	}
	if c.Providers.HalfOpenMax < 1 {
		failures = append(failures, "providers.half_open_max must be >= 1")
	}
	if c.Channels.CircuitFailureThreshold < 1 {
		failures = append(failures, "channels.circuit_failure_threshold must be >= 1")
	}
	if c.API.MaxBodyBytes < 1 {
		failures = append(failures, "api.max_body_bytes must be >= 1")
	}

	if len(failures) > 0 {
		return &ConfigError{Failures: failures}
	}
	return nil
}

// ParseAllowedUsers parses a comma-separated list of positive integer user
// ids, trimming whitespace and ignoring empty segments. Matches the
// TELEGRAM_ALLOWED_USERS contract: invalid/negative/zero values fail.
func ParseAllowedUsers(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid allowed user id %q: %w", part, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("config: allowed user id must be positive, got %d", n)
		}
		ids = append(ids, n)
	}
	return ids, nil
}
