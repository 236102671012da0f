package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Queue     QueueConfig     `yaml:"queue"`
	Console   ConsoleConfig   `yaml:"console"`
	Redis     RedisConfig     `yaml:"redis"`
	PubNub    PubNubConfig    `yaml:"pubnub"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how the operator surface is served: "http" or
// "stdio".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// ReasonConfig maps a declared reason code to a tier.
type ReasonConfig struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label"`
	Tier  int    `yaml:"tier"`
}

type QueueConfig struct {
	MinTier      int            `yaml:"min_tier"`
	MaxTier      int            `yaml:"max_tier"`
	FallbackTier int            `yaml:"fallback_tier"`
	MaxActive    int            `yaml:"max_active"`
	Reasons      []ReasonConfig `yaml:"reasons"`
}

// ConsoleConfig names the operator recorded for actions taken over stdio,
// where there is no bearer token to resolve.
type ConsoleConfig struct {
	Operator string `yaml:"operator"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	LockKey      string        `yaml:"lock_key"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	LockAttempts int           `yaml:"lock_attempts"`
}

type PubNubConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PublishKey    string `yaml:"publish_key"`
	SubscribeKey  string `yaml:"subscribe_key"`
	UserID        string `yaml:"user_id"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		DB: DBConfig{
			Path: "admission.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Queue: QueueConfig{
			MinTier:      1,
			MaxTier:      999,
			FallbackTier: 999,
			Reasons: []ReasonConfig{
				{Code: "veteran", Label: "Veteran", Tier: 1},
				{Code: "resident", Label: "Resident", Tier: 2},
				{Code: "invited", Label: "Invited by a member", Tier: 3},
				{Code: "general", Label: "General interest", Tier: 4},
			},
		},
		Console: ConsoleConfig{
			Operator: "console",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			LockKey:      "admission:queue:lock",
			LockTTL:      5 * time.Second,
			LockAttempts: 20,
		},
		PubNub: PubNubConfig{
			UserID:        "admission-server",
			ChannelPrefix: "member-",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "admission",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("ADMISSION_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("ADMISSION_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("ADMISSION_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if mode := os.Getenv("ADMISSION_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if err := envBool("ADMISSION_AUTH_ENABLED", &cfg.Auth.Enabled); err != nil {
		return err
	}
	if dbPath := os.Getenv("ADMISSION_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("ADMISSION_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("ADMISSION_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if err := envInt("ADMISSION_QUEUE_MAX_ACTIVE", &cfg.Queue.MaxActive); err != nil {
		return err
	}
	if op := os.Getenv("ADMISSION_CONSOLE_OPERATOR"); op != "" {
		cfg.Console.Operator = op
	}
	if addr := os.Getenv("ADMISSION_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("ADMISSION_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if pub := os.Getenv("ADMISSION_PUBNUB_PUBLISH_KEY"); pub != "" {
		cfg.PubNub.PublishKey = pub
		cfg.PubNub.Enabled = true
	}
	if sub := os.Getenv("ADMISSION_PUBNUB_SUBSCRIBE_KEY"); sub != "" {
		cfg.PubNub.SubscribeKey = sub
	}
	if err := envBool("ADMISSION_METRICS_ENABLED", &cfg.Metrics.Enabled); err != nil {
		return err
	}
	return nil
}

// Validate checks settings that would otherwise fail late at startup.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be http or stdio, got %q", c.Transport.Mode))
	}

	q := c.Queue
	if q.MinTier < 1 || q.MaxTier < q.MinTier {
		errs = append(errs, fmt.Errorf("queue tier range [%d,%d] is invalid", q.MinTier, q.MaxTier))
	}
	if q.FallbackTier < q.MinTier || q.FallbackTier > q.MaxTier {
		errs = append(errs, fmt.Errorf("queue.fallback_tier %d outside [%d,%d]", q.FallbackTier, q.MinTier, q.MaxTier))
	}
	if q.MaxActive < 0 {
		errs = append(errs, fmt.Errorf("queue.max_active must not be negative"))
	}
	seen := map[string]bool{}
	for _, r := range q.Reasons {
		code := strings.TrimSpace(r.Code)
		if code == "" {
			errs = append(errs, fmt.Errorf("queue.reasons: empty code"))
			continue
		}
		if seen[code] {
			errs = append(errs, fmt.Errorf("queue.reasons: duplicate code %q", code))
		}
		seen[code] = true
		if r.Tier < q.MinTier || r.Tier > q.MaxTier {
			errs = append(errs, fmt.Errorf("queue.reasons: %q tier %d outside [%d,%d]", code, r.Tier, q.MinTier, q.MaxTier))
		}
	}

	if c.Transport.Mode == "stdio" && strings.TrimSpace(c.Console.Operator) == "" {
		errs = append(errs, fmt.Errorf("console.operator is required in stdio mode"))
	}
	if c.PubNub.Enabled && (c.PubNub.PublishKey == "" || c.PubNub.SubscribeKey == "") {
		errs = append(errs, fmt.Errorf("pubnub requires publish_key and subscribe_key"))
	}
	return errors.Join(errs...)
}

func envInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func envBool(key string, dst *bool) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
