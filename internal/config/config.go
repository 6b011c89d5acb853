// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ASSISTANT_AI_API_KEY.
const EnvPrefix = "ASSISTANT_"

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"` // enable sampling in prod
}

type AIConfig struct {
	Provider        string        `yaml:"provider" env:"PROVIDER"` // openai|gemini|noop
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	Model           string        `yaml:"model" env:"MODEL"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"` // fallback when a request carries none
	MaxTokens       int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ConcurrentLimit int           `yaml:"concurrent_limit" env:"CONCURRENT_LIMIT"` // max concurrent AI calls
	NoopDelay       time.Duration `yaml:"noop_delay" env:"NOOP_DELAY"`
}

type PersonaConfig struct {
	ProductsFile    string `yaml:"products_file" env:"PRODUCTS_FILE"`       // empty = embedded catalog
	DefinitionsFile string `yaml:"definitions_file" env:"DEFINITIONS_FILE"` // optional overrides
}

type SessionConfig struct {
	Store          string        `yaml:"store" env:"STORE"` // memory|redis|postgres
	MaxPerOwner    int           `yaml:"max_per_owner" env:"MAX_PER_OWNER"`
	PersistTimeout time.Duration `yaml:"persist_timeout" env:"PERSIST_TIMEOUT"`
	DefaultMode    string        `yaml:"default_mode" env:"DEFAULT_MODE"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"URL"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url" env:"URL"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"MIGRATE_ON_START"`
}

type SecurityConfig struct {
	EncryptionKey string        `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	CookieName    string        `yaml:"cookie_name" env:"COOKIE_NAME"`
	SecureCookie  bool          `yaml:"secure_cookie" env:"SECURE_COOKIE"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers" env:"WORKERS"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	AI       AIConfig       `yaml:"ai" envPrefix:"AI_"`
	Persona  PersonaConfig  `yaml:"persona" envPrefix:"PERSONA_"`
	Session  SessionConfig  `yaml:"session" envPrefix:"SESSION_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Security SecurityConfig `yaml:"security" envPrefix:"SECURITY_"`
	Worker   WorkerConfig   `yaml:"worker" envPrefix:"WORKER_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (skipped when path is empty), applies
// ASSISTANT_* environment overrides, then defaults and validation.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
		if cfg.Runtime.Dev && cfg.AI.APIKey == "" {
			cfg.AI.Provider = "noop"
		}
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.PersistTimeout <= 0 {
		cfg.Session.PersistTimeout = 3 * time.Second
	}
	if cfg.Session.DefaultMode == "" {
		cfg.Session.DefaultMode = "product"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Security.CookieName == "" {
		cfg.Security.CookieName = "assistant_client"
	}
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 30 * 24 * time.Hour
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 8
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "gemini", "noop":
	default:
		return fmt.Errorf("ai.provider %q is not one of openai|gemini|noop", c.AI.Provider)
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for session.store=redis")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for session.store=postgres")
		}
	default:
		return fmt.Errorf("session.store %q is not one of memory|redis|postgres", c.Session.Store)
	}
	if k := len(c.Security.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", k)
	}
	if c.Security.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("security.jwt_secret is required outside dev mode")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
