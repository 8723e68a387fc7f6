// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollConfig struct {
	TaskInterval    time.Duration `yaml:"task_interval"`
	TaskMaxAttempts int           `yaml:"task_max_attempts"`
	InsightInterval time.Duration `yaml:"insight_interval"`
	MaxLoops        int           `yaml:"max_loops"` // poll loops running at once
}

type ConsoleConfig struct {
	Port int `yaml:"port"`
	// QuietSlots are status slots the report poller does not overwrite on every tick.
	QuietSlots []string `yaml:"quiet_slots"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL       string        `yaml:"url"` // empty keeps state in memory
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	API     APIConfig     `yaml:"api"`
	Poll    PollConfig    `yaml:"poll"`
	Console ConsoleConfig `yaml:"console"`
	Log     LogConfig     `yaml:"log"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when MBTI_API_URL is set),
// overlays a .env file and environment variables, then applies defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && os.Getenv("MBTI_API_URL") != "":
		// environment-only setup
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MBTI_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("MBTI_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("MBTI_CONSOLE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Console.Port = port
		}
	}
	if v := os.Getenv("MBTI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.Poll.TaskInterval <= 0 {
		cfg.Poll.TaskInterval = 5 * time.Second
	}
	if cfg.Poll.TaskMaxAttempts <= 0 {
		cfg.Poll.TaskMaxAttempts = 60
	}
	if cfg.Poll.InsightInterval <= 0 {
		cfg.Poll.InsightInterval = 2 * time.Second
	}
	if cfg.Poll.MaxLoops <= 0 {
		cfg.Poll.MaxLoops = 64
	}
	if cfg.Console.Port == 0 {
		cfg.Console.Port = 8090
	}
	if cfg.Console.QuietSlots == nil {
		cfg.Console.QuietSlots = []string{"dualStatus"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "mbti_console"
	}
}

// Validate checks the values the console cannot run without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required (or set MBTI_API_URL)")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.Console.Port < 0 || c.Console.Port > 65535 {
		return fmt.Errorf("console.port out of range: %d", c.Console.Port)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}
