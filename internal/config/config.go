// Package config is the application configuration: the core bot settings
// plus database, provider, session, event and ops sections.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/esimbot/core/config"
	coredatabase "github.com/m3rciful/esimbot/core/database"
	"github.com/m3rciful/esimbot/internal/esim"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// ESIMConfig configures the provisioning API client and detail polling.
type ESIMConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL"`
	AccessCode     string        `yaml:"access_code" envconfig:"ACCESS_CODE"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	PollAttempts   int           `yaml:"poll_attempts" envconfig:"POLL_ATTEMPTS"`
	PollInterval   time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
}

// SessionConfig selects where purchase sessions live.
type SessionConfig struct {
	Backend  string        `yaml:"backend" envconfig:"BACKEND"`
	RedisURL string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	Prefix   string        `yaml:"prefix" envconfig:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL"`
}

// KafkaConfig enables order events when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

// OpsConfig enables the probe endpoint when Listen is set.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"LISTEN"`
}

// AssetsConfig points at optional static files.
type AssetsConfig struct {
	// RegionImages is a directory with the images named in the catalog.
	RegionImages string `yaml:"region_images" envconfig:"REGION_IMAGES"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	ESIM     ESIMConfig          `yaml:"esim" envconfig:"ESIM"`
	Session  SessionConfig       `yaml:"session" envconfig:"SESSION"`
	Kafka    KafkaConfig         `yaml:"kafka" envconfig:"KAFKA"`
	Ops      OpsConfig           `yaml:"ops" envconfig:"OPS"`
	Assets   AssetsConfig        `yaml:"assets" envconfig:"ASSETS"`
}

// CoreConfig exposes the embedded core settings.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required keys and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Database.Host) == "" {
		return fmt.Errorf("database.host is required")
	}
	if strings.TrimSpace(cfg.Database.Name) == "" {
		return fmt.Errorf("database.name is required")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}

	e := &cfg.ESIM
	if strings.TrimSpace(e.AccessCode) == "" {
		return fmt.Errorf("esim.access_code is required")
	}
	if e.BaseURL == "" {
		e.BaseURL = esim.DefaultBaseURL
	}
	e.BaseURL = strings.TrimRight(e.BaseURL, "/")
	if e.RequestTimeout <= 0 {
		e.RequestTimeout = 15 * time.Second
	}
	if e.PollAttempts < 0 {
		return fmt.Errorf("esim.poll_attempts must be >= 0")
	}
	if e.PollAttempts == 0 {
		e.PollAttempts = 5
	}
	if e.PollInterval < 0 {
		return fmt.Errorf("esim.poll_interval must be >= 0")
	}
	if e.PollInterval == 0 {
		e.PollInterval = 2 * time.Second
	}

	s := &cfg.Session
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "", SessionMemory:
		s.Backend = SessionMemory
	case SessionRedis:
		if strings.TrimSpace(s.RedisURL) == "" {
			return fmt.Errorf("session.redis_url is required when session.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", s.Backend)
	}
	if s.Prefix == "" {
		s.Prefix = "esimbot:session:"
	}
	if s.TTL < 0 {
		return fmt.Errorf("session.ttl must be >= 0")
	}
	if s.TTL == 0 {
		s.TTL = 24 * time.Hour
	}

	brokers := cfg.Kafka.Brokers[:0]
	for _, b := range cfg.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Kafka.Brokers = brokers
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "esim.orders"
	}
	return nil
}
