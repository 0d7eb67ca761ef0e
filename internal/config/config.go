package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the agent configuration, read from YAML and overridable from env
type Config struct {
	Env         string         `yaml:"env" env:"SYNC_AGENT_ENV" env-default:"local"`
	StoragePath string         `yaml:"storage_path" env:"SYNC_AGENT_STORAGE_PATH" env-default:"./sync-agent.db"`
	Log         LogConfig      `yaml:"log"`
	Console     ConsoleConfig  `yaml:"console"`
	Backend     BackendConfig  `yaml:"backend"`
	Sync        SyncConfig     `yaml:"sync"`
	Network     NetworkConfig  `yaml:"network"`
	Liveness    LivenessConfig `yaml:"liveness"`
	Feed        FeedConfig     `yaml:"feed"`
	Server      ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"SYNC_AGENT_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"SYNC_AGENT_LOG_FORMAT" env-default:"json"`
}

// ConsoleConfig identifies this console installation to the backend
type ConsoleConfig struct {
	ID   string `yaml:"id" env:"SYNC_AGENT_CONSOLE_ID"`
	Name string `yaml:"name" env:"SYNC_AGENT_CONSOLE_NAME"`
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url" env:"SYNC_AGENT_BACKEND_URL" env-default:"http://localhost:3000"`
	APIKey  string `yaml:"api_key" env:"SYNC_AGENT_API_KEY"`
	Timeout int    `yaml:"timeout" env:"SYNC_AGENT_BACKEND_TIMEOUT" env-default:"30"` // seconds
}

type SyncConfig struct {
	FlushInterval int `yaml:"flush_interval" env:"SYNC_AGENT_FLUSH_INTERVAL" env-default:"60"` // seconds
}

// NetworkConfig controls how the agent decides whether the backend is reachable
type NetworkConfig struct {
	CheckInterval int `yaml:"check_interval" env:"SYNC_AGENT_NETWORK_CHECK_INTERVAL" env-default:"15"` // seconds
}

type LivenessConfig struct {
	CheckInterval   int `yaml:"check_interval" env:"SYNC_AGENT_LIVENESS_INTERVAL" env-default:"60"`            // seconds
	DeviceThreshold int `yaml:"device_threshold" env:"SYNC_AGENT_DEVICE_THRESHOLD" env-default:"15"`          // minutes
	AgentThreshold  int `yaml:"agent_threshold" env:"SYNC_AGENT_AGENT_THRESHOLD" env-default:"15"`            // minutes
	BatchSize       int `yaml:"batch_size" env:"SYNC_AGENT_HEARTBEAT_BATCH_SIZE" env-default:"50"`
	FlushInterval   int `yaml:"flush_interval" env:"SYNC_AGENT_HEARTBEAT_FLUSH_INTERVAL" env-default:"5"` // seconds
}

// FeedConfig configures the pushed heartbeat stream; disabled when URL is empty
type FeedConfig struct {
	URL            string `yaml:"url" env:"SYNC_AGENT_FEED_URL"`
	ReconnectDelay int    `yaml:"reconnect_delay" env:"SYNC_AGENT_FEED_RECONNECT_DELAY" env-default:"5"` // seconds
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled" env:"SYNC_AGENT_SERVER_ENABLED" env-default:"true"`
	Port    int  `yaml:"port" env:"SYNC_AGENT_SERVER_PORT" env-default:"8787"`
}

// LoadConfig reads the YAML file at path and applies env overrides
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the agent cannot run with
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Sync.FlushInterval <= 0 {
		return fmt.Errorf("sync.flush_interval must be positive, got %d", c.Sync.FlushInterval)
	}
	if c.Network.CheckInterval <= 0 {
		return fmt.Errorf("network.check_interval must be positive, got %d", c.Network.CheckInterval)
	}
	if c.Liveness.CheckInterval <= 0 {
		return fmt.Errorf("liveness.check_interval must be positive, got %d", c.Liveness.CheckInterval)
	}
	if c.Liveness.DeviceThreshold <= 0 || c.Liveness.AgentThreshold <= 0 {
		return fmt.Errorf("liveness thresholds must be positive")
	}
	if c.Liveness.BatchSize <= 0 {
		return fmt.Errorf("liveness.batch_size must be positive, got %d", c.Liveness.BatchSize)
	}
	if c.Liveness.FlushInterval <= 0 {
		return fmt.Errorf("liveness.flush_interval must be positive, got %d", c.Liveness.FlushInterval)
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
