// Package config loads application settings from defaults, an optional YAML
// file, a .env file and SWELL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	LiveClient LiveClientConfig `yaml:"live_client"`
	Presence   PresenceConfig   `yaml:"presence"`
	LCU        LCUConfig        `yaml:"lcu"`
	Store      StoreConfig      `yaml:"store"`
	Media      MediaConfig      `yaml:"media"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// BackendConfig describes the remote join service
type BackendConfig struct {
	URL         string        `yaml:"url"`
	WakeTimeout time.Duration `yaml:"wake_timeout"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LiveClientConfig describes the local in-game API
type LiveClientConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// PresenceConfig tunes room derivation
type PresenceConfig struct {
	GraceWindow time.Duration `yaml:"grace_window"`
	RoomPrefix  string        `yaml:"room_prefix"`
}

// LCUConfig controls the optional League client gameflow watcher
type LCUConfig struct {
	Enabled      bool   `yaml:"enabled"`
	LockfilePath string `yaml:"lockfile_path"`
}

// StoreConfig locates the persisted state database
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MediaConfig tunes the webview media bridge
type MediaConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// LogConfig mirrors logger.Config
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the loopback prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend: BackendConfig{
			URL:         DefaultBackendURL,
			WakeTimeout: 8 * time.Second,
			JoinTimeout: 20 * time.Second,
			MaxAttempts: 3,
		},
		LiveClient: LiveClientConfig{
			BaseURL:      DefaultLiveClientURL,
			Timeout:      3 * time.Second,
			PollInterval: 2 * time.Second,
		},
		Presence: PresenceConfig{
			GraceWindow: 15 * time.Second,
			RoomPrefix:  "lolvoice",
		},
		LCU: LCUConfig{
			Enabled: true,
		},
		Media: MediaConfig{
			CallTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Load builds the configuration. An empty or missing path skips the YAML step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables win over it
	for _, envPath := range []string{".env", "../.env"} {
		if err := godotenv.Load(envPath); err == nil {
			break
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the app cannot work with
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required")
	}
	if c.LiveClient.BaseURL == "" {
		return errors.New("live client base url is required")
	}
	if c.LiveClient.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %s", c.LiveClient.PollInterval)
	}
	if c.Presence.GraceWindow <= 0 {
		return fmt.Errorf("invalid grace window %s", c.Presence.GraceWindow)
	}
	if c.Presence.RoomPrefix == "" {
		return errors.New("room prefix is required")
	}
	if c.Backend.MaxAttempts <= 0 {
		return fmt.Errorf("invalid max attempts %d", c.Backend.MaxAttempts)
	}
	return nil
}
