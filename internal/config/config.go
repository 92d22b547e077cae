package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Poll    PollConfig
	Storage StorageConfig
	Log     LogConfig
	UI      UIConfig
	Sim     SimConfig
	Watch   WatchConfig
}

// ServerConfig locates the control-plane API the console talks to.
type ServerConfig struct {
	URL      string
	Timeout  string
	APIToken string
}

type PollConfig struct {
	Interval string
	LogLines int
	LogLevel string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type UIConfig struct {
	NoColor bool
}

// SimConfig configures the in-memory control plane served by `prepdeck sim`.
type SimConfig struct {
	Port int
}

type WatchConfig struct {
	ExtractImages      bool
	VisionDescriptions bool
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			URL:     "http://127.0.0.1:8000",
			Timeout: "30s",
		},
		Poll: PollConfig{
			Interval: "5s",
			LogLines: 120,
			LogLevel: "all",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Sim: SimConfig{
			Port: 8000,
		},
	}
}

// Load reads configuration from the JSON file backend, PREPDECK_* environment
// variables and the local secrets file.
//
// The backend lives at $XDG_CONFIG_HOME/prepdeck/config.json. Environment
// variables override file values. The control-plane API token is taken from
// PREPDECK_API_TOKEN, falling back to the secrets file.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), defaultSecretsFile())
}

// secretReader abstracts the secrets store for testing.
type secretReader interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, sr secretReader) (Config, error) {
	return loadWith(newFileBackend(path), sr)
}

func loadWith(b ConfigBackend, sr secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		if tok, err := sr.Get("prepdeck", "api_token"); err == nil && tok != "" {
			cfg.Server.APIToken = tok
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return fmt.Errorf("missing required config: server.url (env PREPDECK_SERVER_URL)")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	switch c.Poll.LogLevel {
	case "all", "warnings", "errors":
	default:
		return fmt.Errorf("invalid poll.log_level %q: want all, warnings or errors", c.Poll.LogLevel)
	}
	if c.Poll.LogLines <= 0 {
		return fmt.Errorf("invalid poll.log_lines %d: must be positive", c.Poll.LogLines)
	}
	return nil
}

// PollInterval parses Poll.Interval.
func (c Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll.interval %q: %w", c.Poll.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid poll.interval %q: must be positive", c.Poll.Interval)
	}
	return d, nil
}

// RequestTimeout parses Server.Timeout.
func (c Config) RequestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid server.timeout %q: %w", c.Server.Timeout, err)
	}
	return d, nil
}

// SetAPIToken stores the control-plane API token in the secrets file.
func SetAPIToken(token string) error {
	return defaultSecretsFile().Set("prepdeck", "api_token", token)
}
