// Package config provides YAML-based bootstrap configuration for the Airminal
// daemon. Runtime settings (endpoint, platform toggles, automations) live in
// the database; see package settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Config is the top-level bootstrap configuration, loaded from airminal.yaml.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Browser BrowserConfig `yaml:"browser"`
	API     APIConfig     `yaml:"api"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
	Notify  NotifyConfig  `yaml:"notify"`
	Seed    SeedConfig    `yaml:"seed"`
}

// StorageConfig selects the settings database.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | mysql
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // mysql DSN
}

// BrowserConfig controls the Chrome instance driven by the daemon.
type BrowserConfig struct {
	ExecPath       string      `yaml:"exec_path"`
	Headless       bool        `yaml:"headless"`
	UserDataDir    string      `yaml:"user_data_dir"`
	WaitTimeoutMS  int         `yaml:"wait_timeout_ms"`
	PollIntervalMS int         `yaml:"poll_interval_ms"`
	Tabs           []TabConfig `yaml:"tabs"`
}

// TabConfig opens one platform tab at startup. An empty URL uses the
// platform's home page.
type TabConfig struct {
	Platform string `yaml:"platform"`
	URL      string `yaml:"url"`
}

// APIConfig controls the local HTTP API.
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AgentConfig tunes the agent HTTP client.
type AgentConfig struct {
	TimeoutSec        int `yaml:"timeout_sec"`
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 = unlimited
}

// LoggingConfig selects the zap mode.
type LoggingConfig struct {
	Mode string `yaml:"mode"` // dev | prod
}

// NotifyConfig holds optional webhooks announcing automation results.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// SeedConfig provides values written into the settings record the first time
// the daemon starts against an empty database.
type SeedConfig struct {
	AgentEndpoint string `yaml:"agent_endpoint"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, unmarshals YAML bytes and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "airminal.db"
	}
	if c.Browser.WaitTimeoutMS == 0 {
		c.Browser.WaitTimeoutMS = 3000
	}
	if c.Browser.PollIntervalMS == 0 {
		c.Browser.PollIntervalMS = 500
	}
	if c.API.Port == 0 {
		c.API.Port = 19820
	}
	if c.Agent.TimeoutSec == 0 {
		c.Agent.TimeoutSec = 60
	}
	if c.Logging.Mode == "" {
		c.Logging.Mode = "dev"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Storage.Driver {
	case "sqlite":
	case "mysql":
		if c.Storage.DSN == "" {
			errs = append(errs, "storage.dsn is required for mysql")
		} else if _, err := mysql.ParseDSN(c.Storage.DSN); err != nil {
			errs = append(errs, fmt.Sprintf("storage.dsn is invalid: %v", err))
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported (sqlite, mysql)", c.Storage.Driver))
	}
	if c.Browser.WaitTimeoutMS < 0 {
		errs = append(errs, "browser.wait_timeout_ms must not be negative")
	}
	if c.Browser.PollIntervalMS < 0 {
		errs = append(errs, "browser.poll_interval_ms must not be negative")
	}
	seen := make(map[string]bool)
	for i, t := range c.Browser.Tabs {
		if t.Platform == "" {
			errs = append(errs, fmt.Sprintf("browser.tabs[%d].platform is required", i))
			continue
		}
		if seen[t.Platform] {
			errs = append(errs, fmt.Sprintf("browser.tabs[%d].platform %q is duplicated", i, t.Platform))
		}
		seen[t.Platform] = true
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}
	if c.Agent.TimeoutSec < 0 {
		errs = append(errs, "agent.timeout_sec must not be negative")
	}
	if c.Agent.RequestsPerMinute < 0 {
		errs = append(errs, "agent.requests_per_minute must not be negative")
	}
	switch c.Logging.Mode {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Sprintf("logging.mode %q is not supported (dev, prod)", c.Logging.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
