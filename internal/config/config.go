// Package config loads the bracketd YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "300ms" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for bracketd.
type Config struct {
	Server  Server  `yaml:"server"`
	Venue   Venue   `yaml:"venue"`
	Trading Trading `yaml:"trading"`
	Journal Journal `yaml:"journal"`
	Logging Logging `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Venue holds credentials and the endpoint for the trading venue API.
type Venue struct {
	BaseURL   string `yaml:"base_url"`
	Username  string `yaml:"username"`
	APIKey    string `yaml:"api_key"`
	AccountID int64  `yaml:"account_id"` // 0 = discover first active account at startup
}

// Trading defines sizing and order pacing parameters.
type Trading struct {
	RiskFraction   float64  `yaml:"risk_fraction"`   // fraction of (balance - maximumLoss) put at risk
	DefaultSymbol  string   `yaml:"default_symbol"`  // used when a request omits the symbol
	PollInterval   Duration `yaml:"poll_interval"`   // reconciliation loop period
	PacingDelay    Duration `yaml:"pacing_delay"`    // minimum delay between venue order calls
	RequestTimeout Duration `yaml:"request_timeout"` // per venue call
}

// Journal configures the SQLite audit journal.
type Journal struct {
	Path string `yaml:"path"` // empty disables journalling
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides, and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills in zero-valued fields with operational defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Venue.BaseURL == "" {
		cfg.Venue.BaseURL = "https://api.topstepx.com"
	}
	if cfg.Trading.RiskFraction == 0 {
		cfg.Trading.RiskFraction = 0.24
	}
	if cfg.Trading.DefaultSymbol == "" {
		cfg.Trading.DefaultSymbol = "MYM"
	}
	if cfg.Trading.PollInterval == 0 {
		cfg.Trading.PollInterval = Duration(500 * time.Millisecond)
	}
	if cfg.Trading.PacingDelay == 0 {
		cfg.Trading.PacingDelay = Duration(250 * time.Millisecond)
	}
	if cfg.Trading.RequestTimeout == 0 {
		cfg.Trading.RequestTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VENUE_BASE_URL"); v != "" {
		cfg.Venue.BaseURL = v
	}
	if v := os.Getenv("VENUE_USERNAME"); v != "" {
		cfg.Venue.Username = v
	}
	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		cfg.Venue.APIKey = v
	}
	if v := os.Getenv("VENUE_ACCOUNT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Venue.AccountID = id
		}
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports configuration errors that would prevent the service from
// talking to the venue at all.
func (c *Config) Validate() error {
	if c.Venue.Username == "" {
		return fmt.Errorf("venue.username is required")
	}
	if c.Venue.APIKey == "" {
		return fmt.Errorf("venue.api_key is required")
	}
	if c.Trading.RiskFraction <= 0 || c.Trading.RiskFraction >= 1 {
		return fmt.Errorf("trading.risk_fraction must be in (0, 1), got %v", c.Trading.RiskFraction)
	}
	return nil
}
