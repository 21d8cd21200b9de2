package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the goldbot service.
type Config struct {
	Source   Source        `yaml:"source"`
	Venue    VenueConfig   `yaml:"venue"`
	Trading  TradingConfig `yaml:"trading"`
	Rules    RulesConfig   `yaml:"rules"`
	Messages Messages      `yaml:"messages"`
	Storage  Storage       `yaml:"storage"`
	Metrics  Metrics       `yaml:"metrics"`
	Logging  Logging       `yaml:"logging"`
}

// Source configures the inbound message bridge.
type Source struct {
	BridgeURL    string `yaml:"bridge_url"`
	ReconnectSec int    `yaml:"reconnect_sec"`
}

// VenueConfig selects the execution venue. Mode is "alpaca" or "simulator".
type VenueConfig struct {
	Mode   string `yaml:"mode"`
	Alpaca Alpaca `yaml:"alpaca"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// TradingConfig defines execution and sizing parameters.
type TradingConfig struct {
	Symbol            string  `yaml:"symbol"`
	VolumePerSplit    float64 `yaml:"volume_per_split"`
	MaxSplits         int     `yaml:"max_splits"`
	MinStopDistance   float64 `yaml:"min_stop_distance"`
	CloseBuffer       float64 `yaml:"close_buffer"`
	PendingTimeoutMin int     `yaml:"pending_timeout_min"`
	PollIntervalSec   int     `yaml:"poll_interval_sec"`
}

// RulesConfig holds the entry-decision tolerances, in price units.
type RulesConfig struct {
	BuyUp     float64 `yaml:"buy_up"`
	BuyDown   float64 `yaml:"buy_down"`
	SellUp    float64 `yaml:"sell_up"`
	SellDown  float64 `yaml:"sell_down"`
	HardDrift float64 `yaml:"hard_drift"`
}

// Messages controls how message edits and reparses are handled.
type Messages struct {
	EditWindowSec    int `yaml:"edit_window_sec"`
	MaxParseAttempts int `yaml:"max_parse_attempts"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ParquetDir string `yaml:"parquet_dir"`
}

// Metrics configures the Prometheus listener. Empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Derived durations
// ---------------------------------------------------------------------------

// EditWindow returns the window during which an edited message is reparsed.
func (m Messages) EditWindow() time.Duration {
	return time.Duration(m.EditWindowSec) * time.Second
}

// PendingTimeout returns how long a resting order may wait before
// cancellation.
func (t TradingConfig) PendingTimeout() time.Duration {
	return time.Duration(t.PendingTimeoutMin) * time.Minute
}

// PollInterval returns the watcher polling cadence.
func (t TradingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

// Reconnect returns the delay between bridge reconnection attempts.
func (s Source) Reconnect() time.Duration {
	return time.Duration(s.ReconnectSec) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills in
// defaults for unset fields.
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		cfg.Source.BridgeURL = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("PARQUET_DIR"); v != "" {
		cfg.Storage.ParquetDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Venue.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Venue.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Venue.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Venue.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Venue.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Venue.Alpaca.APISecret = v
	}
}

// applyDefaults fills in zero-valued fields with workable defaults.
func applyDefaults(cfg *Config) {
	if cfg.Source.ReconnectSec == 0 {
		cfg.Source.ReconnectSec = 5
	}
	if cfg.Venue.Mode == "" {
		cfg.Venue.Mode = "simulator"
	}
	if cfg.Venue.Alpaca.RateLimitPerMin == 0 {
		cfg.Venue.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Trading.Symbol == "" {
		cfg.Trading.Symbol = "XAUUSD"
	}
	if cfg.Trading.VolumePerSplit == 0 {
		cfg.Trading.VolumePerSplit = 0.05
	}
	if cfg.Trading.MaxSplits == 0 {
		cfg.Trading.MaxSplits = 4
	}
	if cfg.Trading.MinStopDistance == 0 {
		cfg.Trading.MinStopDistance = 5.0
	}
	if cfg.Trading.CloseBuffer == 0 {
		cfg.Trading.CloseBuffer = 0.5
	}
	if cfg.Trading.PendingTimeoutMin == 0 {
		cfg.Trading.PendingTimeoutMin = 240
	}
	if cfg.Trading.PollIntervalSec == 0 {
		cfg.Trading.PollIntervalSec = 2
	}
	if cfg.Rules.BuyUp == 0 {
		cfg.Rules.BuyUp = 0.30
	}
	if cfg.Rules.BuyDown == 0 {
		cfg.Rules.BuyDown = 1.00
	}
	if cfg.Rules.SellUp == 0 {
		cfg.Rules.SellUp = 1.00
	}
	if cfg.Rules.SellDown == 0 {
		cfg.Rules.SellDown = 0.30
	}
	if cfg.Rules.HardDrift == 0 {
		cfg.Rules.HardDrift = 8.0
	}
	if cfg.Messages.EditWindowSec == 0 {
		cfg.Messages.EditWindowSec = 180
	}
	if cfg.Messages.MaxParseAttempts == 0 {
		cfg.Messages.MaxParseAttempts = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validate rejects configurations that cannot run.
func (cfg *Config) validate() error {
	switch cfg.Venue.Mode {
	case "alpaca":
		if cfg.Venue.Alpaca.APIKey == "" || cfg.Venue.Alpaca.APISecret == "" {
			return fmt.Errorf("venue mode %q requires alpaca credentials", cfg.Venue.Mode)
		}
	case "simulator":
	default:
		return fmt.Errorf("unknown venue mode %q", cfg.Venue.Mode)
	}
	if cfg.Trading.VolumePerSplit <= 0 {
		return fmt.Errorf("volume_per_split must be positive, got %f", cfg.Trading.VolumePerSplit)
	}
	if cfg.Rules.HardDrift <= 0 {
		return fmt.Errorf("hard_drift must be positive, got %f", cfg.Rules.HardDrift)
	}
	return nil
}
