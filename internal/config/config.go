// Package config provides configuration management for the wheel tracker.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"wheel-tracker/internal/costbasis"
	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/logging"
	"wheel-tracker/internal/marketdata"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/internal/ranking"
	"wheel-tracker/internal/server"
	"wheel-tracker/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Tracker     TrackerConfig    `mapstructure:"tracker"`
	Ranking     RankingConfig    `mapstructure:"ranking"`
	Storage     StorageConfig    `mapstructure:"storage"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Server      ServerConfig     `mapstructure:"server"`
	Credentials Credentials      `mapstructure:"-" json:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// TrackerConfig holds ledger replay settings.
type TrackerConfig struct {
	Mode        string `mapstructure:"mode"`         // "active", "demo"
	BasisMode   string `mapstructure:"basis_mode"`   // "strike", "premium_adjusted"
	RollPremium string `mapstructure:"roll_premium"` // "net", "new_leg"
	Timezone    string `mapstructure:"timezone"`
}

// RankingConfig holds benchmark comparison settings.
type RankingConfig struct {
	CapitalPolicy         string              `mapstructure:"capital_policy"` // "starting_capital", "deployed"
	StartingCapital       float64             `mapstructure:"starting_capital"`
	CoverageToleranceDays int                 `mapstructure:"coverage_tolerance_days"`
	Benchmarks            []ranking.Benchmark `mapstructure:"benchmarks"`
}

// StorageConfig holds ledger persistence settings.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite", "postgres", "memory"
	Dir    string `mapstructure:"dir"`
	DSN    string `mapstructure:"dsn"`
}

// MarketDataConfig holds price provider settings.
type MarketDataConfig struct {
	Provider          string        `mapstructure:"provider"` // "polygon", "none"
	Tier              string        `mapstructure:"tier"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Credentials holds API credentials.
type Credentials struct {
	Polygon PolygonCredentials `mapstructure:"polygon"`
}

// PolygonCredentials holds Polygon.io API credentials.
type PolygonCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/wheel-tracker"
	}
	return filepath.Join(home, ".config", "wheel-tracker")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from commented templates and the defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file overrides anything.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{Dir: DefaultConfigDir()}
	_ = v.Unmarshal(cfg)
	return cfg
}

// loadDotEnv loads .env from the config dir and then the working
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) error {
	for _, path := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("tracker.mode", string(models.ModeActive))
	v.SetDefault("tracker.basis_mode", string(costbasis.ModeStrike))
	v.SetDefault("tracker.roll_premium", string(positions.RollNet))
	v.SetDefault("tracker.timezone", "UTC")

	v.SetDefault("ranking.capital_policy", string(ranking.PolicyStartingCapital))
	v.SetDefault("ranking.starting_capital", ranking.DefaultStartingCapital.InexactFloat64())
	v.SetDefault("ranking.coverage_tolerance_days", 4)

	v.SetDefault("storage.driver", string(store.DriverSQLite))
	v.SetDefault("storage.dir", filepath.Join(configDir, "data"))

	v.SetDefault("market_data.provider", "polygon")
	v.SetDefault("market_data.tier", string(marketdata.TierFree))
	v.SetDefault("market_data.base_url", marketdata.DefaultBaseURL)
	v.SetDefault("market_data.timeout", "10s")
	v.SetDefault("market_data.cache_ttl", "5m")
	v.SetDefault("market_data.requests_per_minute", 5)

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.path", filepath.Join(configDir, "logs", "wheel.log"))
	v.SetDefault("logging.max_size_mb", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age_days", logDefaults.MaxAge)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "30s")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		return createTemplateCredentials(configDir)
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Credentials.Polygon.APIKey = v
	}
	if v := os.Getenv("POLYGON_TIER"); v != "" {
		cfg.MarketData.Tier = v
	}
	if v := os.Getenv("WHEEL_MODE"); v != "" {
		cfg.Tracker.Mode = v
	}
	if v := os.Getenv("WHEEL_DATABASE_URL"); v != "" {
		cfg.Storage.Driver = string(store.DriverPostgres)
		cfg.Storage.DSN = v
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := models.ParseMode(c.Tracker.Mode); err != nil {
		return invalid("tracker.mode: %v", err)
	}
	if _, err := costbasis.ParseMode(c.Tracker.BasisMode); err != nil {
		return invalid("tracker.basis_mode: %v", err)
	}
	if _, err := positions.ParseRollPremiumMode(c.Tracker.RollPremium); err != nil {
		return invalid("tracker.roll_premium: %v", err)
	}
	if _, err := time.LoadLocation(c.Tracker.Timezone); err != nil {
		return invalid("tracker.timezone: %v", err)
	}

	if _, err := ranking.ParseCapitalPolicy(c.Ranking.CapitalPolicy); err != nil {
		return invalid("ranking.capital_policy: %v", err)
	}
	if c.Ranking.StartingCapital < 0 {
		return invalid("ranking.starting_capital must be non-negative")
	}
	if c.Ranking.CoverageToleranceDays < 0 {
		return invalid("ranking.coverage_tolerance_days must be non-negative")
	}
	for _, b := range c.Ranking.Benchmarks {
		if strings.TrimSpace(b.Symbol) == "" {
			return invalid("ranking.benchmarks: symbol is required")
		}
	}

	driver, err := store.ParseDriver(c.Storage.Driver)
	if err != nil {
		return invalid("storage.driver: %v", err)
	}
	if driver == store.DriverPostgres && c.Storage.DSN == "" {
		return invalid("storage.dsn is required for the postgres driver")
	}

	switch c.MarketData.Provider {
	case "polygon", "none":
	default:
		return invalid("market_data.provider: %q (must be 'polygon' or 'none')", c.MarketData.Provider)
	}
	if _, err := marketdata.ParseTier(c.MarketData.Tier); err != nil {
		return invalid("market_data.tier: %v", err)
	}
	if c.MarketData.RequestsPerMinute < 0 {
		return invalid("market_data.requests_per_minute must be non-negative")
	}

	return nil
}

// Mode returns the configured default mode.
func (c *Config) Mode() models.Mode {
	m, _ := models.ParseMode(c.Tracker.Mode)
	return m
}

// Location returns the calendar used for month and year buckets.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Tracker.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PositionsOptions returns the replay options.
func (c *Config) PositionsOptions() positions.Options {
	basis, _ := costbasis.ParseMode(c.Tracker.BasisMode)
	roll, _ := positions.ParseRollPremiumMode(c.Tracker.RollPremium)
	return positions.Options{BasisMode: basis, RollPremium: roll}
}

// RankingConfig returns the ranking settings.
func (c *Config) RankingConfig() ranking.Config {
	policy, _ := ranking.ParseCapitalPolicy(c.Ranking.CapitalPolicy)
	rc := ranking.Config{
		Policy:            policy,
		StartingCapital:   decimal.NewFromFloat(c.Ranking.StartingCapital),
		Benchmarks:        c.Ranking.Benchmarks,
		CoverageTolerance: time.Duration(c.Ranking.CoverageToleranceDays) * 24 * time.Hour,
	}
	if len(rc.Benchmarks) == 0 {
		rc.Benchmarks = ranking.DefaultBenchmarks
	}
	return rc
}

// StoreConfig returns the persistence settings.
func (c *Config) StoreConfig() store.Config {
	driver, _ := store.ParseDriver(c.Storage.Driver)
	return store.Config{Driver: driver, Dir: c.Storage.Dir, DSN: c.Storage.DSN}
}

// PolygonConfig returns the Polygon client settings.
func (c *Config) PolygonConfig() marketdata.PolygonConfig {
	pc := marketdata.DefaultPolygonConfig()
	pc.APIKey = c.Credentials.Polygon.APIKey
	pc.Tier, _ = marketdata.ParseTier(c.MarketData.Tier)
	if c.MarketData.BaseURL != "" {
		pc.BaseURL = c.MarketData.BaseURL
	}
	if c.MarketData.Timeout > 0 {
		pc.Timeout = c.MarketData.Timeout
	}
	if c.MarketData.CacheTTL > 0 {
		pc.CacheTTL = c.MarketData.CacheTTL
	}
	pc.RequestsPerMinute = c.MarketData.RequestsPerMinute
	return pc
}

// MarketDataEnabled reports whether a live price provider is configured.
func (c *Config) MarketDataEnabled() bool {
	return c.MarketData.Provider == "polygon" && c.Credentials.Polygon.APIKey != ""
}

// LogConfig returns the logging settings.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.Path,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
	}
}

// ServerConfig returns the HTTP server settings.
func (c *Config) ServerConfig() server.Config {
	sc := server.DefaultConfig()
	if c.Server.Addr != "" {
		sc.Addr = c.Server.Addr
	}
	if c.Server.RequestTimeout > 0 {
		sc.RequestTimeout = c.Server.RequestTimeout
	}
	return sc
}
