package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/costbasis"
	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/marketdata"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/internal/ranking"
	"wheel-tracker/internal/store"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"POLYGON_API_KEY", "POLYGON_TIER", "WHEEL_MODE", "WHEEL_DATABASE_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoadCreatesTemplates(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	if err == nil && info.Mode().Perm() != 0600 {
		t.Errorf("credentials.toml mode = %v, want 0600", info.Mode().Perm())
	}

	if cfg.Mode() != models.ModeActive {
		t.Errorf("Mode() = %s", cfg.Mode())
	}
	if got := cfg.StoreConfig(); got.Driver != store.DriverSQLite || got.Dir != filepath.Join(dir, "data") {
		t.Errorf("StoreConfig() = %+v", got)
	}
	if cfg.MarketDataEnabled() {
		t.Error("market data enabled without an API key")
	}

	// The written template loads to the same settings.
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	rc := again.RankingConfig()
	if len(rc.Benchmarks) != 4 || rc.Benchmarks[0].Symbol != "SPY" || rc.Benchmarks[0].Label != "S&P 500" {
		t.Errorf("Benchmarks = %+v", rc.Benchmarks)
	}
	if rc.CoverageTolerance != 4*24*time.Hour {
		t.Errorf("CoverageTolerance = %v", rc.CoverageTolerance)
	}
	if !rc.StartingCapital.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("StartingCapital = %s", rc.StartingCapital)
	}
	if again.PolygonConfig().CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v", again.PolygonConfig().CacheTTL)
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	toml := `
[tracker]
mode = "demo"
basis_mode = "premium_adjusted"
roll_premium = "new_leg"

[ranking]
capital_policy = "deployed"

[market_data]
tier = "starter"
requests_per_minute = 0
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("POLYGON_API_KEY=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLYGON_TIER", "advanced")
	// godotenv never replaces a variable that is already set, even to "".
	os.Unsetenv("POLYGON_API_KEY")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	os.Unsetenv("POLYGON_API_KEY")

	opts := cfg.PositionsOptions()
	if opts.BasisMode != costbasis.ModePremiumAdjusted || opts.RollPremium != positions.RollNewLeg {
		t.Errorf("PositionsOptions() = %+v", opts)
	}
	if cfg.Mode() != models.ModeDemo {
		t.Errorf("Mode() = %s", cfg.Mode())
	}
	if cfg.RankingConfig().Policy != ranking.PolicyDeployed {
		t.Errorf("Policy = %s", cfg.RankingConfig().Policy)
	}
	pc := cfg.PolygonConfig()
	if pc.APIKey != "from-dotenv" || pc.Tier != marketdata.TierAdvanced || pc.RequestsPerMinute != 0 {
		t.Errorf("PolygonConfig() = key %q tier %s rpm %d", pc.APIKey, pc.Tier, pc.RequestsPerMinute)
	}
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("WHEEL_DATABASE_URL", "postgres://localhost/wheel")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sc := cfg.StoreConfig(); sc.Driver != store.DriverPostgres || sc.DSN != "postgres://localhost/wheel" {
		t.Errorf("StoreConfig() = %+v", sc)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.Tracker.Mode = "paper" }},
		{"basis", func(c *Config) { c.Tracker.BasisMode = "average" }},
		{"roll", func(c *Config) { c.Tracker.RollPremium = "gross" }},
		{"timezone", func(c *Config) { c.Tracker.Timezone = "Mars/Olympus" }},
		{"policy", func(c *Config) { c.Ranking.CapitalPolicy = "nav" }},
		{"capital", func(c *Config) { c.Ranking.StartingCapital = -1 }},
		{"benchmark", func(c *Config) { c.Ranking.Benchmarks = []ranking.Benchmark{{Label: "x"}} }},
		{"driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }},
		{"provider", func(c *Config) { c.MarketData.Provider = "yahoo" }},
		{"tier", func(c *Config) { c.MarketData.Tier = "platinum" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Validate() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}
