package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Wheel Tracker Configuration

[tracker]
# Default data set: "active" or "demo"
mode = "active"
# Share cost basis after put assignment: "strike" or "premium_adjusted"
basis_mode = "strike"
# Meaning of a roll's premium: "net" (credit minus buy-back) or "new_leg"
roll_premium = "net"
# Calendar used for month and year buckets
timezone = "UTC"

[ranking]
# Return denominator: "starting_capital" or "deployed"
capital_policy = "starting_capital"
starting_capital = 100000.0
# Days a benchmark series may start late or end early and still count
coverage_tolerance_days = 4

[[ranking.benchmarks]]
symbol = "SPY"
label = "S&P 500"

[[ranking.benchmarks]]
symbol = "QQQ"
label = "Nasdaq 100"

[[ranking.benchmarks]]
symbol = "IWM"
label = "Russell 2000"

[[ranking.benchmarks]]
symbol = "DIA"
label = "Dow Jones"

[storage]
# Ledger backend: "sqlite", "postgres" or "memory"
driver = "sqlite"
# Directory holding one SQLite file per mode (defaults to <config dir>/data)
# dir = ""
# Postgres connection string (or set WHEEL_DATABASE_URL)
dsn = ""

[market_data]
# Price provider: "polygon" or "none"
provider = "polygon"
# Polygon.io plan: free, starter, advanced, business
tier = "free"
timeout = "10s"
cache_ttl = "5m"
# Free plans allow 5 requests per minute; 0 disables client-side limiting
requests_per_minute = 5

[logging]
level = "info"
console = true
# Rotated log file (defaults to <config dir>/logs/wheel.log)
file = false
max_size_mb = 20
max_backups = 5
max_age_days = 30

[server]
addr = ":8080"
request_timeout = "30s"
`

const credentialsTemplate = `# Wheel Tracker Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[polygon]
api_key = ""
`

// TemplatePath returns where the main config file lives in configDir.
func TemplatePath(configDir string) string {
	return filepath.Join(configDir, "config.toml")
}

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := TemplatePath(configDir)
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
