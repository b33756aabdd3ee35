package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wheel-tracker/internal/config"
	"wheel-tracker/internal/logging"
	"wheel-tracker/internal/marketdata"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/store"
	"wheel-tracker/internal/tracker"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Polygon *marketdata.PolygonClient

	registry *tracker.Registry
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// once flags are parsed; trackers are opened on first use.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "wheel",
		Short: "Wheel Tracker - options wheel strategy ledger and analytics",
		Long: `Wheel Tracker records cash-secured puts, covered calls, assignments,
closes and rolls in an append-only ledger and derives positions, cost
basis, premium income and benchmark rankings from it.

Two isolated data sets are kept: "active" for your real trades and "demo"
with a sample history. Select one with --mode.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/wheel-tracker)")
	rootCmd.PersistentFlags().String("mode", "", "data set: active or demo (default from config)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addReportCommands(rootCmd, app)
	addMarketDataCommands(rootCmd, app)
	addUtilityCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}

	if cfg.MarketDataEnabled() {
		a.Polygon = marketdata.NewPolygonClient(cfg.PolygonConfig(), a.Logger)
		a.Logger.Debug().Str("tier", string(a.Polygon.Tier())).Msg("Polygon client initialized")
	}
	return nil
}

// Registry opens every mode's tracker on first call. The demo ledger is
// seeded with a sample history when empty and priced from a static table.
func (a *App) Registry(ctx context.Context) (*tracker.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}

	cfg := a.Config
	opts := tracker.Options{
		Positions: cfg.PositionsOptions(),
		Ranking:   cfg.RankingConfig(),
		Location:  cfg.Location(),
		Clock:     time.Now,
	}

	reg := tracker.NewRegistry(cfg.Mode())
	for _, mode := range []models.Mode{models.ModeActive, models.ModeDemo} {
		st, err := store.Open(ctx, cfg.StoreConfig(), mode, a.Logger)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("opening %s store: %w", mode, err)
		}

		var prices marketdata.Provider = marketdata.NoData{}
		if mode == models.ModeDemo {
			prices = tracker.DemoPrices(time.Now(), opts.Ranking.Benchmarks)
		} else if a.Polygon != nil {
			prices = a.Polygon
		}

		t, err := tracker.Open(ctx, mode, tracker.Deps{Store: st, Prices: prices, Options: opts, Logger: a.Logger})
		if err != nil {
			st.Close()
			reg.Close()
			return nil, err
		}
		reg.Register(t)

		if mode == models.ModeDemo {
			if _, err := tracker.SeedDemo(ctx, t); err != nil {
				reg.Close()
				return nil, fmt.Errorf("seeding demo ledger: %w", err)
			}
		}
	}

	a.registry = reg
	return reg, nil
}

// Tracker returns the tracker selected by --mode.
func (a *App) Tracker(cmd *cobra.Command) (*tracker.Tracker, error) {
	reg, err := a.Registry(cmd.Context())
	if err != nil {
		return nil, err
	}
	mode, _ := cmd.Flags().GetString("mode")
	return reg.Lookup(mode)
}

// Close releases the trackers if they were opened.
func (a *App) Close() error {
	if a.registry == nil {
		return nil
	}
	err := a.registry.Close()
	a.registry = nil
	return err
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Wheel Tracker v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.TemplatePath(app.Config.Dir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Tracker")
	output.Printf("  Mode:             %s\n", cfg.Tracker.Mode)
	output.Printf("  Basis Mode:       %s\n", cfg.Tracker.BasisMode)
	output.Printf("  Roll Premium:     %s\n", cfg.Tracker.RollPremium)
	output.Printf("  Timezone:         %s\n", cfg.Tracker.Timezone)
	output.Println()

	rc := cfg.RankingConfig()
	output.Bold("Ranking")
	output.Printf("  Capital Policy:   %s\n", rc.Policy)
	output.Printf("  Starting Capital: %s\n", FormatMoney(rc.StartingCapital))
	for _, b := range rc.Benchmarks {
		output.Printf("  Benchmark:        %s (%s)\n", b.Label, b.Symbol)
	}
	output.Println()

	output.Bold("Storage")
	output.Printf("  Driver:           %s\n", cfg.Storage.Driver)
	if cfg.Storage.Driver == string(store.DriverPostgres) {
		output.Printf("  DSN:              %s\n", logging.RedactDSN(cfg.Storage.DSN))
	} else {
		output.Printf("  Directory:        %s\n", cfg.Storage.Dir)
	}
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Provider:         %s\n", cfg.MarketData.Provider)
	output.Printf("  Tier:             %s\n", cfg.MarketData.Tier)
	key := output.Red("missing")
	if cfg.Credentials.Polygon.APIKey != "" {
		key = output.Green(logging.MaskSecret(cfg.Credentials.Polygon.APIKey))
	}
	output.Printf("  API Key:          %s\n", key)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:          %s\n", cfg.Server.Addr)
}
