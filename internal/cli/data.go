package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wheel-tracker/internal/marketdata"
	"wheel-tracker/internal/models"
)

// addMarketDataCommands adds market data commands.
func addMarketDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newBarsCmd(app))
	rootCmd.AddCommand(newSearchCmd(app))
	rootCmd.AddCommand(newMarketCmd(app))
}

// polygon returns the configured client or explains how to configure one.
func (a *App) polygon() (*marketdata.PolygonClient, error) {
	if a.Polygon == nil {
		return nil, fmt.Errorf("market data is not configured: set POLYGON_API_KEY or add api_key to credentials.toml")
	}
	return a.Polygon, nil
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <ticker>...",
		Short: "Get the latest price for tickers",
		Example: `  wheel quote AAPL
  wheel quote AAPL MSFT AMD`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.polygon()
			if err != nil {
				return err
			}

			quotes := make([]models.Quote, 0, len(args))
			for _, ticker := range args {
				q, err := client.CurrentPrice(cmd.Context(), ticker)
				if err != nil {
					output.Error("✗ %s: %v", strings.ToUpper(ticker), err)
					continue
				}
				quotes = append(quotes, q)
			}
			if output.IsJSON() {
				return output.JSON(quotes)
			}
			if len(quotes) == 0 {
				return fmt.Errorf("no quotes available")
			}

			table := NewTable(output, "TICKER", "PRICE", "SOURCE", "AS OF")
			for _, q := range quotes {
				source := output.DimText("previous close")
				if q.Realtime {
					source = output.Green("live")
				}
				table.AddRow(q.Ticker, FormatPrice(q.Price), source, FormatDateTime(q.Timestamp))
			}
			table.Render()
			return nil
		},
	}
}

func newBarsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bars <ticker>",
		Short: "Show daily price bars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.polygon()
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			to := time.Now()
			bars, err := client.Bars(cmd.Context(), args[0], to.AddDate(0, 0, -days), to)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(bars)
			}

			table := NewTable(output, "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
			for _, b := range bars {
				table.AddRow(FormatDate(b.Timestamp), FormatPrice(b.Open), FormatPrice(b.High),
					FormatPrice(b.Low), FormatPrice(b.Close), fmt.Sprintf("%d", b.Volume))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "calendar days of history")
	return cmd
}

func newSearchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search listed tickers by symbol or name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.polygon()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			results, err := client.SearchTickers(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(results)
			}
			if len(results) == 0 {
				output.Dim("No matches.")
				return nil
			}

			table := NewTable(output, "TICKER", "NAME", "MARKET", "EXCHANGE")
			for _, r := range results {
				table.AddRow(r.Ticker, TruncateString(r.Name, 40), r.Market, r.Exchange)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, "maximum results")
	return cmd
}

type marketStatus struct {
	Tier      marketdata.Tier         `json:"tier"`
	Connected bool                    `json:"connected"`
	Message   string                  `json:"message"`
	Features  []marketdata.Feature    `json:"features"`
	Breaker   marketdata.BreakerState `json:"breaker"`
}

func newMarketCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "market",
		Aliases: []string{"status"},
		Short:   "Check the market data connection and subscription tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.polygon()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			ok, msg := client.TestConnection(ctx)

			status := marketStatus{
				Tier:      client.Tier(),
				Connected: ok,
				Message:   msg,
				Features:  client.Tier().Features(),
				Breaker:   client.BreakerState(),
			}
			if output.IsJSON() {
				return output.JSON(status)
			}

			if ok {
				output.Success("✓ %s", msg)
			} else {
				output.Error("✗ %s", msg)
			}
			output.Printf("  Tier: %s\n", status.Tier)
			if status.Breaker != marketdata.BreakerClosed {
				output.Warning("  Upstream calls paused (breaker %s)", status.Breaker)
			}
			for _, f := range status.Features {
				output.Printf("    • %s\n", f)
			}
			if !ok {
				return fmt.Errorf("market data connection failed")
			}
			return nil
		},
	}
}
