package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wheel-tracker/internal/analytics"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/internal/tracker"
	"wheel-tracker/pkg/utils"
)

// addReportCommands adds the commands that read derived state.
func addReportCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newLegsCmd(app))
	rootCmd.AddCommand(newPremiumCmd(app))
	rootCmd.AddCommand(newIncomeCmd(app))
	rootCmd.AddCommand(newTickersCmd(app))
	rootCmd.AddCommand(newTopCmd(app))
	rootCmd.AddCommand(newRankCmd(app))
	rootCmd.AddCommand(newValueCmd(app))
	rootCmd.AddCommand(newSnapshotCmd(app))
}

// dayEndFlag reads a YYYY-MM-DD flag as the last instant of that day.
func dayEndFlag(cmd *cobra.Command, name string, def time.Time) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return def, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	return utils.EndOfDay(d), nil
}

// rangeFlags reads --from and --to, defaulting to [defFrom, defTo].
func rangeFlags(cmd *cobra.Command, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from := defFrom
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			return from, defTo, err
		}
		from = d
	}
	to, err := dayEndFlag(cmd, "to", defTo)
	if err != nil {
		return from, to, err
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("--from must not be after --to")
	}
	return from, to, nil
}

func addRangeFlags(cmd *cobra.Command, fromHelp string) {
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD, default: "+fromHelp+")")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD, default: today)")
}

func yearStartUTC(now time.Time) time.Time {
	return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

func newPositionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "positions [ticker]",
		Aliases: []string{"pos"},
		Short:   "Show derived positions per ticker",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			at, err := dayEndFlag(cmd, "at", t.Now())
			if err != nil {
				return err
			}

			if len(args) == 1 {
				p, err := t.Position(strings.ToUpper(args[0]), at)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(p)
				}
				printPosition(output, t, p, at)
				return nil
			}

			list, err := t.Positions(at)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No positions in %s mode.", t.Mode())
				return nil
			}

			basisMode := t.Options().Positions.BasisMode
			table := NewTable(output, "TICKER", "SHARES", "BASIS", "PUT PREM", "CALL PREM", "ASSIGN P&L", "OPEN LEGS")
			for _, p := range list {
				basis := "-"
				if b, ok := p.RunningBasis(basisMode); ok {
					basis = FormatPrice(b)
				}
				table.AddRow(
					p.Ticker,
					utils.FormatQuantity(p.Shares()),
					basis,
					FormatMoney(p.PutPremium),
					FormatMoney(p.CallPremium),
					output.Money(p.AssignmentPnL),
					fmt.Sprintf("%d", len(p.OpenLegs(""))),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("at", "", "as of date (YYYY-MM-DD, default: now)")
	return cmd
}

func printPosition(output *Output, t *tracker.Tracker, p positions.Position, at time.Time) {
	lines := []string{
		"Shares:          " + utils.FormatQuantity(p.Shares()),
	}
	basisMode := t.Options().Positions.BasisMode
	if b, ok := p.RunningBasis(basisMode); ok {
		lines = append(lines, fmt.Sprintf("Basis (%s): %s", basisMode, FormatPrice(b)))
	}
	lines = append(lines,
		fmt.Sprintf("Put premium:     %s", FormatMoney(p.PutPremium)),
		fmt.Sprintf("Call premium:    %s", FormatMoney(p.CallPremium)),
		fmt.Sprintf("Assignment P&L:  %s", output.Money(p.AssignmentPnL)),
		fmt.Sprintf("Realized P&L:    %s", output.Money(p.RealizedPnL())),
	)
	output.Box(p.Ticker, lines)

	if len(p.Legs) == 0 {
		return
	}
	output.Println()
	printLegs(output, p.Legs, at)
	if len(p.Unlinked) > 0 {
		output.Warning("Events recorded without a matching leg: %v", p.Unlinked)
	}
}

func printLegs(output *Output, legs []positions.Leg, now time.Time) {
	table := NewTable(output, "ID", "CONTRACT", "QTY", "PREMIUM", "OPENED", "DTE", "STATUS", "REALIZED")
	for _, leg := range legs {
		dte := "-"
		if leg.Status == models.LegOpen {
			dte = fmt.Sprintf("%d", DaysToExpiry(leg, now))
		}
		table.AddRow(
			fmt.Sprintf("%d", leg.ID),
			FormatLeg(leg),
			fmt.Sprintf("%d", leg.Contracts),
			FormatPrice(leg.Premium),
			FormatDate(leg.OpenedAt),
			dte,
			output.LegStatus(string(leg.Status)),
			FormatMoney(leg.Realized),
		)
	}
	table.Render()
}

func newLegsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "legs",
		Short: "List open option legs, soonest expiration first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			now := t.Now()
			legs, err := t.OpenLegs(now)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if legs == nil {
					legs = []positions.Leg{}
				}
				return output.JSON(legs)
			}
			if len(legs) == 0 {
				output.Dim("No open legs.")
				return nil
			}
			printLegs(output, legs, now)
			return nil
		},
	}
}

func newPremiumCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "premium",
		Short: "Show the premium income summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			at, err := dayEndFlag(cmd, "at", t.Now())
			if err != nil {
				return err
			}
			sum, err := t.Summary(at)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sum)
			}

			output.Box(fmt.Sprintf("Premium (%s, week %d)", t.Mode(), sum.WeekIndex), []string{
				fmt.Sprintf("This week:     %s", output.Money(sum.Week)),
				fmt.Sprintf("This month:    %s", output.Money(sum.Month)),
				fmt.Sprintf("Year to date:  %s", output.Money(sum.YTD)),
				fmt.Sprintf("Projection:    %s", output.Money(sum.Projection)),
				fmt.Sprintf("All time:      %s", output.Money(sum.Total)),
			})
			return nil
		},
	}
	cmd.Flags().String("at", "", "as of date (YYYY-MM-DD, default: now)")
	return cmd
}

func newIncomeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "income",
		Short: "Show premium income per week or month",
		Example: `  wheel income --by month
  wheel income --from 2024-01-01 --to 2024-03-31 --by week`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			now := t.Now()
			from, to, err := rangeFlags(cmd, yearStartUTC(now), now)
			if err != nil {
				return err
			}
			by, _ := cmd.Flags().GetString("by")
			gran, err := models.ParseGranularity(by)
			if err != nil {
				return err
			}
			series, err := t.IncomeByPeriod(from, to, gran)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(series)
			}

			table := NewTable(output, "PERIOD", "START", "PREMIUM")
			for _, p := range series {
				table.AddRow(p.Label, FormatDate(p.Start), output.Money(p.Amount))
			}
			table.Render()
			return nil
		},
	}
	addRangeFlags(cmd, "Jan 1")
	cmd.Flags().String("by", "week", "bucket size: week or month")
	return cmd
}

func newTickersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tickers",
		Short: "Show all-time premium per ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			totals, err := t.TickerTotals()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(totals)
			}
			printTickerTotals(output, totals)
			return nil
		},
	}
}

func printTickerTotals(output *Output, totals []analytics.TickerTotal) {
	if len(totals) == 0 {
		output.Dim("No premium recorded.")
		return
	}
	table := NewTable(output, "TICKER", "PUTS", "CALLS", "TOTAL")
	for _, row := range totals {
		table.AddRow(row.Ticker, FormatMoney(row.PutPremium), FormatMoney(row.CallPremium), output.Money(row.Total))
	}
	table.Render()
}

func newTopCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the top premium earners this month or year",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			p, _ := cmd.Flags().GetString("period")
			period, err := analytics.ParsePeriod(p)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			top, err := t.TopPerformers(period, t.Now(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(top)
			}
			output.Bold("Top performers (%s)", strings.ToUpper(string(period)))
			printTickerTotals(output, top)
			return nil
		},
	}
	cmd.Flags().String("period", string(analytics.PeriodMTD), "window: mtd or ytd")
	cmd.Flags().Int("limit", analytics.DefaultTopLimit, "number of tickers")
	return cmd
}

func newRankCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Compare your realized return with benchmark indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			now := t.Now()
			from, to, err := rangeFlags(cmd, yearStartUTC(now), now)
			if err != nil {
				return err
			}
			res, err := t.Rankings(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}

			output.Bold("Rankings %s to %s", FormatDate(res.From), FormatDate(res.To))
			output.Dim("Premium %s on capital %s", FormatMoney(res.Premium), FormatMoney(res.Capital))
			output.Println()
			table := NewTable(output, "#", "NAME", "RETURN", "NOTE")
			for i, e := range res.Entries {
				name := e.Label
				if e.User {
					name = output.Cyan(name)
				}
				ret, note := "-", e.Reason
				if e.Available {
					ret = output.Percent(e.ReturnPct)
				}
				table.AddRow(fmt.Sprintf("%d", i+1), name, ret, TruncateString(note, 40))
			}
			table.Render()
			return nil
		},
	}
	addRangeFlags(cmd, "Jan 1")
	return cmd
}

func newValueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Show the portfolio value series over trading days",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			now := t.Now()
			from, to, err := rangeFlags(cmd, now.AddDate(0, 0, -30), now)
			if err != nil {
				return err
			}
			step, _ := cmd.Flags().GetInt("step")
			if step <= 0 {
				return fmt.Errorf("--step must be positive")
			}
			points, err := t.PortfolioValue(cmd.Context(), from, to, step)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(points)
			}

			table := NewTable(output, "DATE", "HOLDINGS", "PREMIUM", "VALUE")
			for _, p := range points {
				if !p.Available {
					table.AddRow(FormatDate(p.Date), output.Yellow("unavailable"), FormatMoney(p.Premium), "missing "+strings.Join(p.Missing, ","))
					continue
				}
				table.AddRow(FormatDate(p.Date), FormatMoney(p.Holdings), FormatMoney(p.Premium), FormatMoney(p.Value))
			}
			table.Render()
			return nil
		},
	}
	addRangeFlags(cmd, "30 days ago")
	cmd.Flags().Int("step", 1, "sample every n-th trading day")
	return cmd
}

func newSnapshotCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Value the portfolio at a point in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			at, err := dayEndFlag(cmd, "at", t.Now())
			if err != nil {
				return err
			}
			snap, err := t.Snapshot(cmd.Context(), at)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(snap)
			}

			if len(snap.Holdings) > 0 {
				table := NewTable(output, "TICKER", "SHARES", "BASIS", "PRICE", "VALUE", "UNREALIZED")
				for _, h := range snap.Holdings {
					if !h.Available {
						table.AddRow(h.Ticker, fmt.Sprintf("%d", h.Shares), FormatPrice(h.Basis), "-", "-", output.Yellow("no price"))
						continue
					}
					table.AddRow(h.Ticker, fmt.Sprintf("%d", h.Shares), FormatPrice(h.Basis), FormatPrice(h.Price),
						FormatMoney(h.MarketValue), output.Money(h.Unrealized))
				}
				table.Render()
				output.Println()
			}
			output.Box("Snapshot "+FormatDate(snap.At), []string{
				fmt.Sprintf("Holdings:          %s", FormatMoney(snap.MarketValue)),
				fmt.Sprintf("Realized premium:  %s", FormatMoney(snap.RealizedPremium)),
				fmt.Sprintf("Realized P&L:      %s", output.Money(snap.RealizedPnL)),
				fmt.Sprintf("Value:             %s", FormatMoney(snap.Value)),
			})
			if !snap.Available {
				output.Warning("Some holdings could not be priced; value is partial.")
			}
			return nil
		},
	}
	cmd.Flags().String("at", "", "as of date (YYYY-MM-DD, default: now)")
	return cmd
}
