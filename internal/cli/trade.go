package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wheel-tracker/internal/models"
	"wheel-tracker/internal/tracker"
	"wheel-tracker/pkg/utils"
)

// addTradeCommands adds the ledger recording commands.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSellCmd(app, models.KindSellPut))
	rootCmd.AddCommand(newSellCmd(app, models.KindSellCall))
	rootCmd.AddCommand(newAssignCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newRollCmd(app))
	rootCmd.AddCommand(newEventsCmd(app))
	rootCmd.AddCommand(newEventCmd(app))
}

// parseWhen reads an RFC 3339 timestamp or a YYYY-MM-DD date. A bare date
// means that day's New York market close.
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 16, 0, 0, 0, utils.NewYorkLocation).UTC(), nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, bool, error) {
	if !cmd.Flags().Changed(name) {
		return decimal.Zero, false, nil
	}
	v, _ := cmd.Flags().GetString(name)
	d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(v), "$"))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid --%s %q", name, v)
	}
	return d, true, nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	return models.ParseDate(v)
}

// record appends ev to the selected tracker and reports the outcome.
func record(cmd *cobra.Command, app *App, ev models.TradeEvent) error {
	output := NewOutput(cmd)
	at, _ := cmd.Flags().GetString("at")
	when, err := parseWhen(at)
	if err != nil {
		return err
	}
	ev.Timestamp = when

	t, err := app.Tracker(cmd)
	if err != nil {
		return err
	}
	recorded, err := t.Record(cmd.Context(), ev)
	if err != nil {
		output.Error("✗ Rejected: %v", err)
		return err
	}

	if output.IsJSON() {
		return output.JSON(recorded)
	}
	output.Success("✓ Recorded event #%d", recorded.ID)
	printEventDetail(output, recorded)
	return nil
}

func addTimestampFlag(cmd *cobra.Command) {
	cmd.Flags().String("at", "", "trade time (YYYY-MM-DD or RFC 3339, default: now)")
}

func newSellCmd(app *App, kind models.EventKind) *cobra.Command {
	side := strings.ToLower(string(kind.Side()))
	cmd := &cobra.Command{
		Use:   "sell-" + side + " <ticker>",
		Short: "Record a sold " + side,
		Long: fmt.Sprintf(`Record the sale of a %s option. Prices are per share; one contract
covers %d shares.`, side, models.SharesPerContract),
		Example: fmt.Sprintf(`  wheel sell-%s AAPL --strike 180 --exp 2024-07-19 --premium 2.10
  wheel sell-%s AMD --strike 150 --exp 2024-08-16 --premium 3.20 --contracts 2 --delta 0.25`, side, side),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strike, _, err := decimalFlag(cmd, "strike")
			if err != nil {
				return err
			}
			premium, hasPremium, err := decimalFlag(cmd, "premium")
			if err != nil {
				return err
			}
			exp, err := dateFlag(cmd, "exp")
			if err != nil {
				return err
			}
			contracts, _ := cmd.Flags().GetInt("contracts")

			ev := models.TradeEvent{
				Ticker:     args[0],
				Kind:       kind,
				Strike:     strike,
				Expiration: exp,
				Contracts:  contracts,
			}
			if hasPremium {
				ev.Premium = decimal.NewNullDecimal(premium)
			}
			if cmd.Flags().Changed("delta") {
				delta, _ := cmd.Flags().GetFloat64("delta")
				ev.Delta = &delta
			}
			return record(cmd, app, ev)
		},
	}

	cmd.Flags().String("strike", "", "strike price")
	cmd.Flags().String("exp", "", "expiration date (YYYY-MM-DD)")
	cmd.Flags().String("premium", "", "premium received per share")
	cmd.Flags().Int("contracts", 1, "number of contracts")
	cmd.Flags().Float64("delta", 0, "option delta at sale")
	addTimestampFlag(cmd)
	cmd.MarkFlagRequired("strike")
	cmd.MarkFlagRequired("exp")
	cmd.MarkFlagRequired("premium")

	return cmd
}

func newAssignCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <put|call> <ticker>",
		Short: "Record an assignment",
		Long: `Record a put assignment (shares bought at the strike) or a call
assignment (shares called away). When exactly one leg of that side is open
it is used; otherwise pass --link with the leg's event id.`,
		Example: `  wheel assign put AAPL --shares 100 --price 180
  wheel assign call AAPL --shares 100 --price 185 --link 6`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind models.EventKind
			switch strings.ToLower(args[0]) {
			case "put":
				kind = models.KindPutAssigned
			case "call":
				kind = models.KindCallAssigned
			default:
				return fmt.Errorf("unknown side %q (must be put or call)", args[0])
			}

			price, _, err := decimalFlag(cmd, "price")
			if err != nil {
				return err
			}
			shares, _ := cmd.Flags().GetInt64("shares")
			contracts, _ := cmd.Flags().GetInt("contracts")
			if contracts == 0 {
				contracts = int(shares / models.SharesPerContract)
			}
			link, _ := cmd.Flags().GetInt64("link")

			return record(cmd, app, models.TradeEvent{
				Ticker:            args[1],
				Kind:              kind,
				Shares:            shares,
				CostBasisPerShare: price,
				Contracts:         contracts,
				LinkedTradeID:     link,
			})
		},
	}

	cmd.Flags().Int64("shares", 0, "shares assigned")
	cmd.Flags().String("price", "", "assignment price per share (usually the strike)")
	cmd.Flags().Int("contracts", 0, "contracts assigned (default: shares / 100)")
	cmd.Flags().Int64("link", 0, "event id of the assigned leg")
	addTimestampFlag(cmd)
	cmd.MarkFlagRequired("shares")
	cmd.MarkFlagRequired("price")

	return cmd
}

// openContracts returns the contracts still open on the leg opened by id.
func openContracts(cmd *cobra.Command, app *App, id int64) int {
	t, err := app.Tracker(cmd)
	if err != nil {
		return 0
	}
	legs, err := t.OpenLegs(t.Now())
	if err != nil {
		return 0
	}
	for _, leg := range legs {
		if leg.ID == id {
			return leg.Contracts
		}
	}
	return 0
}

func newCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <ticker>",
		Short: "Record buying back an open leg",
		Example: `  wheel close MSFT --link 2 --price 1.20
  wheel close AMD --link 4 --price 0.50 --contracts 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, _, err := decimalFlag(cmd, "price")
			if err != nil {
				return err
			}
			link, _ := cmd.Flags().GetInt64("link")
			contracts, _ := cmd.Flags().GetInt("contracts")
			if contracts == 0 {
				contracts = openContracts(cmd, app, link)
			}

			return record(cmd, app, models.TradeEvent{
				Ticker:        args[0],
				Kind:          models.KindClose,
				ClosePrice:    price,
				Contracts:     contracts,
				LinkedTradeID: link,
			})
		},
	}

	cmd.Flags().Int64("link", 0, "event id of the leg being closed")
	cmd.Flags().String("price", "0", "buy-back price per share")
	cmd.Flags().Int("contracts", 0, "contracts closed (default: all open)")
	addTimestampFlag(cmd)
	cmd.MarkFlagRequired("link")

	return cmd
}

func newRollCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roll <ticker>",
		Short: "Record rolling an open leg to a new strike or expiration",
		Long: `Record closing an open leg and opening a replacement in one event.

How --premium is read depends on tracker.roll_premium: "net" treats it as
the net credit (negative for a debit); "new_leg" treats it as the new leg's
credit and --close-price as the buy-back cost.`,
		Example: `  wheel roll AMD --link 4 --premium 0.85 --strike 145 --exp 2024-09-20
  wheel roll AMD --link 4 --premium 3.20 --close-price 2.35 --exp 2024-09-20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			premium, hasPremium, err := decimalFlag(cmd, "premium")
			if err != nil {
				return err
			}
			strike, _, err := decimalFlag(cmd, "strike")
			if err != nil {
				return err
			}
			closePrice, _, err := decimalFlag(cmd, "close-price")
			if err != nil {
				return err
			}
			exp, err := dateFlag(cmd, "exp")
			if err != nil {
				return err
			}
			link, _ := cmd.Flags().GetInt64("link")
			contracts, _ := cmd.Flags().GetInt("contracts")
			if contracts == 0 {
				contracts = openContracts(cmd, app, link)
			}

			ev := models.TradeEvent{
				Ticker:        args[0],
				Kind:          models.KindRoll,
				Strike:        strike,
				Expiration:    exp,
				ClosePrice:    closePrice,
				Contracts:     contracts,
				LinkedTradeID: link,
			}
			if hasPremium {
				ev.Premium = decimal.NewNullDecimal(premium)
			}
			return record(cmd, app, ev)
		},
	}

	cmd.Flags().Int64("link", 0, "event id of the leg being rolled")
	cmd.Flags().String("premium", "", "roll premium per share")
	cmd.Flags().String("strike", "", "new strike (default: unchanged)")
	cmd.Flags().String("exp", "", "new expiration date (YYYY-MM-DD)")
	cmd.Flags().String("close-price", "", "buy-back price per share of the old leg")
	cmd.Flags().Int("contracts", 0, "contracts rolled (default: all open)")
	addTimestampFlag(cmd)
	cmd.MarkFlagRequired("link")
	cmd.MarkFlagRequired("premium")
	cmd.MarkFlagRequired("exp")

	return cmd
}

func newEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded trade events",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			ticker, _ := cmd.Flags().GetString("ticker")
			ticker = strings.ToUpper(strings.TrimSpace(ticker))

			events := make([]models.TradeEvent, 0)
			for _, ev := range t.Events() {
				if ticker == "" || ev.Ticker == ticker {
					events = append(events, ev)
				}
			}

			if output.IsJSON() {
				return output.JSON(events)
			}
			printEventTable(output, t, events)
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only events for this ticker")
	return cmd
}

func newEventCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "event <id>",
		Short: "Show one trade event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}
			ev, err := t.Event(id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(ev)
			}
			printEventDetail(output, ev)
			return nil
		},
	}
}

func printEventTable(output *Output, t *tracker.Tracker, events []models.TradeEvent) {
	if len(events) == 0 {
		output.Dim("No events recorded in %s mode.", t.Mode())
		return
	}
	table := NewTable(output, "ID", "DATE", "TICKER", "KIND", "STRIKE", "EXP", "QTY", "PREMIUM", "LINK")
	for _, ev := range events {
		strike, premium, link := "-", "-", "-"
		if !ev.Strike.IsZero() {
			strike = FormatPrice(ev.Strike)
		}
		if ev.Premium.Valid {
			premium = FormatPrice(ev.Premium.Decimal)
		}
		if ev.Kind == models.KindClose {
			premium = "-" + FormatPrice(ev.ClosePrice)
		}
		if ev.HasLink() {
			link = fmt.Sprintf("#%d", ev.LinkedTradeID)
		}
		table.AddRow(
			fmt.Sprintf("%d", ev.ID),
			FormatDate(ev.Timestamp),
			ev.Ticker,
			string(ev.Kind),
			strike,
			FormatDate(ev.Expiration),
			fmt.Sprintf("%d", ev.Contracts),
			premium,
			link,
		)
	}
	table.Render()
}

func printEventDetail(output *Output, ev models.TradeEvent) {
	output.Printf("  Ticker:     %s\n", ev.Ticker)
	output.Printf("  Kind:       %s\n", ev.Kind)
	output.Printf("  Time:       %s\n", FormatDateTime(ev.Timestamp))
	output.Printf("  Contracts:  %d\n", ev.Contracts)
	if ev.Kind.IsSale() {
		output.Printf("  Contract:   %s\n", FormatContract(ev.Ticker, ev.Kind.Side(), ev.Strike, ev.Expiration))
	}
	if ev.Kind == models.KindRoll {
		output.Printf("  New leg:    %s exp %s\n", FormatPrice(ev.Strike), FormatDate(ev.Expiration))
	}
	if ev.Premium.Valid {
		total := ev.Premium.Decimal.Mul(ev.ContractShares())
		output.Printf("  Premium:    %s/sh (%s)\n", FormatPrice(ev.Premium.Decimal), FormatMoney(total))
	}
	if !ev.ClosePrice.IsZero() {
		output.Printf("  Close:      %s/sh\n", FormatPrice(ev.ClosePrice))
	}
	if ev.Kind.IsAssignment() {
		output.Printf("  Shares:     %d @ %s\n", ev.Shares, FormatPrice(ev.CostBasisPerShare))
	}
	if ev.Delta != nil {
		output.Printf("  Delta:      %s\n", FormatDelta(ev.Delta))
	}
	if ev.HasLink() {
		output.Printf("  Linked to:  #%d\n", ev.LinkedTradeID)
	}
}
