package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCommandsCmd(rootCmd))
	rootCmd.AddCommand(newExamplesCmd())
}

type commandGroup struct {
	name     string
	commands []string
}

var commandGroups = []commandGroup{
	{"Recording", []string{"sell-put", "sell-call", "assign", "close", "roll"}},
	{"Ledger", []string{"events", "event", "export"}},
	{"Reports", []string{"positions", "legs", "premium", "income", "tickers", "top", "rank", "value", "snapshot"}},
	{"Market Data", []string{"quote", "bars", "search", "market"}},
	{"System", []string{"serve", "config", "version"}},
}

func newCommandsCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			output.Bold("Wheel Tracker Commands")
			output.Println()

			for _, group := range commandGroups {
				output.Printf("%s\n", output.Cyan(group.name))
				for _, name := range group.commands {
					sub, _, err := rootCmd.Find([]string{name})
					if err != nil || sub == rootCmd {
						continue
					}
					output.Printf("  %-12s %s\n", name, sub.Short)
				}
				output.Println()
			}
			output.Dim("Add --mode demo to any command to use the sample data set.")
			return nil
		},
	}
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show a worked wheel cycle",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			output.Bold("A full wheel on AAPL")
			output.Println()

			steps := []struct {
				title string
				lines []string
			}{
				{"1. Sell a cash-secured put", []string{
					"wheel sell-put AAPL --strike 180 --exp 2024-07-19 --premium 2.10",
				}},
				{"2. Get assigned (or let it expire; expiry needs no event)", []string{
					"wheel assign put AAPL --shares 100 --price 180",
				}},
				{"3. Sell covered calls against the shares", []string{
					"wheel sell-call AAPL --strike 185 --exp 2024-08-16 --premium 1.80",
				}},
				{"4. Roll a threatened call out in time", []string{
					"wheel legs",
					"wheel roll AAPL --link 3 --premium 0.40 --strike 190 --exp 2024-09-20",
				}},
				{"5. Shares called away", []string{
					"wheel assign call AAPL --shares 100 --price 190",
				}},
				{"Review", []string{
					"wheel positions AAPL",
					"wheel premium",
					"wheel income --by month",
					"wheel rank --from 2024-01-01",
				}},
			}
			for _, s := range steps {
				output.Printf("%s\n", output.Cyan(s.title))
				output.Printf("  %s\n\n", strings.Join(s.lines, "\n  "))
			}
		},
	}
}
