package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wheel-tracker/internal/server"
)

// addUtilityCommands adds export and server commands.
func addUtilityCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger to CSV or JSON",
		Long: `Export every recorded trade event of the selected mode, in timestamp
order. CSV is written to stdout unless --output names a file.`,
		Example: `  wheel export > ledger.csv
  wheel export --format json --output ledger.json
  wheel --mode demo export`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, err := app.Tracker(cmd)
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			format = strings.ToLower(format)
			if output.IsJSON() {
				format = "json"
			}
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown format %q (must be csv or json)", format)
			}

			outFile, _ := cmd.Flags().GetString("output")
			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("creating %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			}

			if format == "json" {
				if outFile == "" {
					return output.JSON(t.Events())
				}
				err = (&Output{writer: w, jsonMode: true}).JSON(t.Events())
			} else {
				err = t.WriteCSV(w)
			}
			if err != nil {
				return err
			}

			if outFile != "" && !output.IsJSON() {
				output.Success("✓ Exported %d events to %s", t.Len(), outFile)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "csv", "output format: csv or json")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	return cmd
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve both modes over HTTP under /api/{mode}/..., with /healthz and
Prometheus /metrics. Stops gracefully on interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.Registry(cmd.Context())
			if err != nil {
				return err
			}
			cfg := app.Config.ServerConfig()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
			return server.New(cfg, reg, app.Logger).ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}
