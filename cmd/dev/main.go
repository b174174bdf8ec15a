package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/eeprom/cmd/dev/cmd"
)

var debug bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "dev",
		Short: "build/test/lint tool for the eeprom project",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charm := log.NewWithOptions(os.Stdout, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.DateTime,
				Prefix:          "dev",
			})
			charm.SetColorProfile(termenv.TrueColor)
			charm.SetLevel(log.InfoLevel)
			if debug {
				charm.SetLevel(log.DebugLevel)
			}
			slog.SetDefault(slog.New(charm))
		},
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(cmd.BuildCmd())
	rootCmd.AddCommand(cmd.TestCmd())
	rootCmd.AddCommand(cmd.LintCmd())
	rootCmd.AddCommand(cmd.IntegrationTestCmd())

	err := rootCmd.Execute()
	if err != nil {
		slog.Error("unexpected error", "error", err)
		os.Exit(1)
	}
}
