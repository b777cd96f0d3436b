package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "scriptherd",
		Short: "Python script launcher with scheduling and supervision",
		Long: `Scriptherd manages a directory of Python script folders: launching them
on demand or on per-script schedules, streaming their output, and stopping
them gracefully.

Examples:
  scriptherd serve                          # Start the daemon
  scriptherd list                           # List managed scripts
  scriptherd start daily-report             # Launch a script
  scriptherd schedule daily-report "daily|09:30"
  scriptherd stop daily-report`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8765)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		createServeCommand(flags),
		createListCommand(flags),
		createRunningCommand(flags),
		createStartCommand(flags),
		createStopCommand(flags),
		createStatusCommand(flags),
		createScheduleCommand(flags),
		createHistoryCommand(flags),
		createSettingsCommand(flags),
	)
	return root
}
