package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scriptherd/scriptherd/pkg/client"
)

func newClient(flags *GlobalFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = strings.TrimRight(flags.APIUrl, "/")
	}
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	return client.New(cfg)
}

func createListCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List managed scripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scripts, err := newClient(flags).Scripts(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tKEY\tNAME\tSCHEDULE\tVENV\tRUNNING")
			for _, s := range scripts {
				sched := s.ScheduleDisplay
				if sched == "" {
					sched = "-"
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%v\n",
					s.Row, s.Key, s.Name, sched, s.HasVenv, s.Running)
			}
			return w.Flush()
		},
	}
}

func createRunningCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "Show running scripts with resource usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			running, err := newClient(flags).Running(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tPID\tSTARTED\tCPU%\tMEM(MB)")
			for _, r := range running {
				cpu, mem := "-", "-"
				if r.Resources != nil {
					cpu = fmt.Sprintf("%.1f", r.Resources.CPUPercent)
					mem = fmt.Sprintf("%.1f", r.Resources.MemoryMB)
				}
				_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					r.Key, r.PID, r.StartedAt.Format("15:04:05"), cpu, mem)
			}
			return w.Flush()
		},
	}
}

func createStartCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <key>",
		Short: "Launch a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).Start(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("started %s\n", args[0])
			return nil
		},
	}
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <key>",
		Short: "Stop a running script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("stopped %s\n", args[0])
			return nil
		},
	}
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <key>",
		Short: "Show the last known state of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient(flags).Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s (%s): %s", st.Key, st.DisplayName, st.State)
			if st.PID > 0 {
				cmd.Printf(" pid=%d", st.PID)
			}
			if !st.StoppedAt.IsZero() {
				cmd.Printf(" exit_code=%d", st.ExitCode)
			}
			cmd.Println()
			return nil
		},
	}
}

func createScheduleCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <key> <schedule>",
		Short: "Set a script's schedule",
		Long: `Set a script's schedule. Formats:

  off                      disable scheduling
  daily|HH:MM              every day at HH:MM
  interval|30m             every 30 minutes (bare numbers mean minutes)
  weekdays|HH:MM|mon,fri   at HH:MM on the listed weekdays`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).UpdateSchedule(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			cmd.Printf("schedule for %s set to %q\n", args[0], args[1])
			return nil
		},
	}
}

func createHistoryCommand(flags *GlobalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show recent runs of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := newClient(flags).History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTRIGGER\tPID\tSTARTED")
			for _, r := range runs {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
					r.ID, r.Trigger, r.PID, r.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}

func createSettingsCommand(flags *GlobalFlags) *cobra.Command {
	var python, chromedriver, chrome string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update daemon settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(flags)
			ctx := cmd.Context()
			if python == "" && chromedriver == "" && chrome == "" {
				s, err := c.Settings(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("PythonPath=%s\nChromeDriverPath=%s\nGoogleChromePath=%s\n",
					s.PythonPath, s.ChromeDriverPath, s.GoogleChromePath)
				return nil
			}
			s, err := c.Settings(ctx)
			if err != nil {
				return err
			}
			if python != "" {
				s.PythonPath = python
			}
			if chromedriver != "" {
				s.ChromeDriverPath = chromedriver
			}
			if chrome != "" {
				s.GoogleChromePath = chrome
			}
			if err := c.UpdateSettings(ctx, s); err != nil {
				return err
			}
			cmd.Println("settings updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&python, "python", "", "global Python interpreter path")
	cmd.Flags().StringVar(&chromedriver, "chromedriver", "", "ChromeDriver path")
	cmd.Flags().StringVar(&chrome, "chrome", "", "Google Chrome path")
	return cmd
}
