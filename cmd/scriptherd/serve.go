package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scriptherd/scriptherd/internal/config"
	"github.com/scriptherd/scriptherd/internal/controller"
	"github.com/scriptherd/scriptherd/internal/logger"
	"github.com/scriptherd/scriptherd/internal/server"
)

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scriptherd daemon",
		Long: `Run the daemon: discover scripts, apply their schedules, restore the
previous session's running scripts, and serve the HTTP API until SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(flags.ConfigPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	log := logger.Setup(cfg.Log)

	ctrl, err := controller.New(controller.Config{
		ScriptsDir:   cfg.ScriptsDir,
		SettingsPath: cfg.SettingsPath,
		SessionPath:  cfg.SessionPath,
		HistoryDSN:   cfg.HistoryDSN,
		ScriptLogs:   cfg.ScriptLogs,
		PollInterval: cfg.PollInterval,
	}, controller.Events{}, log)
	if err != nil {
		return err
	}
	if err := ctrl.Run(); err != nil {
		return err
	}

	srv := server.NewServer(cfg.Listen, cfg.BasePath, ctrl)
	log.Info("scriptherd daemon started", "listen", cfg.Listen, "scripts_dir", cfg.ScriptsDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown", "error", err)
	}
	ctrl.Shutdown()
	log.Info("daemon stopped")
	return nil
}
