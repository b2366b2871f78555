package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/adapter/cli"
	"github.com/calloutapp/callout/adapter/cli/automation"
	"github.com/calloutapp/callout/internal/app"
	"github.com/calloutapp/callout/pkg/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development"}
	}

	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()

		cliApp := &cli.App{Container: container}
		if cfg.OrganizationID != "" {
			orgID, err := uuid.Parse(cfg.OrganizationID)
			if err != nil {
				logger.Error("invalid CALLOUT_ORG_ID", "error", err)
				os.Exit(1)
			}
			cliApp.CurrentOrgID = orgID
		}
		cli.SetApp(cliApp)
	}

	cli.AddCommand(automation.Cmd)

	cli.Execute()
}
