package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoposter/internal/app"
	"autoposter/internal/logger"

	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger endpoint and the in-process ticker",
	Long: `Start the HTTP trigger endpoint (GET/POST /api/cron/auto-post), /healthz and
/metrics. When RUN_SCHEDULE is set an in-process ticker also triggers runs.
Shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.L().Infof("Starting autoposter %s (collections=%v)", Version, cfg.PostCollections)

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Close(ctx); err != nil {
			logger.L().Errorf("Shutdown error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Serve(ctx)
}
