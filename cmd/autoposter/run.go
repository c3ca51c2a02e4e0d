package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"autoposter/internal/app"
	"autoposter/internal/logger"

	"github.com/spf13/cobra"
)

// runCmd performs a single run and prints the summary
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one auto-post pass and print the summary as JSON",
	RunE:  runHandler,
}

func runHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

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

	summary, err := application.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("auto-post run failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
