package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/setevik/autoheal/internal/reporter"
)

var testNtfyCmd = &cobra.Command{
	Use:   "test-ntfy",
	Short: "Send a test notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level, cfg.Log.JSON)

		if cfg.Ntfy.URL == "" {
			return errors.New("ntfy.url not configured")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := reporter.NewNtfy(cfg, nil).Send(ctx, reporter.TestTask(), 0); err != nil {
			return fmt.Errorf("sending test notification: %w", err)
		}
		fmt.Println("Test notification sent successfully.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autoheal", version)
	},
}

func init() {
	rootCmd.AddCommand(testNtfyCmd)
	rootCmd.AddCommand(versionCmd)
}
