// Command schedctl runs operational tasks against a scheduling deployment:
// schema migrations, demo data seeding and token minting.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "schedctl",
		Short:         "Scheduling API administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "directory containing config.yaml")

	load := func() (*config.Config, error) {
		var paths []string
		if configPath != "" {
			paths = append(paths, configPath)
		}
		cfg, err := config.LoadConfig(paths...)
		if err != nil {
			return nil, err
		}
		appLog := logger.NewLogger(&logger.Config{
			Level:     logger.ParseLevel(cfg.Log.Level),
			Format:    cfg.Log.Format,
			Component: "schedctl",
		})
		log.Logger = *appLog.Zerolog()
		return cfg, nil
	}

	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(seedCmd(load))
	rootCmd.AddCommand(tokenCmd(load))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)
