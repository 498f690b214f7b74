package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/de-tools/variance-atlas/pkg/runtime/app"
	"github.com/de-tools/variance-atlas/pkg/server"
	"github.com/de-tools/variance-atlas/pkg/services/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:          "web",
		Short:        "Start the web server for Variance Atlas",
		SilenceUsage: true,
		RunE:         runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the configuration file (default ./atlas.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file loaded: %v\n", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close application")
		}
	}()

	for _, r := range cfg.Reports {
		logger.Info().Msgf("Serving report `%s` from table `%s`", r.Name, r.Table)
	}

	webAPI := server.NewWebAPI(logger, server.Config{
		Addr:            cfg.Server.Addr(),
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Commentary: a.Commentary,
			Runs:       a.Ingest,
		},
	})

	return webAPI.Start(ctx)
}
