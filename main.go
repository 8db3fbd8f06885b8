package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Asia/Taipei on minimal images

	"triage_worker/config"
	"triage_worker/internal/bootstrap"
	"triage_worker/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "triage-worker",
	Short:         "Mailbox triage worker: keyword and AI classification, Slack alerts, daily reports",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./triage.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runBatchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(evictCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Output:  os.Stderr,
		Service: "triage-worker",
		Console: cfg.LogFormat == "console",
	})
	return cfg, nil
}

// withDependencies runs fn over freshly wired dependencies and closes them afterwards.
func withDependencies(cmd *cobra.Command, fn func(deps *bootstrap.Dependencies) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	deps, cleanup, err := bootstrap.NewDependencies(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(deps)
}
