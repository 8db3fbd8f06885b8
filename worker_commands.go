package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	httpadapter "triage_worker/adapter/in/http"
	"triage_worker/core/domain"
	"triage_worker/core/service/analysis"
	"triage_worker/infra/middleware"
	"triage_worker/internal/bootstrap"
	"triage_worker/pkg/cache"
	"triage_worker/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the admin API until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w, cleanup, err := bootstrap.NewWorker(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		errCh := make(chan error, 1)
		go func() { errCh <- w.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)
		if err := w.Stop(shutdownTimeout); err != nil {
			logger.Warn("Worker shutdown: %v", err)
			return err
		}
		logger.Info("Worker shut down gracefully")
		return nil
	},
}

var runBatchCmd = &cobra.Command{
	Use:   "run-batch",
	Short: "Triage unprocessed messages once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDependencies(cmd, func(deps *bootstrap.Dependencies) error {
			var stats *domain.RunStatistics
			err := deps.Lock.Run(cmd.Context(), cache.LockStore, func(ctx context.Context) error {
				var err error
				stats, err = deps.Triage.RunBatch(ctx)
				return err
			})
			if err != nil {
				return err
			}
			return printRunStatistics(cmd.OutOrStdout(), stats)
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the daily report and send it to Slack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return withDependencies(cmd, func(deps *bootstrap.Dependencies) error {
			var report *domain.DailyReport
			err := deps.Lock.Run(cmd.Context(), cache.LockReport, func(ctx context.Context) error {
				var err error
				report, err = deps.Report.GenerateDailyReport(ctx, dryRun)
				return err
			})
			if err != nil {
				return err
			}
			if report == nil {
				printNotice(cmd.OutOrStdout(), "Weekend, no report generated")
				return nil
			}
			return printReport(cmd.OutOrStdout(), report, deps.Location)
		})
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-run triage over every message received on one day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dayStr, _ := cmd.Flags().GetString("day")
		return withDependencies(cmd, func(deps *bootstrap.Dependencies) error {
			day, err := time.ParseInLocation(analysis.DayLayout, dayStr, deps.Location)
			if err != nil {
				return fmt.Errorf("invalid --day %q, want yyyy-MM-dd", dayStr)
			}
			var stats *domain.RunStatistics
			err = deps.Lock.Run(cmd.Context(), cache.LockStore, func(ctx context.Context) error {
				var err error
				stats, err = deps.Triage.ReprocessDay(ctx, day)
				return err
			})
			if err != nil {
				return err
			}
			return printRunStatistics(cmd.OutOrStdout(), stats)
		})
	},
}

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Delete stored analyses older than yesterday",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDependencies(cmd, func(deps *bootstrap.Dependencies) error {
			var evicted int
			err := deps.Lock.Run(cmd.Context(), cache.LockStore, func(ctx context.Context) error {
				var err error
				evicted, err = deps.Analyses.EvictOldData(ctx)
				return err
			})
			if err != nil {
				return err
			}
			printNotice(cmd.OutOrStdout(), fmt.Sprintf("Evicted %d day(s) of analyses", evicted))
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate stored analyses for the given days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dates, _ := cmd.Flags().GetString("dates")
		return withDependencies(cmd, func(deps *bootstrap.Dependencies) error {
			stats, err := deps.Report.Statistics(cmd.Context(), httpadapter.SplitDates(dates))
			if err != nil {
				return err
			}
			return printStatistics(cmd.OutOrStdout(), stats)
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin API bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AdminJWTSecret == "" {
			return errors.New("ADMIN_JWT_SECRET is not set")
		}
		token, err := middleware.IssueToken(cfg.AdminJWTSecret, subject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("dry-run", false, "Build the report without sending or archiving it")

	reprocessCmd.Flags().String("day", "", "Day to reprocess (yyyy-MM-dd)")
	_ = reprocessCmd.MarkFlagRequired("day")

	statsCmd.Flags().String("dates", "", "Comma separated days (yyyy-MM-dd), default today")

	tokenCmd.Flags().String("subject", "admin", "Token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
}
