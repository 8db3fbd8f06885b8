package in

import (
	"context"
	"time"

	"triage_worker/core/domain"
)

// TriageService processes inbox messages.
type TriageService interface {
	// RunBatch processes every recent inbox message lacking the checked label.
	RunBatch(ctx context.Context) (*domain.RunStatistics, error)

	// ReprocessDay clears markers and stored analyses for day and processes all of its messages again.
	ReprocessDay(ctx context.Context, day time.Time) (*domain.RunStatistics, error)

	// ProcessMessage runs one message through the pipeline and reports whether a notification was sent.
	ProcessMessage(ctx context.Context, msg *domain.Message) (bool, error)
}

// ReportService builds the daily statistics report.
type ReportService interface {
	// GenerateDailyReport returns nil on weekends. dryRun skips delivery.
	GenerateDailyReport(ctx context.Context, dryRun bool) (*domain.DailyReport, error)

	// Statistics aggregates stored analyses for explicit dates, without label counters.
	Statistics(ctx context.Context, dates []string) (*domain.DailyStatistics, error)
}

// MaintenanceService applies analysis retention.
type MaintenanceService interface {
	EvictOldData(ctx context.Context) (int, error)
}
