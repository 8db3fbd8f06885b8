package out

import (
	"context"
	"time"

	"triage_worker/core/domain"
)

// ReportArchive keeps delivered daily reports for later inspection.
type ReportArchive interface {
	SaveReport(ctx context.Context, report *domain.DailyReport) error
	GetReport(ctx context.Context, day time.Time) (*domain.DailyReport, error)
}
