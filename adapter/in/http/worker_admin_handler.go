package http

import (
	"context"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/core/service/analysis"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/cache"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler exposes manual triggers for the scheduled jobs.
type AdminHandler struct {
	triage      in.TriageService
	report      in.ReportService
	maintenance in.MaintenanceService
	archive     out.ReportArchive // optional
	lock        *cache.RunLock
	loc         *time.Location
}

func NewAdminHandler(
	triage in.TriageService,
	report in.ReportService,
	maintenance in.MaintenanceService,
	archive out.ReportArchive,
	lock *cache.RunLock,
	loc *time.Location,
) *AdminHandler {
	if lock == nil {
		lock = cache.NewRunLock(nil, 0)
	}
	if loc == nil {
		loc = time.Local
	}
	return &AdminHandler{
		triage:      triage,
		report:      report,
		maintenance: maintenance,
		archive:     archive,
		lock:        lock,
		loc:         loc,
	}
}

// Register registers admin routes.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Post("/batch", h.RunBatch)
	router.Post("/report", h.GenerateReport)
	router.Post("/reprocess", h.Reprocess)
	router.Post("/evict", h.Evict)
	router.Get("/stats", h.Stats)
	router.Get("/reports/:day", h.GetReport)
}

// =============================================================================
// Handlers
// =============================================================================

func (h *AdminHandler) RunBatch(c *fiber.Ctx) error {
	var stats *domain.RunStatistics
	err := h.lock.Run(c.UserContext(), cache.LockStore, func(ctx context.Context) error {
		var err error
		stats, err = h.triage.RunBatch(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return SuccessResponse(c, stats)
}

// GenerateReport builds the daily report; ?dry_run=true skips delivery.
func (h *AdminHandler) GenerateReport(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dry_run", false)

	var report *domain.DailyReport
	err := h.lock.Run(c.UserContext(), cache.LockReport, func(ctx context.Context) error {
		var err error
		report, err = h.report.GenerateDailyReport(ctx, dryRun)
		return err
	})
	if err != nil {
		return err
	}
	if report == nil {
		return SuccessResponse(c, fiber.Map{"skipped": true, "reason": "weekend"})
	}
	return SuccessResponse(c, report)
}

// Reprocess reruns the pipeline for ?day=yyyy-MM-dd.
func (h *AdminHandler) Reprocess(c *fiber.Ctx) error {
	day, err := h.parseDay(c.Query("day"))
	if err != nil {
		return err
	}

	var stats *domain.RunStatistics
	err = h.lock.Run(c.UserContext(), cache.LockStore, func(ctx context.Context) error {
		var err error
		stats, err = h.triage.ReprocessDay(ctx, day)
		return err
	})
	if err != nil {
		return err
	}
	return SuccessResponse(c, stats)
}

func (h *AdminHandler) Evict(c *fiber.Ctx) error {
	var evicted int
	err := h.lock.Run(c.UserContext(), cache.LockStore, func(ctx context.Context) error {
		var err error
		evicted, err = h.maintenance.EvictOldData(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"evicted": evicted})
}

// Stats aggregates ?dates=yyyy-MM-dd,... without touching the mailbox.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.report.Statistics(c.UserContext(), SplitDates(c.Query("dates")))
	if err != nil {
		return err
	}
	return SuccessResponse(c, stats)
}

// GetReport returns an archived daily report.
func (h *AdminHandler) GetReport(c *fiber.Ctx) error {
	if h.archive == nil {
		return apperr.NotFound("report archive")
	}
	day, err := h.parseDay(c.Params("day"))
	if err != nil {
		return err
	}

	report, err := h.archive.GetReport(c.UserContext(), day)
	if err != nil {
		return apperr.StoreError("get report", err)
	}
	if report == nil {
		return apperr.NotFound("report for " + c.Params("day"))
	}
	return SuccessResponse(c, report)
}

func (h *AdminHandler) parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperr.BadRequest("day is required (yyyy-MM-dd)")
	}
	day, err := time.ParseInLocation(analysis.DayLayout, s, h.loc)
	if err != nil {
		return time.Time{}, apperr.BadRequest("invalid day " + s + ", want yyyy-MM-dd")
	}
	return day, nil
}

// SplitDates parses a comma separated date list, dropping blanks.
func SplitDates(s string) []string {
	var dates []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dates = append(dates, d)
		}
	}
	return dates
}
