package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"triage_worker/core/port/in"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/cache"
	"triage_worker/pkg/logger"
)

// =============================================================================
// Scheduler - 배치 / 일일 리포트 / 데이터 정리 스케줄러
// =============================================================================

// Job names.
const (
	JobBatch  = "batch"
	JobReport = "report"
	JobEvict  = "evict"
)

// Clock is a wall clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ScheduleConfig holds the schedule.
type ScheduleConfig struct {
	BatchEvery time.Duration
	ReportAt   Clock
	EvictAt    Clock
	Location   *time.Location

	// JobTimeout bounds one run of each job
	JobTimeout map[string]time.Duration
}

// DefaultScheduleConfig returns the default schedule.
func DefaultScheduleConfig() *ScheduleConfig {
	return &ScheduleConfig{
		BatchEvery: 5 * time.Minute,
		ReportAt:   Clock{Hour: 17, Minute: 30},
		EvictAt:    Clock{Hour: 0, Minute: 30},
		Location:   time.Local,
		JobTimeout: map[string]time.Duration{
			JobBatch:  10 * time.Minute, // 50건 + LLM 호출
			JobReport: 5 * time.Minute,
			JobEvict:  time.Minute,
		},
	}
}

// Job is one scheduled task. Exactly one of Every and At is used.
type Job struct {
	Name  string
	Lock  string // run lock name, defaults to Name
	Every time.Duration
	At    *Clock
	Run   func(ctx context.Context) error
}

// Scheduler runs the triage jobs on their schedule. Each job runs under the RunLock,
// so a run that is still going when the next trigger fires is skipped.
type Scheduler struct {
	triage      in.TriageService
	report      in.ReportService
	maintenance in.MaintenanceService
	lock        *cache.RunLock
	cfg         *ScheduleConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   []Job
	now    func() time.Time
}

// NewScheduler creates a scheduler. lock may be nil for a process-local lock.
func NewScheduler(
	triage in.TriageService,
	report in.ReportService,
	maintenance in.MaintenanceService,
	lock *cache.RunLock,
	cfg *ScheduleConfig,
) *Scheduler {
	if cfg == nil {
		cfg = DefaultScheduleConfig()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if lock == nil {
		lock = cache.NewRunLock(nil, 0)
	}
	return &Scheduler{
		triage:      triage,
		report:      report,
		maintenance: maintenance,
		lock:        lock,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Jobs returns the job set Install starts.
func (s *Scheduler) Jobs() []Job {
	reportAt, evictAt := s.cfg.ReportAt, s.cfg.EvictAt
	return []Job{
		{
			Name:  JobBatch,
			Lock:  cache.LockStore,
			Every: s.cfg.BatchEvery,
			Run: func(ctx context.Context) error {
				_, err := s.triage.RunBatch(ctx)
				return err
			},
		},
		{
			Name: JobReport,
			Lock: cache.LockReport,
			At:   &reportAt,
			Run: func(ctx context.Context) error {
				_, err := s.report.GenerateDailyReport(ctx, false)
				return err
			},
		},
		{
			Name: JobEvict,
			Lock: cache.LockStore,
			At:   &evictAt,
			Run: func(ctx context.Context) error {
				_, err := s.maintenance.EvictOldData(ctx)
				return err
			},
		},
	}
}

// Install replaces any running job set with a fresh one. Calling it again is safe.
func (s *Scheduler) Install(ctx context.Context) []string {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.jobs = s.Jobs()

	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
		s.wg.Add(1)
		go s.loop(ctx, job)

		if job.At != nil {
			logger.Info("[Scheduler] %s installed: daily at %s (%s)", job.Name, job.At, s.cfg.Location)
		} else {
			logger.Info("[Scheduler] %s installed: every %v", job.Name, job.Every)
		}
	}
	return names
}

// Stop cancels all jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.jobs = nil
	s.mu.Unlock()

	if cancel != nil {
		logger.Info("[Scheduler] Stopping...")
		cancel()
	}
	s.wg.Wait()
}

// Installed returns the names of the running jobs.
func (s *Scheduler) Installed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	for {
		wait := s.nextDelay(job)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunJob(ctx, job)
		}
	}
}

func (s *Scheduler) nextDelay(job Job) time.Duration {
	if job.At == nil {
		if job.Every <= 0 {
			return 5 * time.Minute
		}
		return job.Every
	}
	now := s.now()
	return NextDaily(now, *job.At, s.cfg.Location).Sub(now)
}

// RunJob runs job once under its lock and timeout. Overlapping runs are skipped.
func (s *Scheduler) RunJob(ctx context.Context, job Job) {
	if timeout, ok := s.cfg.JobTimeout[job.Name]; ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lockName := job.Lock
	if lockName == "" {
		lockName = job.Name
	}

	start := time.Now()
	err := s.lock.Run(ctx, lockName, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperr.Internal(fmt.Sprintf("%s panicked: %v", job.Name, r))
			}
		}()
		return job.Run(ctx)
	})

	log := logger.WithField("job", job.Name).WithDuration(time.Since(start))
	switch {
	case apperr.HasCode(err, apperr.CodeRunInFlight):
		log.Info("[Scheduler] %s still running, skipped", job.Name)
	case err != nil:
		log.WithError(err).Error("[Scheduler] %s failed", job.Name)
	default:
		log.Debug("[Scheduler] %s done", job.Name)
	}
}

// NextDaily returns the first time strictly after now at which the wall clock in loc reads at.
func NextDaily(now time.Time, at Clock, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour, at.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}
