package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"triage_worker/config"
	"triage_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// Worker is the long-running process: the scheduler plus the admin API.
type Worker struct {
	deps   *Dependencies
	app    *fiber.App
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.AdminAddr != "" {
		w.app = NewAPI(deps)
	} else {
		logger.Info("ADMIN_ADDR is empty, admin API disabled")
	}
	return w, cleanup, nil
}

// Start installs the schedule and blocks until Stop is called or the API fails.
func (w *Worker) Start() error {
	installed := w.deps.Scheduler.Install(w.ctx)
	logger.Info("Scheduler started with jobs: %v", installed)

	errCh := make(chan error, 1)
	if w.app != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			addr := w.deps.Config.AdminAddr
			logger.Info("Starting admin API on %s", addr)
			if err := w.app.Listen(addr); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-w.ctx.Done():
		return nil
	case err := <-errCh:
		w.deps.Scheduler.Stop()
		return err
	}
}

// Stop shuts the API down and waits for running jobs, bounded by timeout.
func (w *Worker) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if w.app != nil {
		if err := w.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		w.deps.Scheduler.Stop()
		w.cancel()
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, errors.New("worker shutdown timed out"))
	}
	return errors.Join(errs...)
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
