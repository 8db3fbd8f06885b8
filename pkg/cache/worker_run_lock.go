// Package cache holds the distributed run lock that keeps scheduled jobs from overlapping.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock names. Every job that writes the analysis store or relabels messages
// (batch, reprocess, eviction) runs under LockStore, so they never overlap.
const (
	LockStore  = "store"
	LockReport = "report"
)

// DefaultLockTTL bounds how long a crashed holder can block a job.
const DefaultLockTTL = 15 * time.Minute

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RunLock allows one run per job name at a time. The in-process lock is always taken;
// with a Redis client the lock is also shared across processes through SETNX.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration

	mu   sync.Mutex
	held map[string]bool
}

// NewRunLock creates a lock. client may be nil for single-process deployments.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{client: client, ttl: ttl, held: make(map[string]bool)}
}

func lockKey(job string) string {
	return fmt.Sprintf("triage:lock:%s", job)
}

// TryAcquire returns a release func when the lock was free, or ok=false when another run holds it.
func (l *RunLock) TryAcquire(ctx context.Context, job string) (release func(), ok bool, err error) {
	l.mu.Lock()
	if l.held[job] {
		l.mu.Unlock()
		return nil, false, nil
	}
	l.held[job] = true
	l.mu.Unlock()

	releaseLocal := func() {
		l.mu.Lock()
		delete(l.held, job)
		l.mu.Unlock()
	}

	if l.client == nil {
		return releaseLocal, true, nil
	}

	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, lockKey(job), token, l.ttl).Result()
	if err != nil {
		releaseLocal()
		return nil, false, fmt.Errorf("acquire lock %s: %w", job, err)
	}
	if !acquired {
		releaseLocal()
		return nil, false, nil
	}

	return func() {
		// context.Background: release must happen even when the run's ctx was cancelled
		if err := releaseScript.Run(context.Background(), l.client, []string{lockKey(job)}, token).Err(); err != nil {
			logger.WithError(err).Warn("[RunLock] failed to release %s", job)
		}
		releaseLocal()
	}, true, nil
}

// Run executes fn under the job lock. A held lock yields apperr.RunInFlight without running fn.
func (l *RunLock) Run(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	release, ok, err := l.TryAcquire(ctx, job)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.RunInFlight(job)
	}
	defer release()
	return fn(ctx)
}
