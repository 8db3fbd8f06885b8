// Package resilience provides the circuit breakers guarding upstream APIs.
package resilience

import (
	"errors"
	"time"

	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name                string        // Name for logging/metrics
	MaxRequests         uint32        // Requests allowed in half-open (default: 1)
	Interval            time.Duration // Counter reset interval while closed (default: 60s)
	Timeout             time.Duration // Time to wait before half-open (default: 30s)
	ConsecutiveFailures uint32        // Consecutive failures before opening (default: 5)

	// FailureRatio also opens the circuit once MinRequests have been seen. Zero disables it.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the defaults used for the classifier API.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// MailboxBreakerConfig is more tolerant of bursts: Gmail answers a burst of calls per thread.
func MailboxBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         3,                // Half-open 상태에서 허용할 요청 수
		Interval:            60 * time.Second, // Closed 상태에서 카운터 리셋 간격
		Timeout:             30 * time.Second, // Open 상태 유지 시간 (이후 Half-open)
		ConsecutiveFailures: 6,
		FailureRatio:        0.6, // 60% 이상 실패율 (최소 10회 요청)
		MinRequests:         10,
	}
}

// Breaker wraps gobreaker with pass-through errors: errors wrapped by Ignore are
// returned to the caller without counting against the circuit.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	metrics.RecordBreakerState(cfg.Name, int(gobreaker.StateClosed))

	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio <= 0 || counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			var ignored *ignoredError
			return err == nil || errors.As(err, &ignored)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerState(name, int(to))
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from, to)
		},
	})}
}

// Execute runs fn under the breaker. An open circuit returns gobreaker.ErrOpenState.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})

	var ignored *ignoredError
	if errors.As(err, &ignored) {
		err = ignored.err
	}
	v, _ := result.(T)
	return v, err
}

// Ignore marks err as a caller-side failure that must not trip the circuit.
func Ignore(err error) error {
	if err == nil {
		return nil
	}
	return &ignoredError{err: err}
}

type ignoredError struct {
	err error
}

func (e *ignoredError) Error() string { return e.err.Error() }
func (e *ignoredError) Unwrap() error { return e.err }

// IsOpen reports whether calls currently fail fast.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// IsOpenError reports whether err came from an open or saturated circuit.
func IsOpenError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
