package core

// limiter.go bounds how many parse/process jobs run at once.
//
// Each job holds one slot of a buffered-channel semaphore for its whole
// duration. When every slot is taken, new jobs wait up to maxWait and then
// fail with ErrTooManyRequests. WaitForIdle lets shutdown wait for running
// jobs to finish.

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrent is the default number of parallel jobs.
const DefaultMaxConcurrent = 5

// DefaultMaxWait is how long a job waits for a slot before being rejected.
const DefaultMaxWait = 30 * time.Second

// ProcessLimiter is a counting semaphore for expensive jobs.
type ProcessLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
	served  atomic.Int64
}

// NewProcessLimiter allows at most maxConcurrent jobs. Zero or negative
// arguments fall back to the defaults.
func NewProcessLimiter(maxConcurrent int, maxWait time.Duration) *ProcessLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &ProcessLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait. The caller must Release
// after a nil return.
func (l *ProcessLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no slot within %s", ErrTooManyRequests, l.maxWait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *ProcessLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ProcessLimiter) Release() {
	l.active.Add(-1)
	l.served.Add(1)
	<-l.slots
}

// Do runs fn while holding a slot.
func (l *ProcessLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Active returns the number of running jobs.
func (l *ProcessLimiter) Active() int {
	return int(l.active.Load())
}

// WaitForIdle blocks until no job is running or ctx is done.
func (l *ProcessLimiter) WaitForIdle(ctx context.Context) error {
	if l.Active() == 0 {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.Active() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Served        int64 `json:"served"`
}

// Status returns the current limiter state for health checks.
func (l *ProcessLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.Active(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
		Served:        l.served.Load(),
	}
}
