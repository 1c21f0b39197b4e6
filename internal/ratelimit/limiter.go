// Package ratelimit bounds concurrent calls to the language model service,
// caps dispatches per rolling window and retries transient failures.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agenthands/docgraph/internal/logger"
)

var ErrClosed = errors.New("rate limiter closed")

type Config struct {
	MaxConcurrent     int
	RequestsPerMinute int
	// Timeout bounds a single attempt. Zero or negative disables it.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// Window is the rolling window RequestsPerMinute applies to. Defaults to one minute.
	Window time.Duration
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type job struct {
	ctx     context.Context
	fn      func(context.Context) error
	done    chan error
	started bool
}

// Limiter is safe for concurrent use. All scheduling state is guarded by mu.
type Limiter struct {
	cfg Config

	mu     sync.Mutex
	active int
	queue  []*job
	window []time.Time
	wake   *time.Timer
	closed bool

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Limiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{cfg: cfg, sleep: sleepContext}
}

// Run queues fn and blocks until it has finished.
//
// If ctx ends while fn is still queued, fn is removed and ctx.Err() is
// returned. Once dispatched, fn runs on a context that ignores the caller's
// cancellation and is bounded only by the per-attempt timeout; Run then waits
// for the in-flight attempt and returns its outcome without further retries.
func (l *Limiter) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, j)
	l.dispatchLocked()
	l.mu.Unlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
	}

	l.mu.Lock()
	if !j.started {
		l.removeLocked(j)
		l.mu.Unlock()
		return ctx.Err()
	}
	l.mu.Unlock()
	return <-j.done
}

// Do runs fn through l and returns its value.
func Do[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	Active   int
	Queued   int
	InWindow int
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
	return Stats{Active: l.active, Queued: len(l.queue), InWindow: len(l.window)}
}

// Close fails every queued job with ErrClosed. In-flight jobs finish normally.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.wake != nil {
		l.wake.Stop()
		l.wake = nil
	}
	for _, j := range l.queue {
		j.done <- ErrClosed
	}
	l.queue = nil
}

func (l *Limiter) dispatchLocked() {
	now := time.Now()
	l.pruneLocked(now)

	for l.active < l.cfg.MaxConcurrent && len(l.queue) > 0 {
		if l.cfg.RequestsPerMinute > 0 && len(l.window) >= l.cfg.RequestsPerMinute {
			l.scheduleLocked(l.window[0].Add(l.cfg.Window).Sub(now))
			return
		}

		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]

		j.started = true
		l.active++
		l.window = append(l.window, now)
		go l.execute(j)
	}
}

// scheduleLocked arms the single wake timer. A timer already pending wins.
func (l *Limiter) scheduleLocked(wait time.Duration) {
	if l.wake != nil || l.closed {
		return
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	logger.Debug("[Limiter] window full, waiting", "wait", wait, "queued", len(l.queue))
	l.wake = time.AfterFunc(wait, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.wake = nil
		l.dispatchLocked()
	})
}

func (l *Limiter) pruneLocked(now time.Time) {
	i := 0
	for i < len(l.window) && now.Sub(l.window[i]) >= l.cfg.Window {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

func (l *Limiter) removeLocked(target *job) {
	for i, j := range l.queue {
		if j == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

func (l *Limiter) execute(j *job) {
	err := l.attempt(j)

	l.mu.Lock()
	l.active--
	l.dispatchLocked()
	l.mu.Unlock()

	j.done <- err
}

func (l *Limiter) attempt(j *job) error {
	ctx := context.WithoutCancel(j.ctx)
	attempts := 1 + l.cfg.MaxRetries

	var err error
	for n := 1; n <= attempts; n++ {
		err = l.call(ctx, j.fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if n == attempts {
			break
		}

		delay := l.Backoff(n)
		logger.Warn("[Limiter] retrying after transient error", "attempt", n, "delay", delay, "error", err)
		if werr := l.sleep(j.ctx, delay); werr != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}

func (l *Limiter) call(ctx context.Context, fn func(context.Context) error) error {
	if l.cfg.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

// Backoff is the delay before retry n, starting at 1.
func (l *Limiter) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return l.cfg.RetryDelay * time.Duration(1<<(n-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
