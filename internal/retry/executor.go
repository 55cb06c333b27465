// Package retry runs fallible actions with bounded retries and exponential backoff.
//
// This is the only place retry policy lives. Actions signal "not applicable
// to this wallet" by returning a SkippableError, which stops retrying
// immediately without any backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Defaults match the bot's production pacing.
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = 30 * time.Second
	DefaultBackoffFactor = 2.0

	// MaxDelay caps a single backoff sleep.
	MaxDelay = time.Hour
)

// SkippableError marks a precondition that is not met for this wallet
// (e.g. zero token balance). It is logged as a skip, not a failure.
type SkippableError struct {
	Reason string
}

func (e *SkippableError) Error() string {
	return "skip: " + e.Reason
}

// Skip returns a SkippableError with a formatted reason.
func Skip(format string, args ...any) error {
	return &SkippableError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip reports whether err (or anything it wraps) is a SkippableError.
func IsSkip(err error) bool {
	var skip *SkippableError
	return errors.As(err, &skip)
}

// Outcome is the result of one Execute call. Never mutated after creation.
type Outcome[T any] struct {
	Success  bool
	Value    T
	Err      error
	Skipped  bool
	Attempts int
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config for creating an Executor.
type Config struct {
	MaxRetries    int           // Total attempts (default: 3)
	InitialDelay  time.Duration // Delay before the second attempt (default: 30s)
	BackoffFactor float64       // Delay multiplier after each failure (default: 2)
	Logger        *slog.Logger
	Sleep         SleepFunc // Overridable for tests
}

// Executor holds the retry policy.
type Executor struct {
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	logger        *slog.Logger
	sleep         SleepFunc
}

// New creates an Executor, filling zero values with defaults.
func New(cfg Config) *Executor {
	e := &Executor{
		maxRetries:    cfg.MaxRetries,
		initialDelay:  cfg.InitialDelay,
		backoffFactor: cfg.BackoffFactor,
		logger:        cfg.Logger,
		sleep:         cfg.Sleep,
	}
	if e.maxRetries <= 0 {
		e.maxRetries = DefaultMaxRetries
	}
	if e.initialDelay <= 0 {
		e.initialDelay = DefaultInitialDelay
	}
	if e.backoffFactor < 1 {
		e.backoffFactor = DefaultBackoffFactor
	}
	e.initialDelay = min(e.initialDelay, MaxDelay)
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sleep == nil {
		e.sleep = Sleep
	}
	return e
}

// MaxRetries returns the configured attempt limit.
func (e *Executor) MaxRetries() int {
	return e.maxRetries
}

// Delays returns the backoff sequence the executor would sleep through if
// every attempt failed: d, d*b, d*b^2, ... (MaxRetries-1 entries).
func (e *Executor) Delays() []time.Duration {
	delays := make([]time.Duration, 0, e.maxRetries-1)
	delay := e.initialDelay
	for i := 1; i < e.maxRetries; i++ {
		delays = append(delays, delay)
		delay = e.next(delay)
	}
	return delays
}

// next grows delay by the backoff factor, saturating at MaxDelay.
func (e *Executor) next(delay time.Duration) time.Duration {
	grown := float64(delay) * e.backoffFactor
	if grown >= float64(MaxDelay) {
		return MaxDelay
	}
	return time.Duration(grown)
}

// Execute runs action until it succeeds, returns a SkippableError, or the
// attempt budget is exhausted. It never panics on action errors and never
// returns an error: everything is captured in the Outcome.
func Execute[T any](ctx context.Context, e *Executor, label string, action func(ctx context.Context) (T, error)) Outcome[T] {
	var zero T
	delay := e.initialDelay

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		value, err := action(ctx)
		if err == nil {
			return Outcome[T]{Success: true, Value: value, Attempts: attempt}
		}

		if IsSkip(err) {
			e.logger.Info("skipping",
				slog.String("operation", label),
				slog.String("reason", err.Error()),
			)
			return Outcome[T]{Err: err, Skipped: true, Attempts: attempt}
		}

		e.logger.Warn("attempt failed",
			slog.String("operation", label),
			slog.Int("attempt", attempt),
			slog.Int("maxRetries", e.maxRetries),
			slog.String("error", err.Error()),
		)

		if attempt == e.maxRetries {
			e.logger.Error("max retries reached",
				slog.String("operation", label),
				slog.String("error", err.Error()),
			)
			return Outcome[T]{Value: zero, Err: err, Attempts: attempt}
		}

		e.logger.Debug("backing off",
			slog.String("operation", label),
			slog.Duration("delay", delay),
		)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return Outcome[T]{Err: fmt.Errorf("%s: retry interrupted: %w", label, sleepErr), Attempts: attempt}
		}
		delay = e.next(delay)
	}

	return Outcome[T]{Err: fmt.Errorf("%s: no attempts made", label)}
}
