// Package scheduler runs the wallet list in daily cycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gateway-fm/walletbot/internal/account"
	"github.com/gateway-fm/walletbot/internal/pacing"
	"github.com/gateway-fm/walletbot/internal/retry"
	"github.com/gateway-fm/walletbot/pkg/types"
)

// DefaultInterval is the target time between cycle starts.
const DefaultInterval = 24 * time.Hour

// ErrNoWallets is returned when the wallet list has no usable keys.
var ErrNoWallets = account.ErrNoWallets

// CycleError ends the current cycle without stopping the scheduler.
type CycleError struct {
	CycleID string
	Err     error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %s: %v", e.CycleID, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// WalletLoader returns the current wallet list and the number of dropped lines.
type WalletLoader func() ([]*account.Account, int, error)

// FileLoader reads the wallet list from path on every call.
func FileLoader(path string) WalletLoader {
	return func() ([]*account.Account, int, error) {
		return account.LoadWalletFile(path)
	}
}

// WalletRunner processes one wallet.
type WalletRunner interface {
	Run(ctx context.Context, index int, acct *account.Account) types.WalletReport
}

// Observer receives cycle progress. Implementations must not block.
type Observer interface {
	CycleStarted(c types.CycleReport)
	CycleFinished(c types.CycleReport)
	Sleeping(until time.Time, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) CycleStarted(types.CycleReport)    {}
func (nopObserver) CycleFinished(types.CycleReport)   {}
func (nopObserver) Sleeping(time.Time, time.Duration) {}

// Config for creating a Scheduler.
type Config struct {
	Loader      WalletLoader
	Runner      WalletRunner
	Pacer       *pacing.Pacer
	WalletPause pacing.Range
	Interval    time.Duration // default: 24h
	Observer    Observer
	Now         func() time.Time
	Sleep       retry.SleepFunc
	NewID       func() string // default: uuid.NewString
	Logger      *slog.Logger
}

// Scheduler runs cycles forever, one at a time.
type Scheduler struct {
	loader      WalletLoader
	runner      WalletRunner
	pacer       *pacing.Pacer
	walletPause pacing.Range
	interval    time.Duration
	observer    Observer
	now         func() time.Time
	sleep       retry.SleepFunc
	newID       func() string
	logger      *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		loader:      cfg.Loader,
		runner:      cfg.Runner,
		pacer:       cfg.Pacer,
		walletPause: cfg.WalletPause,
		interval:    cfg.Interval,
		observer:    cfg.Observer,
		now:         cfg.Now,
		sleep:       cfg.Sleep,
		newID:       cfg.NewID,
		logger:      cfg.Logger,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = retry.Sleep
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.pacer == nil {
		s.pacer = pacing.New(pacing.Config{Logger: s.logger})
	}
	return s
}

// SleepDuration returns how long to wait after a cycle that took elapsed,
// so that cycles start interval apart. It is never negative.
func SleepDuration(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// RunForever runs cycles until ctx is cancelled, which returns nil.
// Cycle failures are logged and retried next cycle; any other error is returned.
func (s *Scheduler) RunForever(ctx context.Context) error {
	for {
		report, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
		if err != nil {
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				return err
			}
			s.logger.Error("cycle failed", slog.String("cycle", report.ID), slog.String("error", err.Error()))
		}

		elapsed := report.CompletedAt.Sub(report.StartedAt)
		d := SleepDuration(s.interval, elapsed)
		next := report.CompletedAt.Add(d)

		s.logger.Info("waiting for next cycle",
			slog.Duration("sleep", d),
			slog.Time("next_cycle_at", next),
		)
		s.observer.Sleeping(next, d)

		if err := s.sleep(ctx, d); err != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// RunCycle loads the wallet list fresh and processes every wallet in file order.
// Load failures return a *CycleError; cancellation returns ctx.Err().
func (s *Scheduler) RunCycle(ctx context.Context) (types.CycleReport, error) {
	report := types.CycleReport{
		ID:        s.newID(),
		Status:    types.CycleRunning,
		StartedAt: s.now(),
	}
	logger := s.logger.With(slog.String("cycle", report.ID))

	logger.Info(strings.Repeat("=", 50))
	logger.Info("cycle started", slog.Time("started_at", report.StartedAt))

	accounts, dropped, err := s.loader()
	if err == nil && len(accounts) == 0 {
		err = ErrNoWallets
	}
	if err != nil {
		cycleErr := &CycleError{CycleID: report.ID, Err: err}
		s.observer.CycleStarted(report)
		s.finish(&report, types.CycleFailed, cycleErr.Error())
		return report, cycleErr
	}
	if dropped > 0 {
		logger.Debug("dropped invalid wallet lines", slog.Int("dropped", dropped))
	}

	report.WalletCount = len(accounts)
	logger.Info("processing wallets", slog.Int("count", len(accounts)))
	s.observer.CycleStarted(report)

	for i, acct := range accounts {
		if ctx.Err() != nil {
			break
		}
		logger.Info(fmt.Sprintf("wallet %d/%d", i+1, len(accounts)), slog.String("address", acct.Address.Hex()))

		w := s.runner.Run(ctx, i, acct)
		report.AddWallet(w)

		if i < len(accounts)-1 && ctx.Err() == nil {
			_ = s.pacer.Delay(ctx, s.walletPause)
		}
	}

	if err := ctx.Err(); err != nil {
		s.finish(&report, types.CycleFailed, "interrupted: "+err.Error())
		return report, err
	}

	s.finish(&report, types.CycleCompleted, "")
	logger.Info("cycle completed",
		slog.Int("wallets", report.WalletsProcessed),
		slog.Int("succeeded", report.OperationsSucceeded),
		slog.Int("failed", report.OperationsFailed),
		slog.Int("skipped", report.OperationsSkipped),
		slog.Duration("duration", report.CompletedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *Scheduler) finish(report *types.CycleReport, status types.CycleStatus, errMsg string) {
	end := s.now()
	next := end.Add(SleepDuration(s.interval, end.Sub(report.StartedAt)))

	report.Status = status
	report.ErrorMessage = errMsg
	report.CompletedAt = &end
	report.NextCycleAt = &next
	s.observer.CycleFinished(*report)
}
