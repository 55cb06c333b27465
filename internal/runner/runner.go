// Package runner executes the operation catalog for a single wallet.
package runner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gateway-fm/walletbot/internal/account"
	"github.com/gateway-fm/walletbot/internal/operation"
	"github.com/gateway-fm/walletbot/internal/random"
	"github.com/gateway-fm/walletbot/internal/retry"
	"github.com/gateway-fm/walletbot/pkg/types"
)

// Observer receives wallet progress. Implementations must not block.
type Observer interface {
	WalletStarted(w types.WalletReport)
	OperationFinished(op types.OperationReport)
	WalletFinished(w types.WalletReport)
}

type nopObserver struct{}

func (nopObserver) WalletStarted(types.WalletReport)        {}
func (nopObserver) OperationFinished(types.OperationReport) {}
func (nopObserver) WalletFinished(types.WalletReport)       {}

// Config for creating a Runner.
type Config struct {
	Operations []operation.Operation
	Retry      *retry.Executor // call-site retry around each operation
	Source     random.Source
	Observer   Observer
	Now        func() time.Time
	Logger     *slog.Logger
}

// Runner runs every operation once per wallet, in a fresh random order.
type Runner struct {
	ops      []operation.Operation
	retry    *retry.Executor
	src      random.Source
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a new Runner.
func New(cfg Config) *Runner {
	r := &Runner{
		ops:      cfg.Operations,
		retry:    cfg.Retry,
		src:      cfg.Source,
		observer: cfg.Observer,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if r.retry == nil {
		r.retry = retry.New(retry.Config{Logger: cfg.Logger})
	}
	if r.src == nil {
		r.src = random.New()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes the shuffled catalog for acct sequentially. A failing
// operation never stops the remaining ones; only ctx cancellation does.
func (r *Runner) Run(ctx context.Context, index int, acct *account.Account) types.WalletReport {
	ops := random.Shuffle(r.src, r.ops)

	order := make([]string, len(ops))
	for i, op := range ops {
		order[i] = op.Name
	}

	report := types.WalletReport{
		Index:     index,
		Address:   acct.Address.Hex(),
		Order:     order,
		StartedAt: r.now(),
	}

	logger := r.logger.With(slog.Int("wallet", index+1), slog.String("address", report.Address))
	logger.Info("execution order", slog.String("order", strings.Join(order, " -> ")))
	r.observer.WalletStarted(report)

	for i, op := range ops {
		if ctx.Err() != nil {
			logger.Warn("wallet run interrupted", slog.Int("completed", i), slog.Int("total", len(ops)))
			break
		}

		logger.Info("running operation", slog.Int("step", i+1), slog.String("operation", op.Name))
		opReport := r.runOperation(ctx, index, acct, op)
		if opReport.Status != types.OperationSucceeded {
			logger.Info("operation skipped",
				slog.String("operation", op.Name),
				slog.String("status", string(opReport.Status)),
				slog.String("error", opReport.Error),
			)
		}

		report.Operations = append(report.Operations, opReport)
		report.Count(opReport)
		r.observer.OperationFinished(opReport)
	}

	report.FinishedAt = r.now()
	logger.Info("wallet finished",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	r.observer.WalletFinished(report)
	return report
}

func (r *Runner) runOperation(ctx context.Context, index int, acct *account.Account, op operation.Operation) types.OperationReport {
	rep := types.OperationReport{
		WalletIndex: index,
		Wallet:      acct.Address.Hex(),
		Operation:   op.Name,
		StartedAt:   r.now(),
	}

	out := retry.Execute(ctx, r.retry, op.Name, func(ctx context.Context) (*operation.Result, error) {
		return op.Action(ctx, acct)
	})

	switch {
	case out.Success && out.Value != nil:
		res := out.Value
		rep.Status = res.Status
		rep.Attempts = res.Attempts
		rep.TxHashes = res.TxHashes
		if res.Err != nil {
			rep.Error = res.Err.Error()
		}
	case out.Success:
		rep.Status = types.OperationSucceeded
		rep.Attempts = out.Attempts
	case out.Skipped:
		rep.Status = types.OperationSkipped
		rep.Attempts = out.Attempts
		rep.Error = out.Err.Error()
	default:
		rep.Status = types.OperationFailed
		rep.Attempts = out.Attempts
		if out.Err != nil {
			rep.Error = out.Err.Error()
		}
	}

	rep.FinishedAt = r.now()
	return rep
}
