// Package pacing produces randomized pauses between chain actions so that
// requests do not follow a fixed cadence.
package pacing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gateway-fm/walletbot/internal/random"
	"github.com/gateway-fm/walletbot/internal/retry"
)

// Range is an inclusive interval of whole seconds.
type Range struct {
	Name string // label for logs and metrics
	Min  int
	Max  int
}

// Default ranges.
var (
	OperationPause = Range{Name: "operation", Min: 60, Max: 180}
	MintPause      = Range{Name: "mint", Min: 10, Max: 30}
	WalletPause    = Range{Name: "wallet", Min: 30, Max: 60}
)

// Validate checks that the range is non-negative and ordered.
func (r Range) Validate() error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("invalid %s pause range [%d, %d]", r.Name, r.Min, r.Max)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%ds", r.Min, r.Max)
}

// Config for creating a Pacer.
type Config struct {
	Source  random.Source
	Sleep   retry.SleepFunc
	Logger  *slog.Logger
	OnPause func(name string, d time.Duration) // optional, called before sleeping
}

// Pacer suspends the caller for random durations.
type Pacer struct {
	src     random.Source
	sleep   retry.SleepFunc
	logger  *slog.Logger
	onPause func(name string, d time.Duration)
}

// New creates a new Pacer.
func New(cfg Config) *Pacer {
	p := &Pacer{
		src:     cfg.Source,
		sleep:   cfg.Sleep,
		logger:  cfg.Logger,
		onPause: cfg.OnPause,
	}
	if p.src == nil {
		p.src = random.New()
	}
	if p.sleep == nil {
		p.sleep = retry.Sleep
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Pick returns a uniformly random whole number of seconds in [Min, Max].
func (p *Pacer) Pick(r Range) time.Duration {
	if r.Max <= r.Min {
		return time.Duration(r.Min) * time.Second
	}
	secs := r.Min + p.src.IntN(r.Max-r.Min+1)
	return time.Duration(secs) * time.Second
}

// Delay pauses for a random duration in r. Returns early only if ctx is done.
func (p *Pacer) Delay(ctx context.Context, r Range) error {
	d := p.Pick(r)
	p.logger.Info("pausing",
		slog.String("reason", r.Name),
		slog.Duration("duration", d),
	)
	if p.onPause != nil {
		p.onPause(r.Name, d)
	}
	return p.sleep(ctx, d)
}
