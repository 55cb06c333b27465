// Package status keeps the live view of the bot and fans progress events out
// to metrics, history storage and WebSocket subscribers.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gateway-fm/walletbot/internal/storage"
	"github.com/gateway-fm/walletbot/pkg/types"
)

// ErrCycleNotFound is returned when a cycle is neither stored nor in recent memory.
var ErrCycleNotFound = storage.ErrNotFound

const (
	// DefaultHistorySize is how many finished cycles are kept in memory.
	DefaultHistorySize = 20

	storageTimeout = 5 * time.Second
)

// Metrics receives aggregate counters. Satisfied by *metrics.PrometheusMetrics.
type Metrics interface {
	RecordOperation(op types.OperationReport)
	RecordWallet()
	RecordCycle(status types.CycleStatus, d time.Duration)
	SetState(state types.BotState)
}

// Publisher pushes events to live subscribers.
type Publisher interface {
	Publish(ev types.Event)
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(types.OperationReport)        {}
func (nopMetrics) RecordWallet()                                {}
func (nopMetrics) RecordCycle(types.CycleStatus, time.Duration) {}
func (nopMetrics) SetState(types.BotState)                      {}

// Config for creating a Tracker. Storage and Publisher are optional.
type Config struct {
	Metrics     Metrics
	Storage     storage.Storage
	Publisher   Publisher
	HistorySize int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Tracker implements the runner and scheduler observers.
type Tracker struct {
	mu      sync.RWMutex
	status  types.BotStatus
	cycleID string
	current *storage.CycleDetail
	history []storage.CycleDetail // newest last

	metrics     Metrics
	store       storage.Storage
	publisher   Publisher
	historySize int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a new Tracker.
func New(cfg Config) *Tracker {
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Tracker{
		metrics:     cfg.Metrics,
		store:       cfg.Storage,
		publisher:   cfg.Publisher,
		historySize: cfg.HistorySize,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	t.status = types.BotStatus{
		State:     types.StateIdle,
		StartedAt: cfg.Now(),
	}
	t.metrics.SetState(types.StateIdle)

	return t
}

// CycleStarted marks the bot running and opens a history record.
func (t *Tracker) CycleStarted(c types.CycleReport) {
	t.mu.Lock()
	t.cycleID = c.ID
	cur := c
	t.status.State = types.StateRunning
	t.status.CurrentCycle = &cur
	t.status.CurrentWallet = ""
	t.status.WalletIndex = 0
	t.status.NextCycleAt = nil
	t.current = &storage.CycleDetail{Cycle: c, Operations: []types.OperationReport{}}
	t.mu.Unlock()

	t.metrics.SetState(types.StateRunning)
	t.persist("create cycle", func(ctx context.Context) error {
		return t.store.CreateCycle(ctx, &c)
	})
	t.publish(types.Event{Type: types.EventCycleStarted, Cycle: &c})
}

// WalletStarted records which wallet is being processed.
func (t *Tracker) WalletStarted(w types.WalletReport) {
	t.mu.Lock()
	w.CycleID = t.cycleID
	t.status.CurrentWallet = w.Address
	t.status.WalletIndex = w.Index
	t.mu.Unlock()

	t.publish(types.Event{Type: types.EventWalletStarted, Wallet: &w})
}

// OperationFinished stamps the current cycle ID on the report and fans it out.
func (t *Tracker) OperationFinished(op types.OperationReport) {
	t.mu.Lock()
	op.CycleID = t.cycleID
	if c := t.status.CurrentCycle; c != nil {
		switch op.Status {
		case types.OperationSucceeded:
			c.OperationsSucceeded++
		case types.OperationSkipped:
			c.OperationsSkipped++
		default:
			c.OperationsFailed++
		}
	}
	if t.current != nil {
		t.current.Operations = append(t.current.Operations, op)
	}
	t.mu.Unlock()

	t.metrics.RecordOperation(op)
	if op.CycleID != "" {
		t.persist("insert operation result", func(ctx context.Context) error {
			return t.store.InsertOperationResult(ctx, &op)
		})
	}
	t.publish(types.Event{Type: types.EventOperationFinished, Operation: &op})
}

// WalletFinished advances the live wallet counter.
func (t *Tracker) WalletFinished(w types.WalletReport) {
	t.mu.Lock()
	w.CycleID = t.cycleID
	for i := range w.Operations {
		w.Operations[i].CycleID = t.cycleID
	}
	if c := t.status.CurrentCycle; c != nil {
		c.WalletsProcessed++
	}
	t.status.CurrentWallet = ""
	t.mu.Unlock()

	t.metrics.RecordWallet()
	t.publish(types.Event{Type: types.EventWalletFinished, Wallet: &w})
}

// CycleFinished closes the cycle with the scheduler's final totals.
func (t *Tracker) CycleFinished(c types.CycleReport) {
	t.mu.Lock()
	last := c
	t.status.State = types.StateIdle
	t.status.CurrentCycle = nil
	t.status.CurrentWallet = ""
	t.status.LastCycle = &last
	t.status.NextCycleAt = c.NextCycleAt
	t.status.CyclesRun++

	detail := storage.CycleDetail{Cycle: c, Operations: []types.OperationReport{}}
	if t.current != nil && t.current.Cycle.ID == c.ID {
		detail.Operations = t.current.Operations
	}
	t.current = nil
	t.history = append(t.history, detail)
	if len(t.history) > t.historySize {
		t.history = t.history[len(t.history)-t.historySize:]
	}
	t.mu.Unlock()

	var d time.Duration
	if c.CompletedAt != nil {
		d = c.CompletedAt.Sub(c.StartedAt)
	}
	t.metrics.RecordCycle(c.Status, d)
	t.metrics.SetState(types.StateIdle)
	t.persist("complete cycle", func(ctx context.Context) error {
		return t.store.CompleteCycle(ctx, &c)
	})
	t.publish(types.Event{Type: types.EventCycleFinished, Cycle: &c})
}

// Sleeping records the wait until the next cycle.
func (t *Tracker) Sleeping(until time.Time, d time.Duration) {
	t.mu.Lock()
	next := until
	t.status.State = types.StateSleeping
	t.status.NextCycleAt = &next
	var last *types.CycleReport
	if t.status.LastCycle != nil {
		c := *t.status.LastCycle
		last = &c
	}
	t.mu.Unlock()

	t.metrics.SetState(types.StateSleeping)
	t.logger.Debug("status: sleeping", "until", until, "duration", d)
	t.publish(types.Event{Type: types.EventSleeping, Cycle: last})
}

// GetStatus returns a snapshot of the live status.
func (t *Tracker) GetStatus() types.BotStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	if s.CurrentCycle != nil {
		c := *s.CurrentCycle
		s.CurrentCycle = &c
	}
	if s.LastCycle != nil {
		c := *s.LastCycle
		s.LastCycle = &c
	}
	s.UptimeSec = t.now().Sub(s.StartedAt).Seconds()
	return s
}

// ListCycles returns cycle history, newest first. Without storage it serves
// the in-memory window of recent cycles.
func (t *Tracker) ListCycles(ctx context.Context, limit, offset int) (*storage.PaginatedCycles, error) {
	limit, offset = storage.ClampPage(limit, offset)
	if t.store != nil {
		return t.store.ListCycles(ctx, limit, offset)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]types.CycleReport, 0, len(t.history)+1)
	if t.current != nil {
		all = append(all, *t.status.CurrentCycle)
	}
	for i := len(t.history) - 1; i >= 0; i-- {
		all = append(all, t.history[i].Cycle)
	}

	page := &storage.PaginatedCycles{
		Cycles: []types.CycleReport{},
		Total:  len(all),
		Limit:  limit,
		Offset: offset,
	}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page.Cycles = append(page.Cycles, all[offset:end]...)
	}
	return page, nil
}

// GetCycleDetail returns a cycle together with its operations.
func (t *Tracker) GetCycleDetail(ctx context.Context, id string) (*storage.CycleDetail, error) {
	if t.store != nil {
		cycle, err := t.store.GetCycle(ctx, id)
		if err != nil {
			return nil, err
		}
		ops, err := t.store.GetCycleOperations(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load operations: %w", err)
		}
		return &storage.CycleDetail{Cycle: *cycle, Operations: ops}, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current != nil && t.current.Cycle.ID == id {
		return &storage.CycleDetail{
			Cycle:      *t.status.CurrentCycle,
			Operations: append([]types.OperationReport(nil), t.current.Operations...),
		}, nil
	}
	for i := range t.history {
		if t.history[i].Cycle.ID == id {
			d := t.history[i]
			d.Operations = append([]types.OperationReport(nil), d.Operations...)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("cycle %s: %w", id, ErrCycleNotFound)
}

// IsNotFound reports whether err means the cycle does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCycleNotFound)
}

func (t *Tracker) persist(what string, fn func(ctx context.Context) error) {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		t.logger.Warn("storage write failed", "op", what, "error", err)
	}
}

func (t *Tracker) publish(ev types.Event) {
	if t.publisher == nil {
		return
	}
	ev.Time = t.now()
	t.publisher.Publish(ev)
}
