package status

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gateway-fm/walletbot/internal/storage"
	"github.com/gateway-fm/walletbot/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMetrics struct {
	ops     []types.OperationReport
	wallets int
	cycles  []types.CycleStatus
	states  []types.BotState
}

func (m *fakeMetrics) RecordOperation(op types.OperationReport)         { m.ops = append(m.ops, op) }
func (m *fakeMetrics) RecordWallet()                                    { m.wallets++ }
func (m *fakeMetrics) RecordCycle(s types.CycleStatus, _ time.Duration) { m.cycles = append(m.cycles, s) }
func (m *fakeMetrics) SetState(s types.BotState)                        { m.states = append(m.states, s) }

type fakePublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func (p *fakePublisher) Publish(ev types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) eventTypes() []types.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0.Add(time.Hour) }

// simulateCycle drives the tracker through one wallet with two operations.
func simulateCycle(tr *Tracker, id string) types.CycleReport {
	c := types.CycleReport{ID: id, Status: types.CycleRunning, StartedAt: t0, WalletCount: 1}
	tr.CycleStarted(c)

	w := types.WalletReport{Index: 0, Address: "0xabc", StartedAt: t0}
	tr.WalletStarted(w)

	ops := []types.OperationReport{
		{WalletIndex: 0, Wallet: "0xabc", Operation: "Deposit", Status: types.OperationSucceeded, Attempts: 1,
			TxHashes: []string{"0x01"}, StartedAt: t0, FinishedAt: t0.Add(time.Minute)},
		{WalletIndex: 0, Wallet: "0xabc", Operation: "GTE Swap", Status: types.OperationFailed, Attempts: 3,
			Error: "boom", StartedAt: t0.Add(time.Minute), FinishedAt: t0.Add(2 * time.Minute)},
	}
	for _, op := range ops {
		tr.OperationFinished(op)
		w.Operations = append(w.Operations, op)
		w.Count(op)
	}
	tr.WalletFinished(w)

	done := t0.Add(10 * time.Minute)
	next := t0.Add(24 * time.Hour)
	c.AddWallet(w)
	c.Status = types.CycleCompleted
	c.CompletedAt = &done
	c.NextCycleAt = &next
	tr.CycleFinished(c)
	return c
}

func TestTracker_InitialStatus(t *testing.T) {
	tr := New(Config{Now: fixedNow, Logger: quietLogger()})

	s := tr.GetStatus()
	if s.State != types.StateIdle {
		t.Errorf("State = %s, want idle", s.State)
	}
	if s.CurrentCycle != nil || s.LastCycle != nil {
		t.Error("expected no cycles")
	}
}

func TestTracker_LiveStatusDuringCycle(t *testing.T) {
	tr := New(Config{Logger: quietLogger()})

	tr.CycleStarted(types.CycleReport{ID: "c1", Status: types.CycleRunning, StartedAt: t0, WalletCount: 3})
	tr.WalletStarted(types.WalletReport{Index: 1, Address: "0xbeef"})
	tr.OperationFinished(types.OperationReport{Operation: "Deposit", Status: types.OperationSucceeded})
	tr.OperationFinished(types.OperationReport{Operation: "GTE Swap", Status: types.OperationSkipped})

	s := tr.GetStatus()
	if s.State != types.StateRunning {
		t.Errorf("State = %s, want running", s.State)
	}
	if s.CurrentWallet != "0xbeef" || s.WalletIndex != 1 {
		t.Errorf("current wallet = %s #%d", s.CurrentWallet, s.WalletIndex)
	}
	if s.CurrentCycle == nil || s.CurrentCycle.OperationsSucceeded != 1 || s.CurrentCycle.OperationsSkipped != 1 {
		t.Errorf("CurrentCycle = %+v", s.CurrentCycle)
	}

	// The snapshot must not alias the tracker's state.
	s.CurrentCycle.OperationsSucceeded = 99
	if tr.GetStatus().CurrentCycle.OperationsSucceeded != 1 {
		t.Error("GetStatus returned an aliased cycle")
	}
}

func TestTracker_FanOut(t *testing.T) {
	m := &fakeMetrics{}
	pub := &fakePublisher{}
	clock := t0
	tr := New(Config{Metrics: m, Publisher: pub, Now: func() time.Time { return clock }, Logger: quietLogger()})

	simulateCycle(tr, "c1")
	tr.Sleeping(t0.Add(24*time.Hour), 23*time.Hour)

	wantEvents := []types.EventType{
		types.EventCycleStarted,
		types.EventWalletStarted,
		types.EventOperationFinished,
		types.EventOperationFinished,
		types.EventWalletFinished,
		types.EventCycleFinished,
		types.EventSleeping,
	}
	got := pub.eventTypes()
	if len(got) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", got, wantEvents)
	}
	for i := range wantEvents {
		if got[i] != wantEvents[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], wantEvents[i])
		}
	}
	for _, ev := range pub.events {
		if !ev.Time.Equal(t0) {
			t.Errorf("event %s time = %v", ev.Type, ev.Time)
		}
	}
	if op := pub.events[2].Operation; op == nil || op.CycleID != "c1" {
		t.Errorf("operation event not stamped with cycle ID: %+v", op)
	}

	if len(m.ops) != 2 || m.ops[0].CycleID != "c1" {
		t.Errorf("metrics ops = %+v", m.ops)
	}
	if m.wallets != 1 {
		t.Errorf("wallets = %d, want 1", m.wallets)
	}
	if len(m.cycles) != 1 || m.cycles[0] != types.CycleCompleted {
		t.Errorf("cycles = %v", m.cycles)
	}
	wantStates := []types.BotState{types.StateIdle, types.StateRunning, types.StateIdle, types.StateSleeping}
	if len(m.states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", m.states, wantStates)
	}
	for i := range wantStates {
		if m.states[i] != wantStates[i] {
			t.Errorf("state[%d] = %s, want %s", i, m.states[i], wantStates[i])
		}
	}

	clock = t0.Add(time.Hour)
	s := tr.GetStatus()
	if s.State != types.StateSleeping || s.CyclesRun != 1 {
		t.Errorf("status = %s, cycles %d", s.State, s.CyclesRun)
	}
	if s.NextCycleAt == nil || !s.NextCycleAt.Equal(t0.Add(24*time.Hour)) {
		t.Errorf("NextCycleAt = %v", s.NextCycleAt)
	}
	if s.LastCycle == nil || s.LastCycle.OperationsFailed != 1 {
		t.Errorf("LastCycle = %+v", s.LastCycle)
	}
	if s.UptimeSec != time.Hour.Seconds() {
		t.Errorf("UptimeSec = %v, want 3600", s.UptimeSec)
	}
}

func TestTracker_InMemoryHistory(t *testing.T) {
	tr := New(Config{HistorySize: 2, Logger: quietLogger()})

	for _, id := range []string{"c1", "c2", "c3"} {
		simulateCycle(tr, id)
	}

	page, err := tr.ListCycles(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if page.Total != 2 || len(page.Cycles) != 2 {
		t.Fatalf("page = %+v, want 2 cycles", page)
	}
	if page.Cycles[0].ID != "c3" || page.Cycles[1].ID != "c2" {
		t.Errorf("order = %s, %s, want c3, c2", page.Cycles[0].ID, page.Cycles[1].ID)
	}

	page, err = tr.ListCycles(context.Background(), 10, 5)
	if err != nil || len(page.Cycles) != 0 {
		t.Errorf("offset past end = %+v, %v", page, err)
	}

	detail, err := tr.GetCycleDetail(context.Background(), "c3")
	if err != nil {
		t.Fatalf("GetCycleDetail: %v", err)
	}
	if len(detail.Operations) != 2 || detail.Operations[0].CycleID != "c3" {
		t.Errorf("operations = %+v", detail.Operations)
	}

	_, err = tr.GetCycleDetail(context.Background(), "c1")
	if !IsNotFound(err) {
		t.Errorf("evicted cycle err = %v, want not found", err)
	}
}

func TestTracker_CurrentCycleDetailInMemory(t *testing.T) {
	tr := New(Config{Logger: quietLogger()})

	tr.CycleStarted(types.CycleReport{ID: "live", Status: types.CycleRunning, StartedAt: t0})
	tr.OperationFinished(types.OperationReport{Operation: "Deposit", Status: types.OperationSucceeded})

	detail, err := tr.GetCycleDetail(context.Background(), "live")
	if err != nil {
		t.Fatalf("GetCycleDetail: %v", err)
	}
	if detail.Cycle.Status != types.CycleRunning || len(detail.Operations) != 1 {
		t.Errorf("detail = %+v", detail)
	}

	page, _ := tr.ListCycles(context.Background(), 0, 0)
	if page.Total != 1 || page.Cycles[0].ID != "live" {
		t.Errorf("page = %+v", page)
	}
}

func TestTracker_PersistsToStorage(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	defer store.Close()

	tr := New(Config{Storage: store, Logger: quietLogger()})
	simulateCycle(tr, "stored")

	ctx := context.Background()
	page, err := tr.ListCycles(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if page.Total != 1 || page.Cycles[0].Status != types.CycleCompleted {
		t.Fatalf("page = %+v", page)
	}
	if page.Cycles[0].OperationsSucceeded != 1 || page.Cycles[0].OperationsFailed != 1 {
		t.Errorf("totals = %+v", page.Cycles[0])
	}

	detail, err := tr.GetCycleDetail(ctx, "stored")
	if err != nil {
		t.Fatalf("GetCycleDetail: %v", err)
	}
	if len(detail.Operations) != 2 {
		t.Fatalf("operations = %d, want 2", len(detail.Operations))
	}
	if detail.Operations[0].TxHashes[0] != "0x01" || detail.Operations[1].Error != "boom" {
		t.Errorf("operations = %+v", detail.Operations)
	}

	_, err = tr.GetCycleDetail(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestTracker_FailedCycle(t *testing.T) {
	m := &fakeMetrics{}
	tr := New(Config{Metrics: m, Logger: quietLogger()})

	c := types.CycleReport{ID: "bad", Status: types.CycleRunning, StartedAt: t0}
	tr.CycleStarted(c)
	done := t0.Add(time.Second)
	c.Status = types.CycleFailed
	c.CompletedAt = &done
	c.ErrorMessage = "no valid private keys found"
	tr.CycleFinished(c)

	s := tr.GetStatus()
	if s.LastCycle == nil || s.LastCycle.Status != types.CycleFailed {
		t.Errorf("LastCycle = %+v", s.LastCycle)
	}
	if len(m.cycles) != 1 || m.cycles[0] != types.CycleFailed {
		t.Errorf("cycles = %v", m.cycles)
	}
}
