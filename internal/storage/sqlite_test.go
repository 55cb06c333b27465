package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/walletbot/pkg/types"
)

func TestNullString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{name: "empty string returns invalid", input: "", wantValid: false},
		{name: "non-empty string returns valid", input: "hello", wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nullString(tt.input)
			if got.Valid != tt.wantValid {
				t.Errorf("nullString(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Valid && got.String != tt.input {
				t.Errorf("nullString(%q).String = %q", tt.input, got.String)
			}
		})
	}
}

func TestNullTime(t *testing.T) {
	now := time.Now()
	zero := time.Time{}

	if nullTime(nil).Valid {
		t.Error("nil time should be invalid")
	}
	if nullTime(&zero).Valid {
		t.Error("zero time should be invalid")
	}
	got := nullTime(&now)
	if !got.Valid || !got.Time.Equal(now) {
		t.Errorf("nullTime(now) = %+v", got)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"cycles", true},
		{"next_cycle_at", true},
		{"", false},
		{"cycles; DROP TABLE cycles", false},
		{"name'", false},
	}

	for _, tt := range tests {
		if got := isValidIdentifier(tt.in); got != tt.want {
			t.Errorf("isValidIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{"defaults", 0, 0, DefaultPageSize, 0},
		{"negative", -5, -1, DefaultPageSize, 0},
		{"capped", 1000, 10, MaxPageSize, 10},
		{"unchanged", 5, 15, 5, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := ClampPage(tt.limit, tt.offset)
			if l != tt.wantLimit || o != tt.wantOffset {
				t.Errorf("ClampPage(%d, %d) = %d, %d, want %d, %d", tt.limit, tt.offset, l, o, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

// createTestStorage creates a new SQLite storage with a temporary database.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return storage
}

func newCycle(id string, startedAt time.Time) *types.CycleReport {
	return &types.CycleReport{
		ID:          id,
		Status:      types.CycleRunning,
		StartedAt:   startedAt,
		WalletCount: 2,
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := createTestStorage(t)
	if storage.db == nil {
		t.Fatal("expected db to be non-nil")
	}
}

func TestNewSQLiteStorage_InvalidPath(t *testing.T) {
	// A regular file cannot be used as a parent directory.
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewSQLiteStorage(filepath.Join(file, "sub", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestNewSQLiteStorage_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.CreateCycle(context.Background(), newCycle("c1", time.Now())); err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	if _, err := second.GetCycle(context.Background(), "c1"); err != nil {
		t.Fatalf("cycle lost across reopen: %v", err)
	}
}

func TestColumnExists(t *testing.T) {
	storage := createTestStorage(t)

	tests := []struct {
		table, column string
		want          bool
	}{
		{"cycles", "id", true},
		{"cycles", "next_cycle_at", true},
		{"operation_results", "tx_hashes", true},
		{"cycles", "nonexistent", false},
		{"cycles'", "id", false},
	}

	for _, tt := range tests {
		if got := storage.columnExists(tt.table, tt.column); got != tt.want {
			t.Errorf("columnExists(%q, %q) = %v, want %v", tt.table, tt.column, got, tt.want)
		}
	}
}

func TestCreateAndGetCycle(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := storage.CreateCycle(ctx, newCycle("cycle-1", started)); err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}

	got, err := storage.GetCycle(ctx, "cycle-1")
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if got.Status != types.CycleRunning {
		t.Errorf("Status = %s, want running", got.Status)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.WalletCount != 2 {
		t.Errorf("WalletCount = %d, want 2", got.WalletCount)
	}
	if got.CompletedAt != nil || got.NextCycleAt != nil {
		t.Error("running cycle should have no completion or next cycle time")
	}
}

func TestGetCycle_NotFound(t *testing.T) {
	storage := createTestStorage(t)

	_, err := storage.GetCycle(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteCycle(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cycle := newCycle("cycle-1", started)
	if err := storage.CreateCycle(ctx, cycle); err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}

	completed := started.Add(30 * time.Minute)
	next := started.Add(24 * time.Hour)
	cycle.Status = types.CycleCompleted
	cycle.CompletedAt = &completed
	cycle.NextCycleAt = &next
	cycle.WalletsProcessed = 2
	cycle.OperationsSucceeded = 7
	cycle.OperationsFailed = 1

	if err := storage.CompleteCycle(ctx, cycle); err != nil {
		t.Fatalf("CompleteCycle: %v", err)
	}

	got, err := storage.GetCycle(ctx, "cycle-1")
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if got.Status != types.CycleCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
	if got.NextCycleAt == nil || !got.NextCycleAt.Equal(next) {
		t.Errorf("NextCycleAt = %v, want %v", got.NextCycleAt, next)
	}
	if got.WalletsProcessed != 2 || got.OperationsSucceeded != 7 || got.OperationsFailed != 1 || got.OperationsSkipped != 0 {
		t.Errorf("totals = %+v", got)
	}
}

func TestCompleteCycle_Failed(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	cycle := newCycle("cycle-1", time.Now())
	cycle.WalletCount = 0
	if err := storage.CreateCycle(ctx, cycle); err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}

	now := time.Now()
	cycle.Status = types.CycleFailed
	cycle.CompletedAt = &now
	cycle.ErrorMessage = "no valid private keys found"
	if err := storage.CompleteCycle(ctx, cycle); err != nil {
		t.Fatalf("CompleteCycle: %v", err)
	}

	got, err := storage.GetCycle(ctx, "cycle-1")
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if got.Status != types.CycleFailed || got.ErrorMessage != "no valid private keys found" {
		t.Errorf("got %s %q", got.Status, got.ErrorMessage)
	}
}

func TestCompleteCycle_NotFound(t *testing.T) {
	storage := createTestStorage(t)

	err := storage.CompleteCycle(context.Background(), &types.CycleReport{ID: "missing", Status: types.CycleCompleted})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListCycles(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		if err := storage.CreateCycle(ctx, newCycle(id, base.Add(time.Duration(i)*24*time.Hour))); err != nil {
			t.Fatalf("CreateCycle(%s): %v", id, err)
		}
	}

	page, err := storage.ListCycles(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	if len(page.Cycles) != 2 || page.Cycles[0].ID != "c5" || page.Cycles[1].ID != "c4" {
		t.Errorf("first page = %+v, want c5, c4", page.Cycles)
	}

	page, err = storage.ListCycles(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if len(page.Cycles) != 1 || page.Cycles[0].ID != "c1" {
		t.Errorf("last page = %+v, want c1", page.Cycles)
	}
	if page.Limit != 2 || page.Offset != 4 {
		t.Errorf("Limit/Offset = %d/%d", page.Limit, page.Offset)
	}
}

func TestListCycles_Empty(t *testing.T) {
	storage := createTestStorage(t)

	page, err := storage.ListCycles(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if page.Total != 0 || page.Cycles == nil || len(page.Cycles) != 0 {
		t.Errorf("page = %+v, want empty non-nil list", page)
	}
}

func TestInsertAndGetOperationResults(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := storage.CreateCycle(ctx, newCycle("cycle-1", started)); err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}

	ops := []types.OperationReport{
		{
			CycleID: "cycle-1", WalletIndex: 0, Wallet: "0xaaa", Operation: "Deposit",
			Status: types.OperationSucceeded, Attempts: 1, TxHashes: []string{"0x01", "0x02"},
			StartedAt: started, FinishedAt: started.Add(time.Minute),
		},
		{
			CycleID: "cycle-1", WalletIndex: 0, Wallet: "0xaaa", Operation: "GTE Swap",
			Status: types.OperationFailed, Attempts: 3, Error: "execution reverted",
			StartedAt: started.Add(time.Minute), FinishedAt: started.Add(5 * time.Minute),
		},
	}
	for i := range ops {
		if err := storage.InsertOperationResult(ctx, &ops[i]); err != nil {
			t.Fatalf("InsertOperationResult: %v", err)
		}
	}

	got, err := storage.GetCycleOperations(ctx, "cycle-1")
	if err != nil {
		t.Fatalf("GetCycleOperations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Operation != "Deposit" || len(got[0].TxHashes) != 2 || got[0].TxHashes[1] != "0x02" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Status != types.OperationFailed || got[1].Error != "execution reverted" || got[1].Attempts != 3 {
		t.Errorf("second = %+v", got[1])
	}
	if got[1].TxHashes != nil {
		t.Errorf("TxHashes = %v, want nil", got[1].TxHashes)
	}
	if !got[1].FinishedAt.Equal(started.Add(5 * time.Minute)) {
		t.Errorf("FinishedAt = %v", got[1].FinishedAt)
	}
}

func TestInsertOperationResult_UnknownCycle(t *testing.T) {
	storage := createTestStorage(t)

	op := &types.OperationReport{
		CycleID: "missing", Wallet: "0xaaa", Operation: "Deposit",
		Status: types.OperationSucceeded, StartedAt: time.Now(), FinishedAt: time.Now(),
	}
	if err := storage.InsertOperationResult(context.Background(), op); err == nil {
		t.Fatal("expected foreign key error for unknown cycle")
	}
}

func TestGetCycleOperations_Empty(t *testing.T) {
	storage := createTestStorage(t)

	got, err := storage.GetCycleOperations(context.Background(), "none")
	if err != nil {
		t.Fatalf("GetCycleOperations: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ Storage = (*SQLiteStorage)(nil)
}
