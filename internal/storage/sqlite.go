package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/walletbot/pkg/types"
)

// ErrNotFound is returned when a cycle does not exist.
var ErrNotFound = errors.New("not found")

// unmarshalJSON unmarshals JSON and logs any errors without failing.
// Used for non-critical JSON columns so a corrupt value does not fail the whole query.
func unmarshalJSON(data string, v any, field string, cycleID string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"cycleID", cycleID,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets the HTTP API read while the scheduler writes.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL DEFAULT 'running',
		wallet_count INTEGER DEFAULT 0,
		wallets_processed INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at DESC);

	CREATE TABLE IF NOT EXISTS operation_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
		wallet_index INTEGER NOT NULL,
		wallet_address TEXT NOT NULL,
		operation TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operation_results_cycle ON operation_results(cycle_id, wallet_index);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first release.
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"cycles", "next_cycle_at", "ALTER TABLE cycles ADD COLUMN next_cycle_at DATETIME"},
		{"operation_results", "tx_hashes", "ALTER TABLE operation_results ADD COLUMN tx_hashes TEXT"},
	}

	for _, m := range migrations {
		if !s.columnExists(m.table, m.column) {
			if _, err := s.db.Exec(m.ddl); err != nil {
				slog.Warn("migration failed", "table", m.table, "column", m.column, "error", err)
			}
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
// Table and column names are validated to prevent SQL injection.
func (s *SQLiteStorage) columnExists(table, column string) bool {
	if !isValidIdentifier(table) || !isValidIdentifier(column) {
		return false
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = '%s'", table, column)
	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// isValidIdentifier checks if a string is a valid SQLite identifier.
// Only allows alphanumeric characters and underscore.
func isValidIdentifier(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateCycle inserts a cycle record at the start of a cycle.
func (s *SQLiteStorage) CreateCycle(ctx context.Context, cycle *types.CycleReport) error {
	status := cycle.Status
	if status == "" {
		status = types.CycleRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, started_at, status, wallet_count)
		VALUES (?, ?, ?, ?)
	`, cycle.ID, cycle.StartedAt.UTC(), string(status), cycle.WalletCount)

	return err
}

// CompleteCycle writes the final totals of a cycle.
func (s *SQLiteStorage) CompleteCycle(ctx context.Context, cycle *types.CycleReport) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cycles SET
			completed_at = ?,
			status = ?,
			wallet_count = ?,
			wallets_processed = ?,
			succeeded = ?,
			failed = ?,
			skipped = ?,
			error_message = ?,
			next_cycle_at = ?
		WHERE id = ?
	`, nullTime(cycle.CompletedAt), string(cycle.Status), cycle.WalletCount, cycle.WalletsProcessed,
		cycle.OperationsSucceeded, cycle.OperationsFailed, cycle.OperationsSkipped,
		nullString(cycle.ErrorMessage), nullTime(cycle.NextCycleAt), cycle.ID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cycle %s: %w", cycle.ID, ErrNotFound)
	}
	return nil
}

const cycleColumns = `id, started_at, completed_at, status, COALESCE(wallet_count, 0),
	COALESCE(wallets_processed, 0), COALESCE(succeeded, 0), COALESCE(failed, 0), COALESCE(skipped, 0),
	error_message, next_cycle_at`

// GetCycle retrieves a cycle by ID. Returns ErrNotFound if it does not exist.
func (s *SQLiteStorage) GetCycle(ctx context.Context, id string) (*types.CycleReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)

	cycle, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	return cycle, err
}

// ListCycles returns a paginated list of cycles, newest first.
func (s *SQLiteStorage) ListCycles(ctx context.Context, limit, offset int) (*PaginatedCycles, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycles").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cycleColumns+`
		FROM cycles
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cycles := []types.CycleReport{}
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedCycles{
		Cycles: cycles,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// InsertOperationResult records the outcome of one operation for one wallet.
func (s *SQLiteStorage) InsertOperationResult(ctx context.Context, op *types.OperationReport) error {
	var hashes sql.NullString
	if len(op.TxHashes) > 0 {
		data, err := json.Marshal(op.TxHashes)
		if err != nil {
			return fmt.Errorf("failed to marshal tx hashes: %w", err)
		}
		hashes = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_results (cycle_id, wallet_index, wallet_address, operation,
			status, attempts, tx_hashes, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.CycleID, op.WalletIndex, op.Wallet, op.Operation, string(op.Status), op.Attempts,
		hashes, nullString(op.Error), op.StartedAt.UTC(), op.FinishedAt.UTC())

	return err
}

// GetCycleOperations returns every operation recorded for a cycle, in execution order.
func (s *SQLiteStorage) GetCycleOperations(ctx context.Context, cycleID string) ([]types.OperationReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, wallet_index, wallet_address, operation, status, COALESCE(attempts, 0),
			tx_hashes, error, started_at, finished_at
		FROM operation_results
		WHERE cycle_id = ?
		ORDER BY id
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []types.OperationReport{}
	for rows.Next() {
		var op types.OperationReport
		var status string
		var hashes, errMsg sql.NullString

		err := rows.Scan(&op.CycleID, &op.WalletIndex, &op.Wallet, &op.Operation, &status, &op.Attempts,
			&hashes, &errMsg, &op.StartedAt, &op.FinishedAt)
		if err != nil {
			return nil, err
		}

		op.Status = types.OperationStatus(status)
		if hashes.Valid && hashes.String != "" {
			unmarshalJSON(hashes.String, &op.TxHashes, "tx_hashes", cycleID)
		}
		if errMsg.Valid {
			op.Error = errMsg.String
		}

		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (*types.CycleReport, error) {
	var cycle types.CycleReport
	var status string
	var completedAt, nextCycleAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&cycle.ID, &cycle.StartedAt, &completedAt, &status, &cycle.WalletCount,
		&cycle.WalletsProcessed, &cycle.OperationsSucceeded, &cycle.OperationsFailed, &cycle.OperationsSkipped,
		&errorMsg, &nextCycleAt)
	if err != nil {
		return nil, err
	}

	cycle.Status = types.CycleStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		cycle.CompletedAt = &t
	}
	if nextCycleAt.Valid {
		t := nextCycleAt.Time
		cycle.NextCycleAt = &t
	}
	if errorMsg.Valid {
		cycle.ErrorMessage = errorMsg.String
	}

	return &cycle, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
