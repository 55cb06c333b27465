// Package types contains public API types for the wallet bot.
// These types form the external interface (HTTP, WebSocket, MCP) and must remain backwards-compatible.
package types

import "time"

// OperationStatus is the final state of one operation for one wallet.
type OperationStatus string

const (
	OperationSucceeded OperationStatus = "succeeded"
	OperationFailed    OperationStatus = "failed"
	OperationSkipped   OperationStatus = "skipped"
)

// CycleStatus represents the state of a cycle.
type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed" // wallet list could not be loaded
)

// BotState represents what the scheduler is doing right now.
type BotState string

const (
	StateIdle     BotState = "idle"
	StateRunning  BotState = "running"
	StateSleeping BotState = "sleeping"
)

// OperationReport describes the outcome of a single operation for a wallet.
type OperationReport struct {
	CycleID     string          `json:"cycleId"`
	WalletIndex int             `json:"walletIndex"`
	Wallet      string          `json:"wallet"` // address, never the key
	Operation   string          `json:"operation"`
	Status      OperationStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	TxHashes    []string        `json:"txHashes,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
}

// WalletReport summarizes one wallet's run inside a cycle.
type WalletReport struct {
	CycleID    string            `json:"cycleId"`
	Index      int               `json:"index"`
	Address    string            `json:"address"`
	Order      []string          `json:"order"` // shuffled execution order
	Operations []OperationReport `json:"operations"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// Count updates the success/failure/skip counters from an operation report.
func (w *WalletReport) Count(op OperationReport) {
	switch op.Status {
	case OperationSucceeded:
		w.Succeeded++
	case OperationSkipped:
		w.Skipped++
	default:
		w.Failed++
	}
}

// CycleReport summarizes one pass over the wallet list.
// JSON tags use camelCase to match the HTTP API.
type CycleReport struct {
	ID                  string      `json:"id"`
	Status              CycleStatus `json:"status"`
	StartedAt           time.Time   `json:"startedAt"`
	CompletedAt         *time.Time  `json:"completedAt,omitempty"`
	WalletCount         int         `json:"walletCount"`
	WalletsProcessed    int         `json:"walletsProcessed"`
	OperationsSucceeded int         `json:"operationsSucceeded"`
	OperationsFailed    int         `json:"operationsFailed"`
	OperationsSkipped   int         `json:"operationsSkipped"`
	ErrorMessage        string      `json:"errorMessage,omitempty"`
	NextCycleAt         *time.Time  `json:"nextCycleAt,omitempty"`
}

// AddWallet folds a wallet report into the cycle totals.
func (c *CycleReport) AddWallet(w WalletReport) {
	c.WalletsProcessed++
	c.OperationsSucceeded += w.Succeeded
	c.OperationsFailed += w.Failed
	c.OperationsSkipped += w.Skipped
}

// BotStatus is the live view served on /v1/status.
type BotStatus struct {
	State         BotState     `json:"state"`
	CurrentCycle  *CycleReport `json:"currentCycle,omitempty"`
	LastCycle     *CycleReport `json:"lastCycle,omitempty"`
	CurrentWallet string       `json:"currentWallet,omitempty"`
	WalletIndex   int          `json:"walletIndex"`
	NextCycleAt   *time.Time   `json:"nextCycleAt,omitempty"`
	CyclesRun     int          `json:"cyclesRun"`
	StartedAt     time.Time    `json:"startedAt"`
	UptimeSec     float64      `json:"uptimeSec"`
}

// EventType identifies a streamed event.
type EventType string

const (
	EventCycleStarted      EventType = "cycle_started"
	EventCycleFinished     EventType = "cycle_finished"
	EventWalletStarted     EventType = "wallet_started"
	EventWalletFinished    EventType = "wallet_finished"
	EventOperationFinished EventType = "operation_finished"
	EventSleeping          EventType = "sleeping"
)

// Event is pushed to WebSocket subscribers as the bot makes progress.
type Event struct {
	Type      EventType        `json:"type"`
	Time      time.Time        `json:"time"`
	Cycle     *CycleReport     `json:"cycle,omitempty"`
	Wallet    *WalletReport    `json:"wallet,omitempty"`
	Operation *OperationReport `json:"operation,omitempty"`
}
