// Package chain signs, broadcasts and confirms transactions for a wallet.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/walletbot/internal/account"
	"github.com/gateway-fm/walletbot/internal/rpc"
)

var (
	// ErrReverted is returned when a mined transaction has status 0.
	ErrReverted = errors.New("transaction reverted")

	// ErrReceiptTimeout is returned when no receipt appears within the receipt timeout.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// Error is a failed step of a chain interaction.
type Error struct {
	Op  string // nonce, gas_price, estimate_gas, sign, send, receipt, call
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chain %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Backend is the subset of the RPC client used to submit transactions.
type Backend interface {
	GetNonce(ctx context.Context, address common.Address) (uint64, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg rpc.CallRequest) (uint64, error)
	EthCall(ctx context.Context, msg rpc.CallRequest) ([]byte, error)
	SendRawTransaction(ctx context.Context, txRLP []byte) (common.Hash, error)
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*rpc.TransactionReceipt, error)
}

// Intent is a transaction before nonce, gas and signature are filled in.
type Intent struct {
	To    common.Address
	Value *big.Int // nil = 0
	Data  []byte
	Label string // for logs
}

// Receipt is the confirmed result of a sent transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
}

// Config for creating a Client.
type Config struct {
	Backend        Backend
	ChainID        *big.Int
	ReceiptTimeout time.Duration // default: 2m
	PollInterval   time.Duration // default: 2s
	Logger         *slog.Logger

	// OnTransaction, if set, is called once per broadcast attempt with
	// "confirmed", "reverted" or "failed".
	OnTransaction func(status string)
}

// Client submits transactions on behalf of wallets.
// Every Send fetches a fresh nonce and gas price; nothing is cached between calls.
type Client struct {
	backend        Backend
	signer         types.Signer
	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
	onTx           func(status string)
}

// New creates a new Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	receiptTimeout := cfg.ReceiptTimeout
	if receiptTimeout <= 0 {
		receiptTimeout = 2 * time.Minute
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &Client{
		backend:        cfg.Backend,
		signer:         types.LatestSignerForChainID(cfg.ChainID),
		receiptTimeout: receiptTimeout,
		pollInterval:   pollInterval,
		logger:         logger,
		onTx:           cfg.OnTransaction,
	}
}

// Call executes a read-only call against to with the given calldata.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.EthCall(ctx, rpc.CallRequest{To: &to, Data: data})
	if err != nil {
		return nil, &Error{Op: "call", Err: err}
	}
	return out, nil
}

// Send signs and broadcasts intent from acct, then waits for the receipt.
// A reverted transaction returns its receipt together with ErrReverted.
func (c *Client) Send(ctx context.Context, acct *account.Account, intent Intent) (*Receipt, error) {
	value := intent.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.backend.GetNonce(ctx, acct.Address)
	if err != nil {
		return nil, &Error{Op: "nonce", Err: err}
	}

	gasPrice, err := c.backend.GetGasPrice(ctx)
	if err != nil {
		return nil, &Error{Op: "gas_price", Err: err}
	}

	to := intent.To
	gasLimit, err := c.backend.EstimateGas(ctx, rpc.CallRequest{
		From:  acct.Address,
		To:    &to,
		Value: (*hexutil.Big)(value),
		Data:  intent.Data,
	})
	if err != nil {
		return nil, &Error{Op: "estimate_gas", Err: err}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     intent.Data,
	})

	signed, err := types.SignTx(tx, c.signer, acct.PrivateKey)
	if err != nil {
		return nil, &Error{Op: "sign", Err: err}
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &Error{Op: "sign", Err: err}
	}

	hash, err := c.backend.SendRawTransaction(ctx, raw)
	if err != nil {
		c.record("failed")
		return nil, &Error{Op: "send", Err: err}
	}
	if hash == (common.Hash{}) {
		hash = signed.Hash()
	}

	c.logger.Info("transaction sent",
		slog.String("label", intent.Label),
		slog.String("wallet", acct.Address.Hex()),
		slog.String("tx", hash.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gasLimit),
		slog.String("gas_price", gasPrice.String()),
	)

	rcpt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		c.record("failed")
		return nil, &Error{Op: "receipt", Err: fmt.Errorf("%s: %w", hash.Hex(), err)}
	}

	receipt := &Receipt{
		TxHash:      hash,
		BlockNumber: rcpt.BlockNumber,
		GasUsed:     rcpt.GasUsed,
		Status:      rcpt.Status,
	}
	if rcpt.Status == 0 {
		c.record("reverted")
		return receipt, &Error{Op: "receipt", Err: fmt.Errorf("%s: %w", hash.Hex(), ErrReverted)}
	}

	c.record("confirmed")
	c.logger.Info("transaction confirmed",
		slog.String("label", intent.Label),
		slog.String("tx", hash.Hex()),
		slog.Uint64("block", rcpt.BlockNumber),
		slog.Uint64("gas_used", rcpt.GasUsed),
	)
	return receipt, nil
}

// waitReceipt polls for the receipt of hash until it appears or the receipt timeout elapses.
// Lookup errors are treated as "not yet available".
func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := c.backend.GetTransactionReceipt(waitCtx, hash)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		if err != nil && waitCtx.Err() == nil {
			c.logger.Debug("receipt lookup failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrReceiptTimeout
		case <-ticker.C:
		}
	}
}

func (c *Client) record(status string) {
	if c.onTx != nil {
		c.onTx(status)
	}
}
