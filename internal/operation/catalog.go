// Package operation defines the on-chain actions the bot performs for each wallet.
package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/walletbot/internal/account"
	"github.com/gateway-fm/walletbot/internal/chain"
	"github.com/gateway-fm/walletbot/internal/config"
	"github.com/gateway-fm/walletbot/internal/pacing"
	"github.com/gateway-fm/walletbot/internal/random"
	"github.com/gateway-fm/walletbot/internal/retry"
	"github.com/gateway-fm/walletbot/pkg/types"
)

// Operation names.
const (
	NameSwap      = "GTE Swap"
	NameDeposit   = "Deposit"
	NameMultiMint = "Mint Teko Token"
)

// swapDeadline is how far in the future the swap deadline is set.
const swapDeadline = 10 * time.Minute

// ChainClient submits transactions and reads contract state.
type ChainClient interface {
	Send(ctx context.Context, acct *account.Account, intent chain.Intent) (*chain.Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Result is what an operation reports after its own retries.
type Result struct {
	Status   types.OperationStatus
	Attempts int
	TxHashes []string
	Err      error
}

// Operation is a named, self-retrying action for one wallet.
// Action returns an error only for failures outside the operation's own retry.
type Operation struct {
	Name   string
	Action func(ctx context.Context, acct *account.Account) (*Result, error)
}

// Config for creating a Catalog.
type Config struct {
	Network        config.Network
	Chain          ChainClient
	Retry          *retry.Executor
	Pacer          *pacing.Pacer
	Source         random.Source
	OperationPause pacing.Range
	MintPause      pacing.Range
	Now            func() time.Time // default: time.Now
	Logger         *slog.Logger
}

// Catalog holds the four wallet operations.
type Catalog struct {
	net            config.Network
	chain          ChainClient
	retry          *retry.Executor
	pacer          *pacing.Pacer
	src            random.Source
	operationPause pacing.Range
	mintPause      pacing.Range
	now            func() time.Time
	logger         *slog.Logger

	mintAmounts map[common.Address]*big.Int
	singleMint  config.Token
	ops         []Operation
}

// NewCatalog validates the network constants and builds the catalog.
func NewCatalog(cfg Config) (*Catalog, error) {
	if cfg.Chain == nil || cfg.Retry == nil || cfg.Pacer == nil || cfg.Source == nil {
		return nil, errors.New("operation catalog requires chain, retry, pacer and source")
	}
	if err := cfg.Network.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Catalog{
		net:            cfg.Network,
		chain:          cfg.Chain,
		retry:          cfg.Retry,
		pacer:          cfg.Pacer,
		src:            cfg.Source,
		operationPause: cfg.OperationPause,
		mintPause:      cfg.MintPause,
		now:            now,
		logger:         logger,
		mintAmounts:    make(map[common.Address]*big.Int, len(cfg.Network.Tokens)),
	}

	for _, t := range cfg.Network.Tokens {
		amount, err := t.BaseUnits()
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Name, err)
		}
		c.mintAmounts[t.Address] = amount
	}
	c.singleMint, _ = cfg.Network.TokenByName(cfg.Network.SingleMintToken)

	c.ops = []Operation{
		{Name: NameSwap, Action: c.swap},
		{Name: NameDeposit, Action: c.deposit},
		{Name: NameMultiMint, Action: c.multiTokenMint},
		{Name: c.singleMint.Name + " Mint", Action: c.singleTokenMint},
	}
	return c, nil
}

// Operations returns the catalog in declaration order.
func (c *Catalog) Operations() []Operation {
	ops := make([]Operation, len(c.ops))
	copy(ops, c.ops)
	return ops
}

// txRecorder collects the hashes of every transaction an operation sends.
type txRecorder struct {
	hashes []string
}

func (r *txRecorder) add(rcpt *chain.Receipt) {
	if rcpt != nil {
		r.hashes = append(r.hashes, rcpt.TxHash.Hex())
	}
}

func resultFrom[T any](out retry.Outcome[T], hashes []string) *Result {
	res := &Result{Attempts: out.Attempts, TxHashes: hashes, Err: out.Err}
	switch {
	case out.Success:
		res.Status = types.OperationSucceeded
	case out.Skipped:
		res.Status = types.OperationSkipped
	default:
		res.Status = types.OperationFailed
	}
	return res
}

// pause sleeps for a random duration in r. Cancellation ends the pause early;
// the caller notices it through ctx before starting the next step.
func (c *Catalog) pause(ctx context.Context, r pacing.Range) {
	_ = c.pacer.Delay(ctx, r)
}

// swapAmount draws a wei amount uniformly from [SwapMinWei, SwapMaxWei].
func (c *Catalog) swapAmount() *big.Int {
	span := new(big.Int).Sub(c.net.SwapMaxWei, c.net.SwapMinWei)
	if !span.IsInt64() || span.Int64() == math.MaxInt64 {
		return new(big.Int).Set(c.net.SwapMinWei)
	}
	offset := c.src.Int64N(span.Int64() + 1)
	return new(big.Int).Add(c.net.SwapMinWei, big.NewInt(offset))
}

// formatEther renders wei as ETH with six decimals.
func formatEther(wei *big.Int) string {
	eth := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return eth.Text('f', 6)
}
