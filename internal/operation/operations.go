package operation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/walletbot/internal/account"
	"github.com/gateway-fm/walletbot/internal/chain"
	"github.com/gateway-fm/walletbot/internal/config"
	"github.com/gateway-fm/walletbot/internal/contracts"
	"github.com/gateway-fm/walletbot/internal/random"
	"github.com/gateway-fm/walletbot/internal/retry"
	"github.com/gateway-fm/walletbot/pkg/types"
)

// swap buys a random swap-list token with a small random amount of ETH.
func (c *Catalog) swap(ctx context.Context, acct *account.Account) (*Result, error) {
	token := c.net.SwapTokens[c.src.IntN(len(c.net.SwapTokens))]
	tokenName := "Unknown Token"
	if t, ok := c.net.TokenByAddress(token); ok {
		tokenName = t.Name
	}
	amount := c.swapAmount()
	path := []common.Address{c.net.WETH, token}

	c.logger.Info("swapping",
		slog.String("wallet", acct.Address.Hex()),
		slog.String("amount_eth", formatEther(amount)),
		slog.String("token", tokenName),
	)

	var rec txRecorder
	out := retry.Execute(ctx, c.retry, NameSwap, func(ctx context.Context) (*chain.Receipt, error) {
		deadline := big.NewInt(c.now().Add(swapDeadline).Unix())
		// amountOutMin is zero: the swap accepts any output.
		data, err := contracts.EncodeSwapExactETHForTokens(new(big.Int), path, acct.Address, deadline)
		if err != nil {
			return nil, err
		}
		rcpt, err := c.chain.Send(ctx, acct, chain.Intent{
			To:    c.net.SwapRouter,
			Value: amount,
			Data:  data,
			Label: NameSwap,
		})
		rec.add(rcpt)
		return rcpt, err
	})

	if out.Success {
		c.logger.Info("swap completed", slog.String("tx", out.Value.TxHash.Hex()))
		c.pause(ctx, c.operationPause)
	}
	return resultFrom(out, rec.hashes), nil
}

// deposit puts 3% of the deposit token balance into the fixed position,
// approving the router first when the allowance is not unlimited.
func (c *Catalog) deposit(ctx context.Context, acct *account.Account) (*Result, error) {
	tokenName := "deposit token"
	if t, ok := c.net.TokenByAddress(c.net.DepositToken); ok {
		tokenName = t.Name
	}

	var rec txRecorder
	out := retry.Execute(ctx, c.retry, "Teko Deposit", func(ctx context.Context) (*chain.Receipt, error) {
		balance, err := c.readUint256(ctx, c.net.DepositToken, contracts.EncodeBalanceOf(acct.Address))
		if err != nil {
			return nil, fmt.Errorf("balanceOf: %w", err)
		}
		if balance.Sign() == 0 {
			return nil, retry.Skip("no %s balance", tokenName)
		}

		allowance, err := c.readUint256(ctx, c.net.DepositToken, contracts.EncodeAllowance(acct.Address, c.net.DepositRouter))
		if err != nil {
			return nil, fmt.Errorf("allowance: %w", err)
		}
		if allowance.Cmp(contracts.MaxUint256) < 0 {
			c.logger.Info("approving tokens",
				slog.String("token", tokenName),
				slog.String("spender", c.net.DepositRouter.Hex()),
			)
			rcpt, err := c.chain.Send(ctx, acct, chain.Intent{
				To:    c.net.DepositToken,
				Data:  contracts.EncodeApprove(c.net.DepositRouter, contracts.MaxUint256),
				Label: "approve",
			})
			rec.add(rcpt)
			if err != nil {
				return nil, fmt.Errorf("approve: %w", err)
			}
		}

		amount := new(big.Int).Div(new(big.Int).Mul(balance, big.NewInt(3)), big.NewInt(100))
		c.logger.Info("depositing",
			slog.String("wallet", acct.Address.Hex()),
			slog.String("amount", amount.String()),
			slog.String("token", tokenName),
		)
		rcpt, err := c.chain.Send(ctx, acct, chain.Intent{
			To:    c.net.DepositRouter,
			Data:  contracts.EncodeDeposit(c.net.PositionID, amount, acct.Address),
			Label: NameDeposit,
		})
		rec.add(rcpt)
		return rcpt, err
	})

	if out.Success {
		c.logger.Info("deposit completed", slog.String("tx", out.Value.TxHash.Hex()))
		c.pause(ctx, c.operationPause)
	}
	return resultFrom(out, rec.hashes), nil
}

// multiTokenMint mints every catalog token once, in random order.
// It succeeds when at least one mint succeeded.
func (c *Catalog) multiTokenMint(ctx context.Context, acct *account.Account) (*Result, error) {
	tokens := random.Shuffle(c.src, c.net.Tokens)

	var (
		rec       txRecorder
		attempts  int
		succeeded int
		failed    int
		lastErr   error
	)

	for _, tok := range tokens {
		if ctx.Err() != nil {
			break
		}

		c.logger.Info("attempting mint", slog.String("token", tok.Name))
		out := c.mint(ctx, acct, tok, &rec)
		attempts += out.Attempts

		if out.Success {
			succeeded++
			c.logger.Info("token minted",
				slog.String("token", tok.Name),
				slog.String("tx", out.Value.TxHash.Hex()),
			)
		} else {
			failed++
			lastErr = out.Err
		}

		c.pause(ctx, c.mintPause)
	}

	c.logger.Info("minting summary",
		slog.String("wallet", acct.Address.Hex()),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
	)

	res := &Result{Attempts: attempts, TxHashes: rec.hashes, Status: types.OperationSucceeded}
	if succeeded == 0 {
		res.Status = types.OperationFailed
		res.Err = ctx.Err()
		if lastErr != nil {
			res.Err = fmt.Errorf("no token minted (%d failed): %w", failed, lastErr)
		}
	}
	return res, nil
}

// singleTokenMint mints the configured single-mint token.
func (c *Catalog) singleTokenMint(ctx context.Context, acct *account.Account) (*Result, error) {
	var rec txRecorder
	out := c.mint(ctx, acct, c.singleMint, &rec)

	if out.Success {
		c.logger.Info("token minted",
			slog.String("token", c.singleMint.Name),
			slog.String("tx", out.Value.TxHash.Hex()),
		)
		c.pause(ctx, c.operationPause)
	}
	return resultFrom(out, rec.hashes), nil
}

// mint calls tok.mint(wallet, amount * 10^decimals) under its own retry.
func (c *Catalog) mint(ctx context.Context, acct *account.Account, tok config.Token, rec *txRecorder) retry.Outcome[*chain.Receipt] {
	amount := c.mintAmounts[tok.Address]
	return retry.Execute(ctx, c.retry, tok.Name+" Mint", func(ctx context.Context) (*chain.Receipt, error) {
		rcpt, err := c.chain.Send(ctx, acct, chain.Intent{
			To:    tok.Address,
			Data:  contracts.EncodeMint(acct.Address, amount),
			Label: tok.Name + " Mint",
		})
		rec.add(rcpt)
		return rcpt, err
	})
}

func (c *Catalog) readUint256(ctx context.Context, to common.Address, data []byte) (*big.Int, error) {
	out, err := c.chain.Call(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return contracts.DecodeUint256(out)
}
