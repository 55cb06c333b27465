// Package contracts encodes calldata for the token, swap and deposit contracts.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Function selectors (first 4 bytes of keccak256(signature))
var (
	// ERC20 selectors
	SelectorApprove   = selector("approve(address,uint256)")
	SelectorBalanceOf = selector("balanceOf(address)")
	SelectorAllowance = selector("allowance(address,address)")

	// Faucet token selector
	SelectorMint = selector("mint(address,uint256)")

	// Deposit router selector
	SelectorDeposit = selector("deposit(uint256,uint256,address)")

	// Swap router selector
	SelectorSwapExactETHForTokens = selector("swapExactETHForTokens(uint256,address[],address,uint256)")
)

// MaxUint256 is 2^256 - 1, used for unlimited approvals.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const routerABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"}]`

var routerABI = mustParseABI(routerABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid router ABI: %v", err))
	}
	return parsed
}

// selector computes the 4-byte function selector from signature.
func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// EncodeApprove encodes ERC20.approve(address,uint256) call.
func EncodeApprove(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorApprove)
	copy(data[4+12:36], spender.Bytes())
	amount.FillBytes(data[36:68])
	return data
}

// EncodeBalanceOf encodes ERC20.balanceOf(address) call.
func EncodeBalanceOf(owner common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], SelectorBalanceOf)
	copy(data[4+12:36], owner.Bytes())
	return data
}

// EncodeAllowance encodes ERC20.allowance(address,address) call.
func EncodeAllowance(owner, spender common.Address) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorAllowance)
	copy(data[4+12:36], owner.Bytes())
	copy(data[36+12:68], spender.Bytes())
	return data
}

// EncodeMint encodes the faucet token's mint(address,uint256) call.
func EncodeMint(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorMint)
	copy(data[4+12:36], to.Bytes())
	amount.FillBytes(data[36:68])
	return data
}

// EncodeDeposit encodes the router's deposit(uint256 positionId, uint256 amount, address to) call.
func EncodeDeposit(positionID, amount *big.Int, to common.Address) []byte {
	data := make([]byte, 4+32*3)
	copy(data[:4], SelectorDeposit)
	positionID.FillBytes(data[4:36])
	amount.FillBytes(data[36:68])
	copy(data[68+12:100], to.Bytes())
	return data
}

// EncodeSwapExactETHForTokens encodes swapExactETHForTokens(amountOutMin, path, to, deadline).
// The ETH amount to swap travels as the transaction value.
func EncodeSwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := routerABI.Pack("swapExactETHForTokens", amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactETHForTokens: %w", err)
	}
	return data, nil
}

// DecodeUint256 decodes a single uint256 return value.
func DecodeUint256(output []byte) (*big.Int, error) {
	if len(output) < 32 {
		return nil, fmt.Errorf("output too short for uint256: %d bytes", len(output))
	}
	return new(big.Int).SetBytes(output[:32]), nil
}
