// Package account loads the wallets the bot operates on.
package account

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoWallets is returned when a wallet list contains no usable keys.
var ErrNoWallets = errors.New("no valid private keys found")

// Account holds a wallet's signing key and address.
// The key must never be logged; String and LogValue only expose the address.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// NewAccount creates an account from a private key.
func NewAccount(privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewAccountFromHex creates an account from a hex-encoded private key,
// with or without the 0x prefix.
func NewAccountFromHex(hexKey string) (*Account, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, err
	}
	return NewAccount(privateKey), nil
}

// String returns the wallet address.
func (a *Account) String() string {
	return a.Address.Hex()
}

// LogValue implements slog.LogValuer so that accounts log as their address.
func (a *Account) LogValue() slog.Value {
	return slog.StringValue(a.Address.Hex())
}

// ParseWalletList reads newline-separated hex private keys.
// Blank lines, # comments, non-hex lines and invalid keys are dropped;
// the number of dropped lines is returned alongside the accounts.
func ParseWalletList(r io.Reader) ([]*Account, int, error) {
	var (
		accounts []*Account
		dropped  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !isHexKey(line) {
			dropped++
			continue
		}
		acct, err := NewAccountFromHex(line)
		if err != nil {
			dropped++
			continue
		}
		accounts = append(accounts, acct)
	}
	if err := scanner.Err(); err != nil {
		return nil, dropped, fmt.Errorf("failed to read wallet list: %w", err)
	}

	return accounts, dropped, nil
}

// LoadWalletFile reads the wallet list at path. An empty result is an error.
func LoadWalletFile(path string) ([]*Account, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wallet list: %w", err)
	}
	defer f.Close()

	accounts, dropped, err := ParseWalletList(f)
	if err != nil {
		return nil, dropped, err
	}
	if len(accounts) == 0 {
		return nil, dropped, fmt.Errorf("%s: %w", path, ErrNoWallets)
	}
	return accounts, dropped, nil
}

// isHexKey reports whether s looks like a 32-byte hex secret.
func isHexKey(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// Well-known test private keys (from Anvil/Hardhat default accounts).
// Used by tests; never funded on a real network.
var TestPrivateKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", // Account 0
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d", // Account 1
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a", // Account 2
}
