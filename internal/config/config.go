// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/gateway-fm/walletbot/internal/pacing"
	"github.com/gateway-fm/walletbot/internal/retry"
)

// Token is an entry of the mintable token catalog.
type Token struct {
	Name     string
	Address  common.Address
	Amount   string // human-readable, scaled by Decimals at mint time
	Decimals uint8
}

// BaseUnits returns Amount * 10^Decimals.
func (t Token) BaseUnits() (*big.Int, error) {
	return ParseUnits(t.Amount, t.Decimals)
}

// Network holds the addresses and constants of the target chain.
type Network struct {
	RPCURL  string
	ChainID int64

	SwapRouter common.Address
	WETH       common.Address
	SwapTokens []common.Address
	SwapMinWei *big.Int
	SwapMaxWei *big.Int

	DepositRouter common.Address
	DepositToken  common.Address
	PositionID    *big.Int

	Tokens          []Token
	SingleMintToken string
}

// TokenByAddress returns the catalog entry for addr.
func (n *Network) TokenByAddress(addr common.Address) (Token, bool) {
	for _, t := range n.Tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}

// TokenByName returns the catalog entry named name.
func (n *Network) TokenByName(name string) (Token, bool) {
	for _, t := range n.Tokens {
		if t.Name == name {
			return t, true
		}
	}
	return Token{}, false
}

// Config holds wallet bot configuration.
type Config struct {
	Network  Network
	KeysFile string

	CycleInterval     time.Duration
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryBackoff      float64

	OperationPause pacing.Range
	MintPause      pacing.Range
	WalletPause    pacing.Range

	RPCTimeout          time.Duration
	RPCRateLimit        int // requests per second, 0 = unlimited
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration

	ListenAddr         string // empty disables the HTTP API
	DatabasePath       string // empty disables history storage
	CORSAllowedOrigins string
	LogLevel           string
	LogFormat          string
}

// Defaults
const (
	DefaultRPCURL              = "https://carrot.megaeth.com/rpc"
	DefaultChainID             = 6342
	DefaultKeysFile            = "private_keys.txt"
	DefaultCycleInterval       = 24 * time.Hour
	DefaultRPCTimeout          = 30 * time.Second
	DefaultReceiptTimeout      = 2 * time.Minute
	DefaultReceiptPollInterval = 2 * time.Second
	DefaultListenAddr          = ":3001"
	DefaultDatabasePath        = "./data/walletbot.db"
	DefaultCORSAllowedOrigins  = "*"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultSingleMintToken     = "cUSD"

	DefaultSwapRouter    = "0xa6b579684e943f7d00d616a48cf99b5147fc57a5"
	DefaultWETH          = "0x776401b9BC8aAe31A685731B7147D4445fD9FB19"
	DefaultSwapToken     = "0xFaf334e157175Ff676911AdcF0964D7f54F2C424"
	DefaultDepositRouter = "0x13c051431753fce53eaec02af64a38a273e198d0"
	DefaultDepositToken  = "0xfaf334e157175ff676911adcf0964d7f54f2c424"
	DefaultPositionID    = "39584631314667805491088689848282554447608744687563418855093496965842959155466"

	DefaultSwapMinWei = 1_000_000_000_000  // 0.000001 ETH
	DefaultSwapMaxWei = 10_000_000_000_000 // 0.00001 ETH
)

// DefaultTokens is the mintable token catalog.
func DefaultTokens() []Token {
	return []Token{
		{Name: "tkETH", Address: common.HexToAddress("0x176735870dc6c22b4ebfbf519de2ce758de78d94"), Amount: "1", Decimals: 18},
		{Name: "tkUSDC", Address: common.HexToAddress("0xfaf334e157175ff676911adcf0964d7f54f2c424"), Amount: "2000", Decimals: 6},
		{Name: "cUSD", Address: common.HexToAddress("0xe9b6e75c243b6100ffcb1c06e8f78f96feea727f"), Amount: "1000", Decimals: 18},
		{Name: "tkWBTC", Address: common.HexToAddress("0xf82ff0799448630eb56ce747db840a2e02cde4d8"), Amount: "0.02", Decimals: 8},
	}
}

// DefaultNetwork returns the production network constants.
func DefaultNetwork() Network {
	positionID, _ := new(big.Int).SetString(DefaultPositionID, 10)

	// The swap list repeats one token; the draw is kept over the list as-is.
	swapTokens := make([]common.Address, 6)
	for i := range swapTokens {
		swapTokens[i] = common.HexToAddress(DefaultSwapToken)
	}

	return Network{
		RPCURL:          DefaultRPCURL,
		ChainID:         DefaultChainID,
		SwapRouter:      common.HexToAddress(DefaultSwapRouter),
		WETH:            common.HexToAddress(DefaultWETH),
		SwapTokens:      swapTokens,
		SwapMinWei:      big.NewInt(DefaultSwapMinWei),
		SwapMaxWei:      big.NewInt(DefaultSwapMaxWei),
		DepositRouter:   common.HexToAddress(DefaultDepositRouter),
		DepositToken:    common.HexToAddress(DefaultDepositToken),
		PositionID:      positionID,
		Tokens:          DefaultTokens(),
		SingleMintToken: DefaultSingleMintToken,
	}
}

// Default returns a config populated with defaults only.
func Default() *Config {
	return &Config{
		Network:             DefaultNetwork(),
		KeysFile:            DefaultKeysFile,
		CycleInterval:       DefaultCycleInterval,
		RetryMaxAttempts:    retry.DefaultMaxRetries,
		RetryInitialDelay:   retry.DefaultInitialDelay,
		RetryBackoff:        retry.DefaultBackoffFactor,
		OperationPause:      pacing.OperationPause,
		MintPause:           pacing.MintPause,
		WalletPause:         pacing.WalletPause,
		RPCTimeout:          DefaultRPCTimeout,
		ReceiptTimeout:      DefaultReceiptTimeout,
		ReceiptPollInterval: DefaultReceiptPollInterval,
		ListenAddr:          DefaultListenAddr,
		DatabasePath:        DefaultDatabasePath,
		CORSAllowedOrigins:  DefaultCORSAllowedOrigins,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
	}
}

// LoadDotEnv loads .env and then .env.local, which overrides it.
// Missing files are ignored.
func LoadDotEnv() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
}

// Load reads configuration from environment variables and command-line flags.
// Command-line flags take precedence over environment variables.
func Load(args []string) (*Config, error) {
	cfg := Default()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("walletbot", flag.ContinueOnError)
	var (
		rpcURL       = fs.String("rpc", cfg.Network.RPCURL, "Chain RPC URL")
		chainID      = fs.Int64("chainid", cfg.Network.ChainID, "Chain ID")
		keysFile     = fs.String("keys", cfg.KeysFile, "Path to the private key list")
		interval     = fs.Duration("interval", cfg.CycleInterval, "Cycle interval")
		listenAddr   = fs.String("listen", cfg.ListenAddr, "HTTP listen address (empty disables)")
		dbPath       = fs.String("db", cfg.DatabasePath, "SQLite database path (empty disables)")
		logLevel     = fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
		logFormat    = fs.String("log-format", cfg.LogFormat, "Log format (json, text)")
		rpcRateLimit = fs.Int("rpc-rate-limit", cfg.RPCRateLimit, "Max RPC requests per second (0 = unlimited)")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Network.RPCURL = *rpcURL
	cfg.Network.ChainID = *chainID
	cfg.KeysFile = *keysFile
	cfg.CycleInterval = *interval
	cfg.ListenAddr = *listenAddr
	cfg.DatabasePath = *dbPath
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	cfg.RPCRateLimit = *rpcRateLimit

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto c.
// LISTEN_ADDR and DATABASE_PATH may be set to empty to disable the feature.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return strings.TrimSpace(v), ok
	}

	if v, ok := get("RPC_URL"); ok && v != "" {
		c.Network.RPCURL = v
	}
	if v, ok := get("CHAIN_ID"); ok && v != "" {
		id, err := parseInt64Env(v)
		if err != nil {
			return fmt.Errorf("invalid CHAIN_ID: %w", err)
		}
		c.Network.ChainID = id
	}
	if v, ok := get("KEYS_FILE"); ok && v != "" {
		c.KeysFile = v
	}
	if v, ok := get("LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := get("DATABASE_PATH"); ok {
		c.DatabasePath = v
	}
	if v, ok := get("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		c.CORSAllowedOrigins = v
	}
	if v, ok := get("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := get("LOG_FORMAT"); ok && v != "" {
		c.LogFormat = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CYCLE_INTERVAL", &c.CycleInterval},
		{"RETRY_INITIAL_DELAY", &c.RetryInitialDelay},
		{"RPC_TIMEOUT", &c.RPCTimeout},
		{"RECEIPT_TIMEOUT", &c.ReceiptTimeout},
		{"RECEIPT_POLL_INTERVAL", &c.ReceiptPollInterval},
	}
	for _, d := range durations {
		if v, ok := get(d.key); ok && v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	if v, ok := get("RETRY_MAX_ATTEMPTS"); ok && v != "" {
		n, err := parseIntEnv(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.RetryMaxAttempts = n
	}
	if v, ok := get("RETRY_BACKOFF_FACTOR"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RETRY_BACKOFF_FACTOR: %w", err)
		}
		c.RetryBackoff = f
	}
	if v, ok := get("RPC_RATE_LIMIT"); ok && v != "" {
		n, err := parseIntEnv(v)
		if err != nil {
			return fmt.Errorf("invalid RPC_RATE_LIMIT: %w", err)
		}
		c.RPCRateLimit = n
	}

	ranges := []struct {
		key string
		dst *pacing.Range
	}{
		{"OPERATION_PAUSE", &c.OperationPause},
		{"MINT_PAUSE", &c.MintPause},
		{"WALLET_PAUSE", &c.WalletPause},
	}
	for _, r := range ranges {
		if v, ok := get(r.key); ok && v != "" {
			parsed, err := parseRange(r.dst.Name, v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", r.key, err)
			}
			*r.dst = parsed
		}
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Network.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}
	if c.KeysFile == "" {
		return fmt.Errorf("keys file is required")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.RetryInitialDelay < 0 {
		return fmt.Errorf("retry initial delay cannot be negative")
	}
	if c.RetryBackoff < 1 {
		return fmt.Errorf("retry backoff factor must be at least 1")
	}
	for _, r := range []pacing.Range{c.OperationPause, c.MintPause, c.WalletPause} {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("RPC rate limit cannot be negative")
	}
	if c.ReceiptTimeout <= 0 || c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt timeout and poll interval must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	return c.Network.Validate()
}

// Validate checks the network constants for consistency.
func (n *Network) Validate() error {
	if len(n.SwapTokens) == 0 {
		return fmt.Errorf("swap token list is empty")
	}
	if n.SwapMinWei == nil || n.SwapMaxWei == nil || n.SwapMinWei.Sign() <= 0 || n.SwapMaxWei.Cmp(n.SwapMinWei) < 0 {
		return fmt.Errorf("invalid swap amount range")
	}
	if n.PositionID == nil {
		return fmt.Errorf("position ID is required")
	}
	if len(n.Tokens) == 0 {
		return fmt.Errorf("token catalog is empty")
	}
	for _, t := range n.Tokens {
		if _, err := t.BaseUnits(); err != nil {
			return fmt.Errorf("token %s: %w", t.Name, err)
		}
	}
	if _, ok := n.TokenByName(n.SingleMintToken); !ok {
		return fmt.Errorf("single mint token %q is not in the token catalog", n.SingleMintToken)
	}
	return nil
}

// ParseUnits converts a decimal string such as "0.02" into base units.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	return v, nil
}

// parseRange parses "min-max" seconds.
func parseRange(name, s string) (pacing.Range, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return pacing.Range{}, fmt.Errorf("expected min-max, got %q", s)
	}
	min, err := parseIntEnv(strings.TrimSpace(lo))
	if err != nil {
		return pacing.Range{}, err
	}
	max, err := parseIntEnv(strings.TrimSpace(hi))
	if err != nil {
		return pacing.Range{}, err
	}
	r := pacing.Range{Name: name, Min: min, Max: max}
	return r, r.Validate()
}

// parseIntEnv parses a string environment variable as an integer.
func parseIntEnv(s string) (int, error) {
	return strconv.Atoi(s)
}

// parseInt64Env parses a string environment variable as an int64.
func parseInt64Env(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
