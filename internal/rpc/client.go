// Package rpc provides a JSON-RPC client for the chain node.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gateway-fm/walletbot/internal/ratelimit"
)

// CallRequest is the transaction object accepted by eth_call and eth_estimateGas.
type CallRequest struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// TransactionReceipt represents an Ethereum transaction receipt.
type TransactionReceipt struct {
	TxHash            common.Hash `json:"transactionHash"`
	Status            uint64      `json:"status"` // 1 = success, 0 = failure
	GasUsed           uint64      `json:"gasUsed"`
	BlockNumber       uint64      `json:"blockNumber"`
	EffectiveGasPrice uint64      `json:"effectiveGasPrice"`
}

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// JSONRPCError represents a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ClientConfig holds configuration for the RPC client.
type ClientConfig struct {
	URL            string
	Timeout        time.Duration
	MaxRetries     int // retries of 429/502/503/504 responses only
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Limiter        *ratelimit.Limiter // nil = unlimited
	Logger         *slog.Logger

	// OnCall, if set, is called after every request with its method, duration and error.
	OnCall func(method string, d time.Duration, err error)
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:            url,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// HTTPClient implements Client using HTTP.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	limiter    *ratelimit.Limiter
	onCall     func(method string, d time.Duration, err error)
	logger     *slog.Logger
}

// NewHTTPClient creates a new HTTP-based RPC client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		url: cfg.URL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		limiter:    cfg.Limiter,
		onCall:     cfg.OnCall,
		logger:     logger,
	}
}

// Call makes a JSON-RPC call.
// Rate-limit and gateway responses are retried here; every other failure is returned
// to the caller, which owns the retry policy for chain actions.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	result, err := c.callWithRetry(ctx, method, body)
	if c.onCall != nil {
		c.onCall(method, time.Since(start), err)
	}
	return result, err
}

func (c *HTTPClient) callWithRetry(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	backoff := c.backoff

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.doRequest(ctx, body)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryableHTTPError(err) || attempt >= c.maxRetries {
			return nil, err
		}

		delay := getRetryDelay(err, backoff)
		c.logger.Debug("RPC got retryable HTTP error, retrying",
			slog.String("method", method),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *HTTPClient) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				retryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(errBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	return rpcResp.Result, nil
}

// RPCError is an RPC-specific error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func isRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// HTTPStatusError represents an HTTP-level error (non-2xx status).
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s (body: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true if this HTTP error should be retried.
func (e *HTTPStatusError) IsRetryable() bool {
	// 429 Too Many Requests, 502 Bad Gateway, 503 Service Unavailable, 504 Gateway Timeout
	return e.StatusCode == 429 || e.StatusCode == 502 ||
		e.StatusCode == 503 || e.StatusCode == 504
}

func isRetryableHTTPError(err error) bool {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}

func getRetryDelay(err error, defaultBackoff time.Duration) time.Duration {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return defaultBackoff
}

func decodeUint64(method string, result json.RawMessage) (uint64, error) {
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return 0, fmt.Errorf("%s: failed to unmarshal result: %w", method, err)
	}
	v, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid quantity %q: %w", method, hex, err)
	}
	return v, nil
}

func decodeBig(method string, result json.RawMessage) (*big.Int, error) {
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal result: %w", method, err)
	}
	v, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid quantity %q: %w", method, hex, err)
	}
	return v, nil
}

// ChainID returns the chain ID reported by the node.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return nil, err
	}
	return decodeBig("eth_chainId", result)
}

// GetBlockNumber returns the latest block number.
func (c *HTTPClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	return decodeUint64("eth_blockNumber", result)
}

// GetNonce fetches the nonce for an address with "pending" to include mempool transactions.
func (c *HTTPClient) GetNonce(ctx context.Context, address common.Address) (uint64, error) {
	result, err := c.Call(ctx, "eth_getTransactionCount", []any{address, "pending"})
	if err != nil {
		return 0, err
	}
	return decodeUint64("eth_getTransactionCount", result)
}

// GetGasPrice returns the current gas price from the node.
func (c *HTTPClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, err
	}
	return decodeBig("eth_gasPrice", result)
}

// EstimateGas estimates the gas needed for msg.
func (c *HTTPClient) EstimateGas(ctx context.Context, msg CallRequest) (uint64, error) {
	result, err := c.Call(ctx, "eth_estimateGas", []any{msg})
	if err != nil {
		return 0, err
	}
	return decodeUint64("eth_estimateGas", result)
}

// EthCall executes msg against the latest block and returns the raw output.
func (c *HTTPClient) EthCall(ctx context.Context, msg CallRequest) ([]byte, error) {
	result, err := c.Call(ctx, "eth_call", []any{msg, "latest"})
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("eth_call: failed to unmarshal result: %w", err)
	}
	return out, nil
}

// SendRawTransaction sends a signed transaction.
func (c *HTTPClient) SendRawTransaction(ctx context.Context, txRLP []byte) (common.Hash, error) {
	result, err := c.Call(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(txRLP)})
	if err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: failed to unmarshal hash: %w", err)
	}
	return hash, nil
}

// GetTransactionReceipt returns the receipt for a transaction.
// A nil receipt with a nil error means the transaction is still pending.
func (c *HTTPClient) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*TransactionReceipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []any{txHash})
	if err != nil {
		return nil, err
	}

	if string(result) == "null" || len(result) == 0 {
		return nil, nil
	}

	var rawReceipt struct {
		TxHash            common.Hash `json:"transactionHash"`
		Status            string      `json:"status"`
		GasUsed           string      `json:"gasUsed"`
		BlockNumber       string      `json:"blockNumber"`
		EffectiveGasPrice string      `json:"effectiveGasPrice"`
	}
	if err := json.Unmarshal(result, &rawReceipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}

	status, err := hexutil.DecodeUint64(rawReceipt.Status)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: invalid status %q: %w", txHash.Hex(), rawReceipt.Status, err)
	}
	blockNumber, err := hexutil.DecodeUint64(rawReceipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: invalid blockNumber %q: %w", txHash.Hex(), rawReceipt.BlockNumber, err)
	}
	// Informational only; some nodes omit effectiveGasPrice.
	gasUsed, _ := hexutil.DecodeUint64(rawReceipt.GasUsed)
	effectiveGasPrice, _ := hexutil.DecodeUint64(rawReceipt.EffectiveGasPrice)

	return &TransactionReceipt{
		TxHash:            rawReceipt.TxHash,
		Status:            status,
		GasUsed:           gasUsed,
		BlockNumber:       blockNumber,
		EffectiveGasPrice: effectiveGasPrice,
	}, nil
}
