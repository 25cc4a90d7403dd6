// Package chain reads token supply and holder data from a Solana JSON-RPC
// node and assembles token snapshots.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/RichardoC/mintchat/internal/metrics"
	"github.com/tidwall/gjson"
)

var (
	ErrInvalidMint    = errors.New("invalid mint address")
	ErrRPCUnavailable = errors.New("chain rpc unavailable")
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TokenAmount mirrors the UiTokenAmount object returned by the node.
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

type TokenAccount struct {
	Address string `json:"address"`
	TokenAmount
}

type Client struct {
	rpcURL     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	nextID     atomic.Uint64
}

type Config struct {
	RPCURL  string
	Timeout time.Duration
}

func NewClient(cfg Config, m *metrics.Metrics) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}, nil
}

// Call performs one JSON-RPC request and returns the raw result. Transport
// failures, timeouts and RPC error objects all wrap ErrRPCUnavailable.
func (c *Client) Call(ctx context.Context, method string, params ...any) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream("rpc", start, err) }()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRPCUnavailable, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read response: %w", ErrRPCUnavailable, method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: http status %d", ErrRPCUnavailable, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %s: unmarshal response: %w", ErrRPCUnavailable, method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRPCUnavailable, method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// GetTokenSupply returns the total supply of mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	result, err := c.Call(ctx, "getTokenSupply", mint)
	if err != nil {
		return nil, err
	}

	var supply struct {
		Value *TokenAmount `json:"value"`
	}
	if err := json.Unmarshal(result, &supply); err != nil {
		return nil, fmt.Errorf("%w: getTokenSupply: %w", ErrRPCUnavailable, err)
	}
	if supply.Value == nil {
		return nil, fmt.Errorf("%w: getTokenSupply: empty value", ErrRPCUnavailable)
	}
	return supply.Value, nil
}

// GetTokenLargestAccounts returns the largest token accounts of mint,
// ordered by balance as reported by the node.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccount, error) {
	result, err := c.Call(ctx, "getTokenLargestAccounts", mint)
	if err != nil {
		return nil, err
	}

	var largest struct {
		Value []TokenAccount `json:"value"`
	}
	if err := json.Unmarshal(result, &largest); err != nil {
		return nil, fmt.Errorf("%w: getTokenLargestAccounts: %w", ErrRPCUnavailable, err)
	}
	return largest.Value, nil
}

// GetAccountOwner resolves the owner wallet of a token account from its
// jsonParsed account data.
func (c *Client) GetAccountOwner(ctx context.Context, address string) (string, error) {
	result, err := c.Call(ctx, "getAccountInfo", address, map[string]string{"encoding": "jsonParsed"})
	if err != nil {
		return "", err
	}

	owner := gjson.GetBytes(result, "value.data.parsed.info.owner")
	if owner.Type != gjson.String || owner.String() == "" {
		return "", fmt.Errorf("getAccountInfo %s: no parsed owner", address)
	}
	return owner.String(), nil
}
