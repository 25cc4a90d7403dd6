package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHolderA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testHolderB = "2wmVCSfPxGPjrnMMn7rchp4uaeoTqN39mXFC2zhPdri9"
	testOwnerA  = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
)

// newRPCServer answers JSON-RPC calls from a method -> result table. A
// result of type *RPCError is sent as the error object.
func newRPCServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := req.Method
		if req.Method == "getAccountInfo" {
			key += ":" + req.Params[0].(string)
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch v := results[key].(type) {
		case *RPCError:
			resp["error"] = v
		case nil:
			resp["error"] = &RPCError{Code: -32601, Message: "method not found"}
		default:
			resp["result"] = v
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func nativeMintResults() map[string]any {
	return map[string]any{
		"getTokenSupply": map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"amount":         "555000000000000000",
				"decimals":       9,
				"uiAmount":       555000000.0,
				"uiAmountString": "555000000",
			},
		},
		"getTokenLargestAccounts": map[string]any{
			"context": map[string]any{"slot": 1},
			"value": []map[string]any{
				{"address": testHolderA, "amount": "9000000000", "decimals": 9, "uiAmount": 9.0, "uiAmountString": "9"},
				{"address": testHolderB, "amount": "4000000000", "decimals": 9, "uiAmount": 4.0, "uiAmountString": "4"},
			},
		},
		"getAccountInfo:" + testHolderA: map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"data": map[string]any{
					"program": "spl-token",
					"parsed": map[string]any{
						"type": "account",
						"info": map[string]any{"owner": testOwnerA, "mint": NativeMint},
					},
				},
			},
		},
		"getAccountInfo:" + testHolderB: map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   nil,
		},
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{RPCURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}

func TestClientTokenCalls(t *testing.T) {
	srv := newRPCServer(t, nativeMintResults())
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	supply, err := c.GetTokenSupply(ctx, NativeMint)
	require.NoError(t, err)
	assert.Equal(t, 9, supply.Decimals)
	assert.Equal(t, "555000000000000000", supply.Amount)
	require.NotNil(t, supply.UIAmount)

	largest, err := c.GetTokenLargestAccounts(ctx, NativeMint)
	require.NoError(t, err)
	require.Len(t, largest, 2)
	assert.Equal(t, testHolderA, largest[0].Address)
	assert.Equal(t, "9000000000", largest[0].Amount)

	owner, err := c.GetAccountOwner(ctx, testHolderA)
	require.NoError(t, err)
	assert.Equal(t, testOwnerA, owner)

	_, err = c.GetAccountOwner(ctx, testHolderB)
	require.Error(t, err)
}

func TestClientRPCErrorObject(t *testing.T) {
	srv := newRPCServer(t, map[string]any{
		"getTokenSupply": &RPCError{Code: -32602, Message: "Invalid param: not a Token mint"},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.GetTokenSupply(context.Background(), NativeMint)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPCUnavailable)
	assert.Contains(t, err.Error(), "not a Token mint")
}

func TestClientHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.GetTokenLargestAccounts(context.Background(), NativeMint)
	assert.ErrorIs(t, err, ErrRPCUnavailable)
}

func TestClientHonorsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetTokenSupply(ctx, NativeMint)
	assert.ErrorIs(t, err, ErrRPCUnavailable)
}
