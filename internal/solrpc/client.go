package solrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/stphkoo/solana-indexer/internal/schema"
)

// DefaultRequestTimeout is the per-call deadline applied to each RPC request.
const DefaultRequestTimeout = 20 * time.Second

// Client is a single-endpoint JSON-RPC 2.0 client for getTransaction. It
// performs no retry and no rate limiting of its own; Pool owns both of
// those concerns so they can be applied uniformly across a failover group.
//
// It uses the same request/response envelope shape and atomic request-id
// counter pattern common to JSON-RPC 2.0 clients, with the retry loop
// lifted out into Pool and the result widened to the full schema.TxResult
// the decoder needs.
type Client struct {
	endpoint  string
	http      *http.Client
	requestID atomic.Uint64
}

// NewClient builds a Client against endpoint with the given per-call
// timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// Endpoint returns the URL this client talks to.
func (c *Client) Endpoint() string { return c.endpoint }

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// FetchTx performs a single getTransaction call. It never retries; callers
// (Pool) are responsible for backoff, cooldown, and failover across
// endpoints. The returned error is always one of the ErrXxx sentinels in
// errors.go, wrapped with context via %w.
func (c *Client) FetchTx(ctx context.Context, signature string, maxTxVersion uint8) (*schema.TxResult, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "getTransaction",
		Params: []interface{}{
			signature,
			map[string]interface{}{
				"encoding":                       "json",
				"maxSupportedTransactionVersion": maxTxVersion,
				"commitment":                     "confirmed",
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		}
		return nil, fmt.Errorf("%w: http request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrPermanent, resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrUnparsable, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil, fmt.Errorf("%w: signature %s", ErrNotFound, signature)
	}

	var tx schema.TxResult
	if err := json.Unmarshal(rpcResp.Result, &tx); err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", ErrUnparsable, err)
	}
	if tx.Meta == nil || tx.Transaction == nil || tx.Transaction.Message == nil {
		return nil, fmt.Errorf("%w: missing meta or message", ErrUnparsable)
	}
	if tx.Meta.PreBalances == nil || tx.Meta.PostBalances == nil {
		return nil, fmt.Errorf("%w: missing pre/post balances", ErrUnparsable)
	}

	return &tx, nil
}
