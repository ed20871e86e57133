package solrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// BlockSignature is one transaction's signature-level metadata as returned
// by getBlock with transactionDetails="accounts", enough to build a
// RawTxEnvelope without hydrating the full transaction.
type BlockSignature struct {
	Signature string
	IsSuccess bool
}

// FetchBlockSignatures lists the transaction signatures in slot, in the
// block's execution order, via getBlock(transactionDetails=accounts), which
// carries each transaction's signatures and meta.err.
// It returns ErrNotFound when the slot was skipped (no block produced).
func (c *Client) FetchBlockSignatures(ctx context.Context, slot uint64, maxTxVersion uint8) ([]BlockSignature, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "getBlock",
		Params: []interface{}{
			slot,
			map[string]interface{}{
				"encoding":                       "json",
				"transactionDetails":             "accounts",
				"maxSupportedTransactionVersion": maxTxVersion,
				"rewards":                        false,
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
		return nil, fmt.Errorf("%w: slot %d skipped", ErrNotFound, slot)
	}

	var block struct {
		Signatures   []string `json:"signatures"`
		Transactions []struct {
			Transaction struct {
				Signatures []string `json:"signatures"`
			} `json:"transaction"`
			Meta struct {
				Err interface{} `json:"err"`
			} `json:"meta"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(rpcResp.Result, &block); err != nil {
		return nil, fmt.Errorf("%w: decode block: %v", ErrUnparsable, err)
	}

	out := make([]BlockSignature, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if len(tx.Transaction.Signatures) == 0 {
			continue
		}
		out = append(out, BlockSignature{
			Signature: tx.Transaction.Signatures[0],
			IsSuccess: tx.Meta.Err == nil,
		})
	}
	return out, nil
}
