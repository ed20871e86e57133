package solrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func txResultBody(slot uint64) string {
	return `{"jsonrpc":"2.0","id":1,"result":{"slot":` + jsonUint(slot) + `,"blockTime":null,` +
		`"transaction":{"signatures":["SIG"],"message":{"accountKeys":["A","B"],"instructions":[]}},` +
		`"meta":{"err":null,"fee":5000,"preBalances":[1005000000,0],"postBalances":[4995000,50000000]}}}`
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestPool_FetchTx_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(txResultBody(100)))
	}))
	defer srv.Close()

	pool := NewPool(PoolConfig{PrimaryURL: srv.URL, Concurrency: 2, MinDelay: time.Millisecond})
	tx, err := pool.FetchTx(context.Background(), "SIG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Slot != 100 {
		t.Fatalf("slot = %d, want 100", tx.Slot)
	}
}

func TestPool_FetchTx_NotFoundIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer srv.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("fallback should never be reached for NotFound")
	}))
	defer fallback.Close()

	pool := NewPool(PoolConfig{PrimaryURL: srv.URL, FallbackURLs: []string{fallback.URL}, MinDelay: time.Millisecond})
	_, err := pool.FetchTx(context.Background(), "SIG")
	if err == nil {
		t.Fatalf("expected ErrNotFound")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
}

func TestPool_FetchTx_RateLimitFailsOverToFallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(txResultBody(200)))
	}))
	defer fallback.Close()

	pool := NewPool(PoolConfig{PrimaryURL: primary.URL, FallbackURLs: []string{fallback.URL}, MinDelay: time.Millisecond})
	tx, err := pool.FetchTx(context.Background(), "SIG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Slot != 200 {
		t.Fatalf("slot = %d, want 200 (from fallback)", tx.Slot)
	}
}

func TestPool_FetchTx_UnparsableOnMissingMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"slot":1,"transaction":{"message":{"accountKeys":[]}}}}`))
	}))
	defer srv.Close()

	pool := NewPool(PoolConfig{PrimaryURL: srv.URL, MinDelay: time.Millisecond})
	_, err := pool.FetchTx(context.Background(), "SIG")
	if err == nil {
		t.Fatalf("expected ErrUnparsable for missing meta")
	}
}
