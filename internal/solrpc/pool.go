package solrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stphkoo/solana-indexer/internal/observability"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

// Cooldown backoff sequence: on any rate-limit signal an endpoint cools
// down for an increasing duration, capped at 5s.
var cooldownSteps = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
}

const cooldownCap = 5 * time.Second

// PoolConfig configures Pool's endpoints, concurrency, and timeouts.
type PoolConfig struct {
	PrimaryURL     string
	FallbackURLs   []string
	Concurrency    int
	MinDelay       time.Duration
	RequestTimeout time.Duration
	MaxTxVersion   uint8
}

// DefaultPoolConfig returns the pool's default configuration.
func DefaultPoolConfig(primaryURL string) PoolConfig {
	return PoolConfig{
		PrimaryURL:     primaryURL,
		Concurrency:    4,
		MinDelay:       250 * time.Millisecond,
		RequestTimeout: DefaultRequestTimeout,
		MaxTxVersion:   1,
	}
}

// endpoint wraps one Client with its own rate limiter and cooldown state. A
// single mutex per endpoint is sufficient at this scale.
type endpoint struct {
	client        *Client
	mu            sync.Mutex
	minDelay      time.Duration
	lastRequest   time.Time
	cooldownUntil time.Time
	failureStreak int
}

func (e *endpoint) waitAndMark(ctx context.Context) error {
	for {
		e.mu.Lock()
		now := time.Now()
		wait := time.Duration(0)
		if now.Before(e.cooldownUntil) {
			wait = e.cooldownUntil.Sub(now)
		} else if since := now.Sub(e.lastRequest); since < e.minDelay {
			wait = e.minDelay - since
		}
		if wait == 0 {
			e.lastRequest = now
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (e *endpoint) onRateLimited() {
	e.mu.Lock()
	defer e.mu.Unlock()
	step := e.failureStreak
	if step >= len(cooldownSteps) {
		step = len(cooldownSteps) - 1
	}
	d := cooldownSteps[step]
	if d > cooldownCap {
		d = cooldownCap
	}
	e.cooldownUntil = time.Now().Add(d)
	e.failureStreak++
}

func (e *endpoint) onSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureStreak = 0
}

// Pool fans out getTransaction calls across a primary endpoint and ordered
// fallbacks, enforcing a per-endpoint minimum request spacing and a global
// concurrency cap.
type Pool struct {
	endpoints    []*endpoint
	sem          chan struct{}
	maxTxVersion uint8
}

// NewPool builds a Pool from cfg.
func NewPool(cfg PoolConfig) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = 250 * time.Millisecond
	}

	urls := append([]string{cfg.PrimaryURL}, cfg.FallbackURLs...)
	endpoints := make([]*endpoint, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		endpoints = append(endpoints, &endpoint{
			client:   NewClient(u, cfg.RequestTimeout),
			minDelay: minDelay,
		})
	}

	return &Pool{
		endpoints:    endpoints,
		sem:          make(chan struct{}, concurrency),
		maxTxVersion: cfg.MaxTxVersion,
	}
}

// FetchTx implements the fetch_tx contract: rate-limited, fails over to
// the next endpoint on RateLimited/Transient, never retries NotFound or
// Permanent (those are terminal and returned immediately).
func (p *Pool) FetchTx(ctx context.Context, signature string) (*schema.TxResult, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	var lastErr error
	for _, ep := range p.endpoints {
		if err := ep.waitAndMark(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		tx, err := ep.client.FetchTx(ctx, signature, p.maxTxVersion)
		observability.RecordRPCCall(ep.client.Endpoint(), time.Since(start).Seconds(), rpcErrClass(err))
		if err == nil {
			ep.onSuccess()
			observability.DefaultMetrics.RPCEndpointUp.WithLabelValues(ep.client.Endpoint()).Set(1)
			return tx, nil
		}

		lastErr = err
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermanent), errors.Is(err, ErrUnparsable):
			// Terminal: never retries, not even against a fallback.
			return nil, err
		case errors.Is(err, ErrRateLimited):
			ep.onRateLimited()
			observability.DefaultMetrics.RPCEndpointUp.WithLabelValues(ep.client.Endpoint()).Set(0)
			continue
		case errors.Is(err, ErrTransient):
			continue
		default:
			continue
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w: no endpoints configured", ErrPermanent)
	}
	return nil, lastErr
}
