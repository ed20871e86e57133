// Package consumer implements C5: the per-partition loop that reads
// RawTxEnvelope records from the input topic, orchestrates hydration (C1),
// extraction (C2) and swap detection (C3), classifies failures through the
// retry/DLQ manager (C4), publishes the derived records, and commits the
// input offset exactly once per envelope.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stphkoo/solana-indexer/internal/extractor"
	"github.com/stphkoo/solana-indexer/internal/observability"
	"github.com/stphkoo/solana-indexer/internal/retry"
	"github.com/stphkoo/solana-indexer/internal/schema"
	"github.com/stphkoo/solana-indexer/internal/swapdetect"
)

// RPCPool is the C1 contract the loop depends on. solrpc.Pool satisfies
// this directly; tests supply a fake.
type RPCPool interface {
	FetchTx(ctx context.Context, signature string) (*schema.TxResult, error)
}

// Producer is the output side the loop depends on. kafkaio.OutputProducer
// satisfies this directly.
type Producer interface {
	PublishNativeDeltas(ctx context.Context, signature string, rows []schema.NativeBalanceDelta) error
	PublishTokenDeltas(ctx context.Context, signature string, rows []schema.TokenBalanceDelta) error
	PublishSwaps(ctx context.Context, signature string, rows []schema.SwapEvent) error
	PublishDLQ(ctx context.Context, rec schema.DlqRecord) error
	DLQConfigured() bool
}

// Reader is the input side the loop depends on. kafka.Reader satisfies
// this directly.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Clock abstracts time.Now/time.Sleep so tests can run the backoff paths
// without actually sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config is the loop's static policy: concurrency, retry/passthrough
// toggles, the confidence floor, and the explain-string budget.
type Config struct {
	Concurrency              int
	IncludeFailedPassthrough bool
	MinConfidence            uint8
	ExplainEnabled           bool
	ExplainBudget            int
	StatsEvery               int
}

// DefaultConfig returns the loop's default policy.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		MinConfidence: 50,
		StatsEvery:    200,
	}
}

// Loop is the C5 consumer loop.
type Loop struct {
	Reader   Reader
	Pool     RPCPool
	Attempts *retry.Attempts
	Registry *swapdetect.Registry
	Producer Producer
	Logger   *log.Logger
	Clock    Clock
	Config   Config
	Metrics  *observability.Metrics

	venueProgramIDs map[string]struct{}
	explainBudget   int

	statsMu sync.Mutex
	stats   Stats
}

// New builds a Loop ready to Run.
func New(reader Reader, pool RPCPool, attempts *retry.Attempts, registry *swapdetect.Registry, producer Producer, logger *log.Logger, cfg Config) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 200
	}
	return &Loop{
		Reader:          reader,
		Pool:            pool,
		Attempts:        attempts,
		Registry:        registry,
		Producer:        producer,
		Logger:          logger,
		Clock:           realClock{},
		Config:          cfg,
		Metrics:         observability.DefaultMetrics,
		venueProgramIDs: registry.ProgramIDs(),
		explainBudget:   cfg.ExplainBudget,
	}
}

type pendingResult struct {
	msg     kafka.Message
	outcome envelopeOutcome
}

// Run drives the loop until ctx is cancelled. Hydration and publish are the
// only suspension points that run concurrently across envelopes, bounded by
// Config.Concurrency; extraction and detection are synchronous CPU
// work on whichever goroutine picked up the envelope. Offsets commit in
// strict fetch order regardless of which envelope's hydration finishes
// first, via the pending/nextCommit sequencer below.
func (l *Loop) Run(ctx context.Context) error {
	sem := make(chan struct{}, l.Config.Concurrency)
	fetched := make(chan kafka.Message)
	fetchErr := make(chan error, 1)

	go func() {
		defer close(fetched)
		for {
			msg, err := l.Reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fetchErr <- err
				}
				return
			}
			select {
			case fetched <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu         sync.Mutex
		pending    = make(map[uint64]pendingResult)
		nextCommit uint64
		seq        uint64
		wg         sync.WaitGroup
	)
	signal := make(chan struct{}, 1)
	kick := func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	}

	drainAndCommit := func() error {
		mu.Lock()
		var toCommit []kafka.Message
		for {
			r, ok := pending[nextCommit]
			if !ok {
				break
			}
			delete(pending, nextCommit)
			toCommit = append(toCommit, r.msg)
			nextCommit++
			l.recordOutcome(r.outcome)
		}
		mu.Unlock()
		if len(toCommit) == 0 {
			return nil
		}
		return l.Reader.CommitMessages(ctx, toCommit...)
	}

loop:
	for {
		select {
		case msg, ok := <-fetched:
			if !ok {
				break loop
			}
			mySeq := seq
			seq++
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break loop
			}
			wg.Add(1)
			go func(seq uint64, msg kafka.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				outcome := l.processMessage(ctx, msg)
				mu.Lock()
				pending[seq] = pendingResult{msg: msg, outcome: outcome}
				mu.Unlock()
				kick()
			}(mySeq, msg)
		case <-signal:
		case <-ctx.Done():
			break loop
		}

		if err := drainAndCommit(); err != nil {
			return fmt.Errorf("commit offsets: %w", err)
		}
	}

	wg.Wait()
	if err := drainAndCommit(); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	select {
	case err := <-fetchErr:
		return fmt.Errorf("fetch message: %w", err)
	default:
	}
	return ctx.Err()
}

// envelopeOutcome is the bookkeeping one processed envelope contributes to
// the periodic stats snapshot.
type envelopeOutcome struct {
	skipped       bool
	nativeDeltas  int
	tokenDeltas   int
	swapsDetected int
	swapsEmitted  int
	dlq           bool
}

// processMessage runs one envelope through hydrate → extract → detect →
// publish and returns its disposition. It never returns an error: every
// failure path is a terminal disposition, so the loop's offset handling is
// uniform regardless of what went wrong.
func (l *Loop) processMessage(ctx context.Context, msg kafka.Message) envelopeOutcome {
	var env schema.RawTxEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		l.terminal(ctx, schema.RawTxEnvelope{}, schema.ReasonEnvelopeParse, err, 0, nil, false, nil)
		l.Metrics.EnvelopesProcessed.Inc()
		return envelopeOutcome{dlq: true}
	}
	if err := env.Validate(); err != nil {
		l.terminal(ctx, env, schema.ReasonEnvelopeParse, err, 0, nil, false, nil)
		l.Metrics.EnvelopesProcessed.Inc()
		return envelopeOutcome{dlq: true}
	}

	if !env.IsSuccess && !l.Config.IncludeFailedPassthrough {
		l.Metrics.EnvelopesSkipped.Inc()
		return envelopeOutcome{skipped: true}
	}

	tx, ok := l.hydrate(ctx, env)
	if !ok {
		l.Metrics.EnvelopesProcessed.Inc()
		return envelopeOutcome{dlq: true}
	}

	htx := &schema.HydratedTx{Envelope: env, Raw: *tx}
	result, err := extractor.Extract(htx, l.venueProgramIDs)
	if err != nil {
		l.terminal(ctx, env, schema.ReasonExtractFailed, err, l.Attempts.Count(env.Signature), nil, isV0ALT(tx), nil)
		l.Metrics.EnvelopesProcessed.Inc()
		return envelopeOutcome{dlq: true}
	}

	swaps, dlqFromDetect := l.runDetectors(ctx, env, tx, result.Candidates)

	outcome := envelopeOutcome{
		nativeDeltas:  len(result.NativeDeltas),
		tokenDeltas:   len(result.TokenDeltas),
		swapsDetected: len(result.Candidates),
		swapsEmitted:  len(swaps),
	}
	l.Metrics.NativeDeltasTotal.Add(float64(len(result.NativeDeltas)))
	l.Metrics.TokenDeltasTotal.Add(float64(len(result.TokenDeltas)))
	l.Metrics.SwapsDetectedTotal.Add(float64(len(result.Candidates)))
	l.Metrics.SwapsEmittedTotal.Add(float64(len(swaps)))
	for _, ev := range swaps {
		observability.RecordSwapConfidence(ev.Venue, ev.Confidence)
	}

	if err := l.publish(ctx, env.Signature, result.NativeDeltas, result.TokenDeltas, swaps); err != nil {
		l.terminal(ctx, env, schema.ReasonProduceFailed, err, l.Attempts.Count(env.Signature), nil, isV0ALT(tx), nil)
		outcome.dlq = true
		l.Metrics.EnvelopesProcessed.Inc()
		return outcome
	}

	for _, rec := range dlqFromDetect {
		l.publishDLQBestEffort(ctx, rec)
		outcome.dlq = true
	}

	l.Metrics.EnvelopesProcessed.Inc()
	if !outcome.dlq {
		l.Metrics.LastSuccessfulEnvelope.Set(float64(l.Clock.Now().Unix()))
	}
	return outcome
}

// hydrate runs C1 with C4's retry policy. It returns (tx, true) on success
// or (nil, false) once a terminal disposition (including the final
// exhausted retry) has been logged and DLQ'd.
func (l *Loop) hydrate(ctx context.Context, env schema.RawTxEnvelope) (*schema.TxResult, bool) {
	for {
		tx, err := l.Pool.FetchTx(ctx, env.Signature)
		if err == nil {
			l.Attempts.Forget(env.Signature)
			return tx, true
		}

		kind := retry.ClassifyRPCError(err)
		attemptCount := l.Attempts.Increment(env.Signature)
		decision := retry.Decide(kind, attemptCount)
		observability.RecordRetryAttempt(kind.String())
		l.Metrics.PendingRetries.Set(float64(l.Attempts.Len()))

		if decision.Retry {
			if sleepErr := l.Clock.Sleep(ctx, decision.Backoff); sleepErr != nil {
				l.terminal(ctx, env, schema.ReasonRPCExhausted, sleepErr, attemptCount, nil, false, nil)
				l.Attempts.Forget(env.Signature)
				return nil, false
			}
			continue
		}

		l.terminal(ctx, env, decision.Reason, err, attemptCount, nil, false, nil)
		l.Attempts.Forget(env.Signature)
		return nil, false
	}
}

// runDetectors applies every registered venue detector to every candidate,
// enumerating hop_index per outer instruction and enforcing the
// (signature, index_in_tx, hop_index) uniqueness invariant.
func (l *Loop) runDetectors(ctx context.Context, env schema.RawTxEnvelope, tx *schema.TxResult, candidates []extractor.CandidateSwap) ([]schema.SwapEvent, []schema.DlqRecord) {
	hopIndex := make(map[int]uint32)
	seen := make(map[schema.SwapKey]struct{})
	var swaps []schema.SwapEvent
	var dlq []schema.DlqRecord

	for _, cand := range candidates {
		detector, ok := l.Registry.Lookup(cand.ProgramID)
		if !ok {
			continue
		}

		dctx := &swapdetect.DetectContext{
			Envelope:                 env,
			Tx:                       tx,
			HopIndex:                 hopIndex[cand.OuterIndex],
			IncludeFailedPassthrough: l.Config.IncludeFailedPassthrough,
			MinConfidence:            l.Config.MinConfidence,
			ExplainEnabled:           l.Config.ExplainEnabled,
			ExplainBudget:            &l.explainBudget,
		}

		outcome := detector.Detect(dctx, cand)
		switch {
		case outcome.Event != nil:
			key := outcome.Event.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			swaps = append(swaps, *outcome.Event)
			hopIndex[cand.OuterIndex]++
		case outcome.Reject != "":
			venue := detector.Venue()
			observability.RecordDetectorReject(venue, outcome.Reject)
			dlq = append(dlq, retry.BuildDlqRecord(l.Clock.Now(), env, outcome.Reject, fmt.Sprintf("venue=%s instruction=%d", venue, cand.OuterIndex), 0, &venue, isV0ALT(tx), nil))
		}
	}
	return swaps, dlq
}

func (l *Loop) publish(ctx context.Context, signature string, native []schema.NativeBalanceDelta, token []schema.TokenBalanceDelta, swaps []schema.SwapEvent) error {
	if err := l.Producer.PublishNativeDeltas(ctx, signature, native); err != nil {
		return fmt.Errorf("publish native deltas: %w", err)
	}
	if err := l.Producer.PublishTokenDeltas(ctx, signature, token); err != nil {
		return fmt.Errorf("publish token deltas: %w", err)
	}
	if err := l.Producer.PublishSwaps(ctx, signature, swaps); err != nil {
		return fmt.Errorf("publish swaps: %w", err)
	}
	return nil
}

// terminal logs and best-effort-publishes a DLQ record for a terminal
// disposition. It never returns an error: a DLQ publish failure is itself
// counted (DlqPublishFailed) rather than escalated.
func (l *Loop) terminal(ctx context.Context, env schema.RawTxEnvelope, reason string, cause error, attempts int, venue *string, v0alt bool, extra *string) {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	l.Logger.Printf("terminal signature=%s reason=%s attempts=%d error=%v", env.Signature, reason, attempts, cause)
	rec := retry.BuildDlqRecord(l.Clock.Now(), env, reason, errMsg, attempts, venue, v0alt, extra)
	l.publishDLQBestEffort(ctx, rec)
}

func (l *Loop) publishDLQBestEffort(ctx context.Context, rec schema.DlqRecord) {
	observability.RecordDLQ(rec.Reason)
	if !l.Producer.DLQConfigured() {
		l.statsMu.Lock()
		l.stats.Errors++
		l.statsMu.Unlock()
		return
	}
	if err := l.Producer.PublishDLQ(ctx, rec); err != nil {
		l.Logger.Printf("dlq publish failed signature=%s reason=%s err=%v", rec.Signature, rec.Reason, err)
		l.Metrics.DLQPublishErrorsTotal.Inc()
		l.statsMu.Lock()
		l.stats.DLQPublishFailed++
		l.statsMu.Unlock()
		return
	}
	l.statsMu.Lock()
	l.stats.DLQ++
	l.statsMu.Unlock()
}

func isV0ALT(tx *schema.TxResult) bool {
	if tx == nil {
		return false
	}
	return tx.Meta != nil && tx.Meta.LoadedAddresses != nil &&
		(len(tx.Meta.LoadedAddresses.Writable) > 0 || len(tx.Meta.LoadedAddresses.Readonly) > 0)
}
