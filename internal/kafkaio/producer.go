package kafkaio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stphkoo/solana-indexer/internal/observability"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

// OutputProducer owns the four output-topic writers the consumer loop
// publishes to for one envelope. The DLQ writer is optional: an empty dlqTopic
// string at construction means DLQ publication is configured off and is
// skipped on a best-effort basis rather than treated as an error.
type OutputProducer struct {
	deltas        *kafka.Writer
	tokenDeltas   *kafka.Writer
	swaps         *kafka.Writer
	dlq           *kafka.Writer
	dlqConfigured bool
}

// NewOutputProducer builds writers for deltasTopic, tokenDeltasTopic and
// swapsTopic, plus dlqTopic when non-empty.
func NewOutputProducer(brokers []string, deltasTopic, tokenDeltasTopic, swapsTopic, dlqTopic string) *OutputProducer {
	p := &OutputProducer{
		deltas:      NewWriter(brokers, deltasTopic),
		tokenDeltas: NewWriter(brokers, tokenDeltasTopic),
		swaps:       NewWriter(brokers, swapsTopic),
	}
	if dlqTopic != "" {
		p.dlq = NewWriter(brokers, dlqTopic)
		p.dlqConfigured = true
	}
	return p
}

// Close closes all configured writers.
func (p *OutputProducer) Close() error {
	var firstErr error
	for _, w := range []*kafka.Writer{p.deltas, p.tokenDeltas, p.swaps, p.dlq} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeJSON(ctx context.Context, w *kafka.Writer, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	start := time.Now()
	err = w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body})
	observability.RecordKafkaPublish(w.Topic, time.Since(start).Seconds(), err)
	return err
}

func writeJSONBatch(ctx context.Context, w *kafka.Writer, key string, items []interface{}) error {
	if len(items) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(items))
	for _, v := range items {
		body, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %T: %w", v, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: body})
	}
	start := time.Now()
	err := w.WriteMessages(ctx, msgs...)
	observability.RecordKafkaPublish(w.Topic, time.Since(start).Seconds(), err)
	return err
}

// PublishNativeDeltas publishes rows to sol_balance_deltas, keyed by
// signature.
func (p *OutputProducer) PublishNativeDeltas(ctx context.Context, signature string, rows []schema.NativeBalanceDelta) error {
	items := make([]interface{}, len(rows))
	for i, r := range rows {
		items[i] = r
	}
	return writeJSONBatch(ctx, p.deltas, signature, items)
}

// PublishTokenDeltas publishes rows to sol_token_balance_deltas, keyed by
// signature.
func (p *OutputProducer) PublishTokenDeltas(ctx context.Context, signature string, rows []schema.TokenBalanceDelta) error {
	items := make([]interface{}, len(rows))
	for i, r := range rows {
		items[i] = r
	}
	return writeJSONBatch(ctx, p.tokenDeltas, signature, items)
}

// PublishSwaps publishes rows to sol_swaps, keyed by signature.
func (p *OutputProducer) PublishSwaps(ctx context.Context, signature string, rows []schema.SwapEvent) error {
	items := make([]interface{}, len(rows))
	for i, r := range rows {
		items[i] = r
	}
	return writeJSONBatch(ctx, p.swaps, signature, items)
}

// PublishDLQ publishes one DlqRecord to sol_decoder_dlq, keyed by
// signature. It is a no-op returning nil when the DLQ topic isn't
// configured; callers distinguish "not configured" from "publish failed"
// via DLQConfigured.
func (p *OutputProducer) PublishDLQ(ctx context.Context, rec schema.DlqRecord) error {
	if !p.dlqConfigured {
		return nil
	}
	return writeJSON(ctx, p.dlq, rec.Signature, rec)
}

// DLQConfigured reports whether a DLQ topic was configured at construction.
func (p *OutputProducer) DLQConfigured() bool { return p.dlqConfigured }
