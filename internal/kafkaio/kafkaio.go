// Package kafkaio wraps segmentio/kafka-go for the decoder pipeline's five
// topics: one input (RawTxEnvelope) and four output (native deltas, token
// deltas, swaps, DLQ). Every value is JSON-per-line; every key is the
// signature string, so downstream per-signature order is preserved even
// with multiple in-flight envelopes.
package kafkaio

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ReaderConfig configures the input-topic consumer.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader builds a kafka.Reader with manual offset commit: CommitInterval
// is left at zero so the consumer loop controls exactly when an offset
// advances: only after every output record for an envelope has been acked.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
}

// NewWriter builds a kafka.Writer for one output topic, keyed by signature
// via kafka.Hash so all records for a signature land on the same partition
// and preserve order there. RequiredAcks=RequireAll plus the default
// synchronous WriteMessages call is the closest kafka-go gets to an
// idempotent producer: it does not implement the broker-side idempotent
// producer protocol (KIP-98), only kafka-go's own internal retry-on-write.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}
