package retry

import (
	"errors"
	"time"

	"github.com/stphkoo/solana-indexer/internal/schema"
	"github.com/stphkoo/solana-indexer/internal/solrpc"
)

// Kind is the error taxonomy for the consumer loop: every failure it can
// encounter maps to exactly one Kind, and every Kind maps to exactly one
// disposition via Decide.
type Kind int

const (
	KindEnvelopeParse Kind = iota
	KindNotFound
	KindUnparsable
	KindRateLimited
	KindTransient
	KindPermanent
	KindExtractFailed
	KindDetectFailed
	KindProduceFailed
	KindDlqPublishFailed
)

var kindNames = [...]string{
	"envelope_parse", "not_found", "unparsable", "rate_limited",
	"transient", "permanent", "extract_failed", "detect_failed",
	"produce_failed", "dlq_publish_failed",
}

// String renders kind as a stable, low-cardinality label value.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ClassifyRPCError maps a solrpc error to its Kind. An error matching none
// of the known sentinels is treated as Transient, the conservative default:
// it costs one bounded retry rather than silently discarding something that
// might have succeeded on a second attempt.
func ClassifyRPCError(err error) Kind {
	switch {
	case errors.Is(err, solrpc.ErrNotFound):
		return KindNotFound
	case errors.Is(err, solrpc.ErrUnparsable):
		return KindUnparsable
	case errors.Is(err, solrpc.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, solrpc.ErrPermanent):
		return KindPermanent
	default:
		return KindTransient
	}
}

// Decision is what the consumer loop does next for one envelope.
type Decision struct {
	Retry bool
	// Backoff is the delay to wait before retrying; only meaningful when
	// Retry is true.
	Backoff time.Duration
	// Reason is the DLQ reason code; set only when Retry is false. Every
	// terminal disposition gets a reason, including NotFound, which DLQs
	// with reason=not_found rather than being silently skipped.
	Reason string
}

// Decide applies the kind-to-disposition table. attemptCount is the count
// returned by Attempts.Increment for the current failure (1 on the first
// failure).
func Decide(kind Kind, attemptCount int) Decision {
	switch kind {
	case KindEnvelopeParse:
		return Decision{Reason: schema.ReasonEnvelopeParse}
	case KindNotFound:
		return Decision{Reason: schema.ReasonNotFound}
	case KindUnparsable:
		return Decision{Reason: schema.ReasonParseError}
	case KindPermanent:
		return Decision{Reason: schema.ReasonRPCPermanent}
	case KindExtractFailed:
		return Decision{Reason: schema.ReasonExtractFailed}
	case KindDetectFailed:
		return Decision{Reason: schema.ReasonDetectFailed}
	case KindProduceFailed:
		return Decision{Reason: schema.ReasonProduceFailed}
	case KindDlqPublishFailed:
		return Decision{Reason: schema.ReasonDLQPublishFailed}
	case KindRateLimited, KindTransient:
		if attemptCount < MaxAttempts {
			return Decision{Retry: true, Backoff: BackoffSchedule[attemptCount-1]}
		}
		return Decision{Reason: schema.ReasonRPCExhausted}
	default:
		return Decision{Reason: schema.ReasonRPCExhausted}
	}
}
