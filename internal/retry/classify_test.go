package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stphkoo/solana-indexer/internal/schema"
	"github.com/stphkoo/solana-indexer/internal/solrpc"
)

func TestClassifyRPCError_KnownSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{solrpc.ErrNotFound, KindNotFound},
		{solrpc.ErrUnparsable, KindUnparsable},
		{solrpc.ErrRateLimited, KindRateLimited},
		{solrpc.ErrPermanent, KindPermanent},
		{errors.New("connection reset"), KindTransient},
	}
	for _, c := range cases {
		if got := ClassifyRPCError(c.err); got != c.want {
			t.Errorf("ClassifyRPCError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestDecide_NotFoundIsTerminalWithDLQ(t *testing.T) {
	// NotFound is terminal and DLQ'd with reason=not_found rather than
	// silently skipped.
	d := Decide(KindNotFound, 1)
	if d.Retry {
		t.Fatalf("NotFound must never retry")
	}
	if d.Reason != schema.ReasonNotFound {
		t.Fatalf("reason = %q, want %q", d.Reason, schema.ReasonNotFound)
	}
}

func TestDecide_RateLimitedTwiceThenWithinBudget(t *testing.T) {
	first := Decide(KindRateLimited, 1)
	if !first.Retry || first.Backoff != 200*time.Millisecond {
		t.Fatalf("1st failure decision = %+v, want retry with 200ms backoff", first)
	}
	second := Decide(KindRateLimited, 2)
	if !second.Retry || second.Backoff != 400*time.Millisecond {
		t.Fatalf("2nd failure decision = %+v, want retry with 400ms backoff", second)
	}
}

func TestDecide_RateLimitedExhaustsAfterMaxAttempts(t *testing.T) {
	d := Decide(KindRateLimited, MaxAttempts)
	if d.Retry {
		t.Fatalf("expected exhaustion at attempt %d, got retry", MaxAttempts)
	}
	if d.Reason != schema.ReasonRPCExhausted {
		t.Fatalf("reason = %q, want %q", d.Reason, schema.ReasonRPCExhausted)
	}
}

func TestDecide_ExtractAndDetectFailuresNeverRetry(t *testing.T) {
	if d := Decide(KindExtractFailed, 1); d.Retry || d.Reason != schema.ReasonExtractFailed {
		t.Fatalf("ExtractFailed decision = %+v", d)
	}
	if d := Decide(KindDetectFailed, 1); d.Retry || d.Reason != schema.ReasonDetectFailed {
		t.Fatalf("DetectFailed decision = %+v", d)
	}
}

func TestDecide_PermanentNeverRetries(t *testing.T) {
	d := Decide(KindPermanent, 1)
	if d.Retry || d.Reason != schema.ReasonRPCPermanent {
		t.Fatalf("Permanent decision = %+v", d)
	}
}
