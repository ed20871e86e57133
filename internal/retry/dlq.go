package retry

import (
	"time"

	"github.com/stphkoo/solana-indexer/internal/schema"
)

// BuildDlqRecord assembles a DlqRecord for one terminal disposition. now is
// passed in rather than read internally so tests control the clock and the
// consumer loop can use a single timestamp across a batch.
func BuildDlqRecord(
	now time.Time,
	env schema.RawTxEnvelope,
	reason string,
	errMsg string,
	attempts int,
	venue *string,
	isV0ALT bool,
	context *string,
) schema.DlqRecord {
	return schema.DlqRecord{
		Timestamp: now.UnixMilli(),
		Signature: env.Signature,
		Slot:      env.Slot,
		BlockTime: env.BlockTime,
		Chain:     env.Chain,
		Reason:    reason,
		Error:     errMsg,
		Attempts:  attempts,
		Venue:     venue,
		IsV0ALT:   isV0ALT,
		Context:   context,
	}
}
