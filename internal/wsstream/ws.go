// Package wsstream implements P1's live feed: a logsSubscribe WebSocket
// connection to a Solana RPC node, filtered to the venue program ids the
// streamer is configured to watch, reconnecting with backoff on failure.
package wsstream

import "context"

// LogsSubscriber is what the streamer command needs from a live feed; Client
// is the only implementation, the interface exists so a test can substitute
// a fake without dialing a real endpoint.
type LogsSubscriber interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter selects which program ids' logs a subscription delivers. An
// empty Mentions subscribes to every log the node emits, which is never
// what the streamer wants in production but is useful in tests.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
}

// LogNotification is one logsNotification payload: a candidate transaction
// the streamer forwards to the decoder as a RawTxEnvelope, without itself
// inspecting balances or instructions.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
