package solrpc

import "errors"

// Error kinds for the fetch_tx contract. Exactly one of these is
// returned (wrapped with context) for every hydration failure; the retry/DLQ
// manager classifies purely by errors.Is against these sentinels.
var (
	ErrNotFound    = errors.New("solrpc: transaction not found")
	ErrRateLimited = errors.New("solrpc: rate limited")
	ErrTransient   = errors.New("solrpc: transient failure")
	ErrPermanent   = errors.New("solrpc: permanent failure")
	ErrUnparsable  = errors.New("solrpc: response unparsable")
)

// rpcErrClass maps err to a low-cardinality metric label, empty for a nil
// (successful) call.
func rpcErrClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	case errors.Is(err, ErrUnparsable):
		return "unparsable"
	default:
		return "unknown"
	}
}
