// Package swapdetect implements C3: per-venue scoring of candidate swap
// instructions extracted by C2. Raydium AMM v4 is the reference detector;
// additional venues plug into the same Detector contract.
package swapdetect

import (
	"github.com/stphkoo/solana-indexer/internal/extractor"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

// Outcome is the result of running one Detector against one candidate.
type Outcome struct {
	// Event is non-nil when a swap was detected and accepted (even if
	// below MinConfidence — below-threshold candidates are still emitted
	// with their actual confidence rather than dropped; no field or bitmap
	// bit marks them as below MinConfidence).
	Event *schema.SwapEvent
	// Reject, when non-empty, names why no event was produced. A Reject of
	// ReasonMultiHopUnsupported is a DLQ-worthy rejection;
	// any other empty Event with empty Reject means the gate simply did not
	// match (not a failure, not a DLQ entry).
	Reject string
}

// DetectContext carries everything a Detector needs beyond the candidate
// itself: the envelope being processed and venue-wide policy.
type DetectContext struct {
	Envelope  schema.RawTxEnvelope
	Tx        *schema.TxResult
	HopIndex  uint32

	IncludeFailedPassthrough bool
	MinConfidence            uint8
	ExplainEnabled           bool
	// ExplainBudget is decremented by Detect each time it renders an
	// explain string; once it reaches zero no more are rendered.
	ExplainBudget *int
}

// Detector scores one venue's candidate swap instructions.
type Detector interface {
	Venue() string
	ProgramID() string
	Detect(ctx *DetectContext, cand extractor.CandidateSwap) Outcome
}

// Registry dispatches candidates to the Detector registered for their
// program id. A tagged variant over a closed venue set would be equivalent
// here since only Raydium v4 is specified today; a map keeps
// the door open for additional venues without touching call sites.
type Registry struct {
	byProgramID map[string]Detector
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byProgramID: make(map[string]Detector)}
}

// Register adds d, keyed by its program id.
func (r *Registry) Register(d Detector) {
	r.byProgramID[d.ProgramID()] = d
}

// ProgramIDs returns the set of registered program ids, for the extractor's
// venueProgramIDs filter.
func (r *Registry) ProgramIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(r.byProgramID))
	for pid := range r.byProgramID {
		out[pid] = struct{}{}
	}
	return out
}

// Lookup finds the Detector registered for programID, if any.
func (r *Registry) Lookup(programID string) (Detector, bool) {
	d, ok := r.byProgramID[programID]
	return d, ok
}
