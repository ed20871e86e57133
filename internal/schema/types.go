// Package schema defines the versioned wire contracts that flow through the
// decoder pipeline: the input envelope, the internal hydrated transaction
// view, and the four output records.
package schema

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// CurrentSchemaVersion is the schema_version carried by every record this
// decoder emits. Forward-compatible changes add optional fields only; a
// breaking change bumps this value and ships on a parallel topic.
const CurrentSchemaVersion uint16 = 1

// RawTxEnvelope is the input record read from the input topic. It uniquely
// identifies a transaction by Signature and carries enough metadata for the
// consumer loop to make skip/retry decisions before hydration.
type RawTxEnvelope struct {
	SchemaVersion        uint16  `json:"schema_version"`
	Chain                string  `json:"chain"`
	Slot                 uint64  `json:"slot"`
	BlockTime            *int64  `json:"block_time,omitempty"`
	Signature            string  `json:"signature"`
	IndexInBlock         uint32  `json:"index_in_block"`
	TxVersion            *uint8  `json:"tx_version,omitempty"`
	IsSuccess            bool    `json:"is_success"`
	FeeLamports          uint64  `json:"fee_lamports"`
	ComputeUnitsConsumed *uint64 `json:"compute_units_consumed,omitempty"`
	MainProgram          *string `json:"main_program,omitempty"`
	ProgramIDs           []string `json:"program_ids"`
}

// Validate checks the structural invariants a consumer relies on before
// attempting hydration. A non-nil error is classified as EnvelopeParse.
func (e *RawTxEnvelope) Validate() error {
	if e.Signature == "" {
		return fmt.Errorf("envelope: empty signature")
	}
	if _, err := base58.Decode(e.Signature); err != nil {
		return fmt.Errorf("envelope: signature %q is not base58: %w", e.Signature, err)
	}
	if e.Chain == "" {
		return fmt.Errorf("envelope: empty chain")
	}
	return nil
}

// NativeBalanceDelta is one row of the sol_balance_deltas output topic.
type NativeBalanceDelta struct {
	Slot        uint64 `json:"slot"`
	BlockTime   *int64 `json:"block_time,omitempty"`
	Signature   string `json:"signature"`
	Account     string `json:"account"`
	PreBalance  uint64 `json:"pre_balance"`
	PostBalance uint64 `json:"post_balance"`
	Delta       int64  `json:"delta"`
}

// TokenBalanceDelta is one row of the sol_token_balance_deltas output topic.
type TokenBalanceDelta struct {
	Slot         uint64 `json:"slot"`
	BlockTime    *int64 `json:"block_time,omitempty"`
	Signature    string `json:"signature"`
	AccountIndex uint32 `json:"account_index"`
	Mint         string `json:"mint"`
	Decimals     *uint8 `json:"decimals,omitempty"`
	PreAmount    uint64 `json:"pre_amount"`
	PostAmount   uint64 `json:"post_amount"`
	Delta        int64  `json:"delta"`
}

// SwapEvent is one row of the sol_swaps output topic. Amounts are decimal
// strings on the wire; in-process they are carried as decimal.Decimal so no
// float ever touches a traded quantity.
type SwapEvent struct {
	SchemaVersion          uint16          `json:"schema_version"`
	Chain                  string          `json:"chain"`
	Slot                   uint64          `json:"slot"`
	BlockTime              *int64          `json:"block_time,omitempty"`
	Signature              string          `json:"signature"`
	IndexInBlock           uint32          `json:"index_in_block"`
	IndexInTx              uint32          `json:"index_in_tx"`
	HopIndex               uint32          `json:"hop_index"`
	Venue                  string          `json:"venue"`
	PoolID                 *string         `json:"pool_id,omitempty"`
	Trader                 string          `json:"trader"`
	InMint                 string          `json:"in_mint"`
	InAmount               decimal.Decimal `json:"in_amount"`
	OutMint                string          `json:"out_mint"`
	OutAmount              decimal.Decimal `json:"out_amount"`
	FeeMint                *string         `json:"fee_mint,omitempty"`
	FeeAmount              *decimal.Decimal `json:"fee_amount,omitempty"`
	RouteID                *string         `json:"route_id,omitempty"`
	Confidence             uint8           `json:"confidence"`
	ConfidenceReasonsBitmap uint16         `json:"confidence_reasons_bitmap"`
	Explain                *string         `json:"explain,omitempty"`
}

// Key returns the uniqueness tuple invariant (iv) of the decoder: at most
// one swap is ever emitted per (signature, index_in_tx, hop_index).
func (s *SwapEvent) Key() SwapKey {
	return SwapKey{Signature: s.Signature, IndexInTx: s.IndexInTx, HopIndex: s.HopIndex}
}

// SwapKey is the uniqueness tuple for a SwapEvent.
type SwapKey struct {
	Signature string
	IndexInTx uint32
	HopIndex  uint32
}

// DlqRecord is one row of the optional sol_decoder_dlq output topic.
type DlqRecord struct {
	Timestamp int64   `json:"timestamp"`
	Signature string  `json:"signature"`
	Slot      uint64  `json:"slot"`
	BlockTime *int64  `json:"block_time,omitempty"`
	Chain     string  `json:"chain"`
	Reason    string  `json:"reason"`
	Error     string  `json:"error"`
	Attempts  int     `json:"attempts"`
	Venue     *string `json:"venue,omitempty"`
	IsV0ALT   bool    `json:"is_v0_alt"`
	Context   *string `json:"context,omitempty"`
}

// DLQ reasons. These strings are part of the stable DLQ schema referenced by
// operational tooling and must not change once shipped.
const (
	ReasonEnvelopeParse         = "envelope_parse"
	ReasonNotFound              = "not_found"
	ReasonParseError            = "parse_error"
	ReasonRPCExhausted          = "rpc_exhausted"
	ReasonRPCPermanent          = "rpc_permanent"
	ReasonExtractFailed         = "extract_failed"
	ReasonDetectFailed          = "detect_failed"
	ReasonMultiHopUnsupported   = "multi_hop_unsupported"
	ReasonProduceFailed         = "produce_failed"
	ReasonDLQPublishFailed      = "dlq_publish_failed"
)
