package swapdetect

import (
	"strings"
	"testing"

	"github.com/stphkoo/solana-indexer/internal/extractor"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

func strPtr(s string) *string { return &s }
func u8Ptr(v uint8) *uint8    { return &v }

func baseAccountKeys() []schema.AccountKey {
	pubkeys := []string{
		"TRADER", "POOL", "FILL2", "FILL3", "VAULT_A", "VAULT_B",
		"FILL6", "FILL7", "FILL8", "FILL9", "FILL10", "FILL11", "FILL12", "FILL13", "FILL14",
		"USER_SOURCE_ATA", "USER_DEST_ATA", "FILL17", RaydiumAMMV4ProgramID,
	}
	out := make([]schema.AccountKey, len(pubkeys))
	for i, p := range pubkeys {
		out[i] = schema.AccountKey{Pubkey: p}
	}
	return out
}

func baseTx() *schema.TxResult {
	programIdx := 18
	return &schema.TxResult{
		Slot: 100,
		Transaction: &schema.TxBody{
			Signatures: []string{"SIG1"},
			Message: &schema.TxMessage{
				AccountKeys: baseAccountKeys(),
				Header: &schema.MessageHeader{
					NumRequiredSignatures:       1,
					NumReadonlySignedAccounts:   0,
					NumReadonlyUnsignedAccounts: 1,
				},
				Instructions: []schema.Instruction{
					{ProgramIDIndex: &programIdx, Accounts: []int{1, 2, 2, 2, 4, 5, 2, 2, 2, 2, 2, 2, 2, 2, 2, 15, 16}},
				},
			},
		},
		Meta: &schema.TxMeta{
			Err:          nil,
			PreBalances:  make([]uint64, 19),
			PostBalances: make([]uint64, 19),
			PreTokenBalances: []schema.TokenBalance{
				{AccountIndex: 15, Mint: "MINT_IN", Owner: strPtr("TRADER"), UITokenAmount: schema.UITokenAmount{Amount: "1000000000", Decimals: 9}},
				{AccountIndex: 16, Mint: "MINT_OUT", Owner: strPtr("TRADER"), UITokenAmount: schema.UITokenAmount{Amount: "0", Decimals: 6}},
			},
			PostTokenBalances: []schema.TokenBalance{
				{AccountIndex: 15, Mint: "MINT_IN", Owner: strPtr("TRADER"), UITokenAmount: schema.UITokenAmount{Amount: "0", Decimals: 9}},
				{AccountIndex: 16, Mint: "MINT_OUT", Owner: strPtr("TRADER"), UITokenAmount: schema.UITokenAmount{Amount: "50000000", Decimals: 6}},
			},
		},
	}
}

func baseCandidate() extractor.CandidateSwap {
	// Position 17 carries the user authority account operand (index 0,
	// "TRADER"), as a real Raydium v4 swap instruction always includes it.
	accounts := []int{1, 2, 2, 2, 4, 5, 2, 2, 2, 2, 2, 2, 2, 2, 2, 15, 16, 0}
	dec9 := u8Ptr(9)
	dec6 := u8Ptr(6)
	return extractor.CandidateSwap{
		OuterIndex: 0,
		ProgramID:  RaydiumAMMV4ProgramID,
		Instruction: schema.Instruction{Accounts: accounts},
		TokenDeltas: []schema.TokenBalanceDelta{
			{AccountIndex: 15, Mint: "MINT_IN", Decimals: dec9, PreAmount: 1000000000, PostAmount: 0, Delta: -1000000000},
			{AccountIndex: 16, Mint: "MINT_OUT", Decimals: dec6, PreAmount: 0, PostAmount: 50000000, Delta: 50000000},
		},
	}
}

func TestRaydiumDetector_FullConfidenceSwap(t *testing.T) {
	d := NewRaydiumDetector()
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       baseTx(),
	}
	out := d.Detect(ctx, baseCandidate())
	if out.Event == nil {
		t.Fatalf("expected a swap event, got reject=%q", out.Reject)
	}
	ev := out.Event
	if ev.Confidence != 100 {
		t.Fatalf("confidence = %d, want 100 (reasons=%b)", ev.Confidence, ev.ConfidenceReasonsBitmap)
	}
	if ev.InMint != "MINT_IN" || ev.OutMint != "MINT_OUT" {
		t.Fatalf("got in=%s out=%s", ev.InMint, ev.OutMint)
	}
	if ev.InAmount.String() != "1000000000" || ev.OutAmount.String() != "50000000" {
		t.Fatalf("got in_amount=%s out_amount=%s", ev.InAmount, ev.OutAmount)
	}
	if ev.PoolID == nil || *ev.PoolID != "POOL" {
		t.Fatalf("got pool_id=%v, want POOL", ev.PoolID)
	}
	if ev.Trader != "TRADER" {
		t.Fatalf("got trader=%s, want TRADER", ev.Trader)
	}
}

func TestRaydiumDetector_DecimalsMismatchPenalty(t *testing.T) {
	d := NewRaydiumDetector()
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       baseTx(),
	}
	cand := baseCandidate()
	cand.TokenDeltas[0].Decimals = nil // simulate the mismatch extractor would have flagged.

	out := d.Detect(ctx, cand)
	if out.Event == nil {
		t.Fatalf("expected a swap event despite decimals mismatch")
	}
	if out.Event.Confidence != 90 {
		t.Fatalf("confidence = %d, want 90", out.Event.Confidence)
	}
	if out.Event.ConfidenceReasonsBitmap&ReasonDecimalsMismatch == 0 {
		t.Fatalf("expected decimals-mismatch bit set in %b", out.Event.ConfidenceReasonsBitmap)
	}
}

func TestRaydiumDetector_InnerInstructionPenalty(t *testing.T) {
	d := NewRaydiumDetector()
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       baseTx(),
	}
	cand := baseCandidate()
	cand.IsInner = true

	out := d.Detect(ctx, cand)
	if out.Event == nil {
		t.Fatalf("expected a swap event for an inner instruction, just penalized")
	}
	if out.Event.Confidence != 80 {
		t.Fatalf("confidence = %d, want 80", out.Event.Confidence)
	}
}

func TestRaydiumDetector_MultiHopUnsupported(t *testing.T) {
	d := NewRaydiumDetector()
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       baseTx(),
	}
	cand := baseCandidate()
	cand.TokenDeltas = append(cand.TokenDeltas, schema.TokenBalanceDelta{
		AccountIndex: 99, Mint: "MINT_THIRD", Delta: 42, Decimals: u8Ptr(6),
	})
	// distinctTraderMints only counts deltas whose owner resolves to the
	// trader; give the third delta a trader-owned account index that also
	// appears in the tx's token balances.
	tx := baseTx()
	tx.Meta.PostTokenBalances = append(tx.Meta.PostTokenBalances, schema.TokenBalance{
		AccountIndex: 99, Mint: "MINT_THIRD", Owner: strPtr("TRADER"),
		UITokenAmount: schema.UITokenAmount{Amount: "42", Decimals: 6},
	})
	ctx.Tx = tx

	out := d.Detect(ctx, cand)
	if out.Event != nil {
		t.Fatalf("expected no event for a >2-mint candidate, got %+v", out.Event)
	}
	if out.Reject != schema.ReasonMultiHopUnsupported {
		t.Fatalf("reject = %q, want %q", out.Reject, schema.ReasonMultiHopUnsupported)
	}
}

func TestRaydiumDetector_GateFailsOnFailedTxWithoutPassthrough(t *testing.T) {
	d := NewRaydiumDetector()
	tx := baseTx()
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	ctx := &DetectContext{
		Envelope:                 schema.RawTxEnvelope{Signature: "SIG2", IsSuccess: false},
		Tx:                       tx,
		IncludeFailedPassthrough: false,
	}
	out := d.Detect(ctx, baseCandidate())
	if out.Event != nil || out.Reject != "" {
		t.Fatalf("expected silent no-op on failed tx without passthrough, got %+v", out)
	}
}

func TestRaydiumDetector_FailedPassthroughPenalizes(t *testing.T) {
	d := NewRaydiumDetector()
	tx := baseTx()
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	ctx := &DetectContext{
		Envelope:                 schema.RawTxEnvelope{Signature: "SIG2", IsSuccess: false},
		Tx:                       tx,
		IncludeFailedPassthrough: true,
	}
	out := d.Detect(ctx, baseCandidate())
	if out.Event == nil {
		t.Fatalf("expected a passthrough event")
	}
	if out.Event.Confidence != 70 {
		t.Fatalf("confidence = %d, want 70 (100-30)", out.Event.Confidence)
	}
}

func TestRaydiumDetector_ConfidenceMonotonicity(t *testing.T) {
	// Removing a disqualifying reason never lowers confidence.
	d := NewRaydiumDetector()
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       baseTx(),
	}

	degraded := baseCandidate()
	degraded.TokenDeltas[0].Decimals = nil
	degraded.IsInner = true
	outDegraded := d.Detect(ctx, degraded)

	clean := baseCandidate()
	outClean := d.Detect(ctx, clean)

	if outDegraded.Event == nil || outClean.Event == nil {
		t.Fatalf("expected events in both cases")
	}
	if outClean.Event.Confidence < outDegraded.Event.Confidence {
		t.Fatalf("removing disqualifying reasons lowered confidence: clean=%d degraded=%d",
			outClean.Event.Confidence, outDegraded.Event.Confidence)
	}
}

// TestRaydiumDetector_RejectsWhenOwnedDeltasDontNetToOneInOneOut covers the
// ownership gate itself: a delta the trader doesn't own is never eligible to
// become the in/out leg, and an owned set that isn't exactly one negative and
// one positive delta isn't a recognizable swap at all, not merely a
// low-confidence one.
func TestRaydiumDetector_RejectsWhenOwnedDeltasDontNetToOneInOneOut(t *testing.T) {
	d := NewRaydiumDetector()
	tx := baseTx()
	// The destination leg now belongs to someone else: the trader is only
	// left with a single negative delta, which doesn't net to a two-sided
	// trade.
	tx.Meta.PreTokenBalances[1].Owner = strPtr("OTHER")
	tx.Meta.PostTokenBalances[1].Owner = strPtr("OTHER")
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       tx,
	}

	out := d.Detect(ctx, baseCandidate())
	if out.Event != nil || out.Reject != "" {
		t.Fatalf("expected a silent reject, got %+v", out)
	}
}

// TestRaydiumDetector_TraderUnmatchedPenalty covers the corroboration check
// that survives the ownership gate: the trader can own the in/out deltas
// (e.g. a relayer paid the fee) without itself appearing as one of this
// instruction's account operands. That's weaker corroboration, so it costs
// confidence without rejecting the candidate.
func TestRaydiumDetector_TraderUnmatchedPenalty(t *testing.T) {
	d := NewRaydiumDetector()
	ctx := &DetectContext{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:       baseTx(),
	}
	cand := baseCandidate()
	// Drop the trailing user-authority operand (index 0) added in
	// baseCandidate so the trader's key never appears among this
	// instruction's accounts, even though it still owns the in/out deltas.
	cand.Instruction.Accounts = cand.Instruction.Accounts[:len(cand.Instruction.Accounts)-1]

	out := d.Detect(ctx, cand)
	if out.Event == nil {
		t.Fatalf("expected a swap event, just penalized")
	}
	if out.Event.Confidence != 90 {
		t.Fatalf("confidence = %d, want 90", out.Event.Confidence)
	}
	if out.Event.ConfidenceReasonsBitmap&ReasonTraderUnmatched == 0 {
		t.Fatalf("expected trader-unmatched bit set in %b", out.Event.ConfidenceReasonsBitmap)
	}
}

// TestRaydiumDetector_RealTraderKeyNeverMovesConfidence covers a trader
// identified by a real, 32-byte base58 key — unlike the "TRADER" placeholder
// used elsewhere in this file, which decodes to far fewer than 32 bytes and
// always short-circuits traderKeyOnCurve to true without ever reaching the curve
// check. Whatever traderKeyOnCurve decides for this key, the confidence
// score must come out identical: on-curve status is an Explain annotation
// only, never one of the five enumerated penalties.
func TestRaydiumDetector_RealTraderKeyNeverMovesConfidence(t *testing.T) {
	d := NewRaydiumDetector()
	// The System Program id: a real, decodable 32-byte key.
	const realTrader = "11111111111111111111111111111111"

	tx := baseTx()
	tx.Transaction.Message.AccountKeys[0].Pubkey = realTrader
	tx.Meta.PreTokenBalances[0].Owner = strPtr(realTrader)
	tx.Meta.PostTokenBalances[0].Owner = strPtr(realTrader)
	tx.Meta.PreTokenBalances[1].Owner = strPtr(realTrader)
	tx.Meta.PostTokenBalances[1].Owner = strPtr(realTrader)

	budget := 10
	ctx := &DetectContext{
		Envelope:       schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Tx:             tx,
		ExplainEnabled: true,
		ExplainBudget:  &budget,
	}
	// The trader operand at position 17 is pubkey index 0, which now holds
	// realTrader too, so it still resolves as one of the instruction's
	// accounts and the trader-unmatched penalty stays clear.
	out := d.Detect(ctx, baseCandidate())
	if out.Event == nil {
		t.Fatalf("expected a swap event")
	}
	if out.Event.Confidence != 100 {
		t.Fatalf("confidence = %d, want 100: trader on/off-curve status must not move the score", out.Event.Confidence)
	}
	wantAnnotation := !traderKeyOnCurve(realTrader)
	gotAnnotation := out.Event.Explain != nil && strings.Contains(*out.Event.Explain, "trader_off_curve")
	if gotAnnotation != wantAnnotation {
		t.Fatalf("explain annotation = %v, want %v (explain=%v)", gotAnnotation, wantAnnotation, out.Event.Explain)
	}
}
