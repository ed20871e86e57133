package extractor

import (
	"testing"

	"github.com/stphkoo/solana-indexer/internal/schema"
)

func idxPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

// buildHydrated constructs a minimal but structurally valid HydratedTx for
// tests: one trader account whose native balance drops by the swap-in
// amount plus fee, and one token account whose USDC balance rises.
func buildHydrated() *schema.HydratedTx {
	return &schema.HydratedTx{
		Envelope: schema.RawTxEnvelope{Signature: "SIG1", Slot: 100, IsSuccess: true},
		Raw: schema.TxResult{
			Slot: 100,
			Transaction: &schema.TxBody{
				Signatures: []string{"SIG1"},
				Message: &schema.TxMessage{
					AccountKeys: []schema.AccountKey{
						{Pubkey: "T1", Signer: true, Writable: true},
						{Pubkey: "T1_USDC_ATA", Writable: true},
						{Pubkey: "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"},
					},
					Instructions: []schema.Instruction{
						{ProgramIDIndex: idxPtr(2), Accounts: []int{0, 1}, Data: ""},
					},
				},
			},
			Meta: &schema.TxMeta{
				Err:          nil,
				Fee:          5000,
				PreBalances:  []uint64{1_005_000_000, 0, 1},
				PostBalances: []uint64{4_995_000, 0, 1},
				PreTokenBalances: []schema.TokenBalance{
					{AccountIndex: 1, Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", UITokenAmount: schema.UITokenAmount{Amount: "0", Decimals: 6}},
				},
				PostTokenBalances: []schema.TokenBalance{
					{AccountIndex: 1, Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", UITokenAmount: schema.UITokenAmount{Amount: "50000000", Decimals: 6}},
				},
			},
		},
	}
}

func raydiumProgramSet() map[string]struct{} {
	return map[string]struct{}{"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": {}}
}

func TestExtract_NativeDelta_S1(t *testing.T) {
	htx := buildHydrated()
	res, err := Extract(htx, raydiumProgramSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.NativeDeltas) != 1 {
		t.Fatalf("expected 1 native delta, got %d", len(res.NativeDeltas))
	}
	d := res.NativeDeltas[0]
	if d.Account != "T1" || d.Delta != -1_000_005_000 {
		t.Fatalf("got %+v, want account=T1 delta=-1000005000", d)
	}
	if d.PreBalance+uint64(d.Delta) != d.PostBalance {
		t.Fatalf("invariant violated: pre+delta != post")
	}
}

func TestExtract_TokenDelta_S1(t *testing.T) {
	htx := buildHydrated()
	res, err := Extract(htx, raydiumProgramSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.TokenDeltas) != 1 {
		t.Fatalf("expected 1 token delta, got %d", len(res.TokenDeltas))
	}
	d := res.TokenDeltas[0]
	if d.Mint != "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" || d.Delta != 50_000_000 {
		t.Fatalf("got %+v, want mint=USDC delta=50000000", d)
	}
	if d.Decimals == nil || *d.Decimals != 6 {
		t.Fatalf("expected decimals=6, got %v", d.Decimals)
	}
}

func TestExtract_DecimalsMismatch_S6(t *testing.T) {
	htx := buildHydrated()
	htx.Raw.Meta.PreTokenBalances[0].UITokenAmount.Decimals = 6
	htx.Raw.Meta.PostTokenBalances[0].UITokenAmount.Decimals = 9

	res, err := Extract(htx, raydiumProgramSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.TokenDeltas) != 1 {
		t.Fatalf("expected 1 token delta, got %d", len(res.TokenDeltas))
	}
	if res.TokenDeltas[0].Decimals != nil {
		t.Fatalf("expected decimals=nil on mismatch, got %v", *res.TokenDeltas[0].Decimals)
	}
}

func TestExtract_CandidateSwap_MatchesRegisteredVenue(t *testing.T) {
	htx := buildHydrated()
	res, err := Extract(htx, raydiumProgramSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected 1 candidate swap, got %d", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.IsInner {
		t.Fatalf("expected top-level candidate")
	}
	if len(c.TokenDeltas) != 1 {
		t.Fatalf("expected candidate token-delta view to contain the USDC delta, got %d", len(c.TokenDeltas))
	}
}

func TestExtract_NoCandidates_WhenVenueUnregistered(t *testing.T) {
	htx := buildHydrated()
	res, err := Extract(htx, map[string]struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(res.Candidates))
	}
}

func TestExtract_Deterministic(t *testing.T) {
	htx := buildHydrated()
	a, err := Extract(htx, raydiumProgramSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Extract(htx, raydiumProgramSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.NativeDeltas) != len(b.NativeDeltas) || len(a.TokenDeltas) != len(b.TokenDeltas) || len(a.Candidates) != len(b.Candidates) {
		t.Fatalf("two runs of Extract produced different shapes: %+v vs %+v", a, b)
	}
	if a.NativeDeltas[0] != b.NativeDeltas[0] {
		t.Fatalf("two runs of Extract produced different native deltas")
	}
}

func TestExtract_InvalidLengths_ReturnsErrInvalidDelta(t *testing.T) {
	htx := buildHydrated()
	htx.Raw.Meta.PostBalances = htx.Raw.Meta.PostBalances[:1]
	_, err := Extract(htx, raydiumProgramSet())
	if err == nil {
		t.Fatalf("expected ErrInvalidDelta for mismatched balance array lengths")
	}
}
