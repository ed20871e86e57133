package swapdetect

import (
	"github.com/stphkoo/solana-indexer/internal/altresolve"
	"github.com/stphkoo/solana-indexer/internal/extractor"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

// RaydiumAMMV4ProgramID is the mainnet Raydium AMM v4 program id.
const RaydiumAMMV4ProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// WSOLMint is the wrapped-SOL mint address.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Fixed account-layout offsets for a Raydium AMM v4 swap instruction
// (POOL_ID, VAULT_A, VAULT_B). The pool id is taken as the instruction's
// first writable operand. The user's in/out token accounts are not read off
// a fixed offset: they are whichever of the instruction's reachable token
// deltas are owned by the trader (see classifyFlow).
const (
	raydiumVaultAIdx   = 4
	raydiumVaultBIdx   = 5
	raydiumMinAccounts = 17
)

// RaydiumDetector implements Detector for Raydium AMM v4, the reference
// venue for this registry.
type RaydiumDetector struct {
	minConfidenceDefault uint8
}

// NewRaydiumDetector builds the reference Raydium v4 detector.
func NewRaydiumDetector() *RaydiumDetector {
	return &RaydiumDetector{minConfidenceDefault: 50}
}

func (d *RaydiumDetector) Venue() string     { return "raydium_amm_v4" }
func (d *RaydiumDetector) ProgramID() string { return RaydiumAMMV4ProgramID }

// Detect scores one candidate instruction against the Raydium v4 swap shape.
func (d *RaydiumDetector) Detect(ctx *DetectContext, cand extractor.CandidateSwap) Outcome {
	// Step 1: gate.
	success := ctx.Tx.Meta.IsSuccess()
	if !success && !ctx.IncludeFailedPassthrough {
		return Outcome{}
	}

	if len(cand.Instruction.Accounts) < raydiumMinAccounts {
		// Too short to be a standard v4 swap instruction; not our shape.
		return Outcome{}
	}

	accountKeys := altresolve.ResolveAccountKeys(ctx.Tx)

	// Step 2: pool identification — first writable account operand.
	var poolID string
	for _, idx := range cand.Instruction.Accounts {
		if altresolve.IsWritable(ctx.Tx, idx) {
			if key, ok := altresolve.AccountAt(accountKeys, idx); ok {
				poolID = key
			}
			break
		}
	}

	// Step 3: trader — fee payer, always index 0 of the resolved key list.
	trader, ok := altresolve.AccountAt(accountKeys, 0)
	if !ok {
		return Outcome{}
	}

	// Step 8 (multi-hop guard): count distinct mints among deltas owned by
	// the trader within this instruction's reachable accounts.
	traderMints := distinctTraderMints(ctx.Tx, cand, trader)
	if len(traderMints) > 2 {
		return Outcome{Reject: schema.ReasonMultiHopUnsupported}
	}

	// Step 4: flow inference is gated by ownership — only deltas on accounts
	// owned by (or authority-delegated to) the trader within this
	// instruction's reachable account slice are even candidates. A trader
	// whose owned deltas don't net to exactly one negative and one positive
	// entry isn't a recognizable swap, whatever else the instruction touches.
	ownedDeltas := ownedByTrader(ctx.Tx, cand.TokenDeltas, trader)
	inDelta, outDelta := classifyFlow(ownedDeltas)
	if inDelta == nil || outDelta == nil {
		return Outcome{}
	}

	// Step 5: constraint.
	if inDelta.Mint == outDelta.Mint || inDelta.Delta == 0 || outDelta.Delta == 0 {
		return Outcome{}
	}

	inAmount := absInt64ToDecimal(inDelta.Delta)
	outAmount := absInt64ToDecimal(outDelta.Delta)

	// Step 6: subtractive confidence scoring.
	card := newScoreCard()

	if inDelta.Decimals == nil || outDelta.Decimals == nil {
		card.penalize(ReasonDecimalsMismatch, penaltyDecimalsMismatch)
	}

	vaultAWritable := altresolve.IsWritable(ctx.Tx, cand.Instruction.Accounts[raydiumVaultAIdx])
	vaultBWritable := altresolve.IsWritable(ctx.Tx, cand.Instruction.Accounts[raydiumVaultBIdx])
	if !vaultAWritable || !vaultBWritable {
		card.penalize(ReasonPoolNotDoubleVault, penaltyPoolNotDoubleVault)
	}

	// The trader identified by fee-payer convention (index 0) owns the
	// in/out deltas by construction of ownedByTrader above, but isn't
	// necessarily itself one of this instruction's accounts — a relayer can
	// pay fees for a swap whose owner is never passed as an operand here.
	// That's weaker corroboration than an instruction that names the trader
	// directly, so it costs confidence without rejecting the candidate.
	if !traderInAccounts(accountKeys, cand.Instruction.Accounts, trader) {
		card.penalize(ReasonTraderUnmatched, penaltyTraderUnmatched)
	}

	if cand.IsInner {
		card.penalize(ReasonInnerInstruction, penaltyInnerInstruction)
	}

	if !success && ctx.IncludeFailedPassthrough {
		card.penalize(ReasonFailedPassthrough, penaltyFailedPassthrough)
	}

	ev := &schema.SwapEvent{
		SchemaVersion:           schema.CurrentSchemaVersion,
		Chain:                   ctx.Envelope.Chain,
		Slot:                    ctx.Envelope.Slot,
		BlockTime:               ctx.Envelope.BlockTime,
		Signature:               ctx.Envelope.Signature,
		IndexInBlock:             ctx.Envelope.IndexInBlock,
		IndexInTx:               uint32(cand.OuterIndex),
		HopIndex:                ctx.HopIndex,
		Venue:                   d.Venue(),
		Trader:                  trader,
		InMint:                  inDelta.Mint,
		InAmount:                inAmount,
		OutMint:                 outDelta.Mint,
		OutAmount:               outAmount,
		Confidence:              card.confidence(),
		ConfidenceReasonsBitmap: card.reasons,
	}
	if poolID != "" {
		ev.PoolID = &poolID
	}

	if ctx.ExplainEnabled && ctx.ExplainBudget != nil && *ctx.ExplainBudget > 0 {
		gate := "hit"
		s := explain(d.Venue(), gate, trader, inDelta.Mint, inAmount.String(), outDelta.Mint, outAmount.String(), traderKeyOnCurve(trader))
		ev.Explain = &s
		*ctx.ExplainBudget = *ctx.ExplainBudget - 1
	}

	return Outcome{Event: ev}
}

func findOwner(tx *schema.TxResult, accountIndex uint32) string {
	for _, tb := range tx.Meta.PostTokenBalances {
		if tb.AccountIndex == accountIndex && tb.Owner != nil {
			return *tb.Owner
		}
	}
	for _, tb := range tx.Meta.PreTokenBalances {
		if tb.AccountIndex == accountIndex && tb.Owner != nil {
			return *tb.Owner
		}
	}
	return ""
}

// ownedByTrader filters deltas down to the ones whose account is owned by
// (or authority-delegated to) trader. Only these are eligible to become the
// swap's in/out legs; a delta on an account the trader doesn't control
// (a pool vault, a fee account) is never mistaken for part of the trade.
func ownedByTrader(tx *schema.TxResult, deltas []schema.TokenBalanceDelta, trader string) []schema.TokenBalanceDelta {
	var out []schema.TokenBalanceDelta
	for _, d := range deltas {
		if findOwner(tx, d.AccountIndex) == trader {
			out = append(out, d)
		}
	}
	return out
}

// traderInAccounts reports whether trader's key is resolved from one of the
// instruction's own account operands, as opposed to only being inferred
// from token-balance ownership.
func traderInAccounts(accountKeys []string, accounts []int, trader string) bool {
	for _, idx := range accounts {
		if key, ok := altresolve.AccountAt(accountKeys, idx); ok && key == trader {
			return true
		}
	}
	return false
}

// classifyFlow picks exactly one negative-delta account as "in" and exactly
// one positive-delta account as "out" among the trader-owned deltas. Any
// other combination (none owned, more than one of either sign) rejects the
// candidate: an ownership set that doesn't net to a clean two-sided trade
// isn't a recognizable swap.
func classifyFlow(ownedDeltas []schema.TokenBalanceDelta) (in, out *schema.TokenBalanceDelta) {
	var negatives, positives []*schema.TokenBalanceDelta
	for i := range ownedDeltas {
		d := &ownedDeltas[i]
		if d.Delta < 0 {
			negatives = append(negatives, d)
		} else if d.Delta > 0 {
			positives = append(positives, d)
		}
	}
	if len(negatives) != 1 || len(positives) != 1 {
		return nil, nil
	}
	return negatives[0], positives[0]
}

func distinctTraderMints(tx *schema.TxResult, cand extractor.CandidateSwap, trader string) map[string]struct{} {
	mints := make(map[string]struct{})
	for _, d := range cand.TokenDeltas {
		if findOwner(tx, d.AccountIndex) == trader {
			mints[d.Mint] = struct{}{}
		}
	}
	return mints
}
