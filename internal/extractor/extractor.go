// Package extractor implements C2: a pure function from a hydrated
// transaction to native balance deltas, token balance deltas, and candidate
// swap instructions. It never performs I/O and never retries; any violation
// of the extractor's own invariants is returned as ErrInvalidDelta for the
// retry/DLQ manager to classify as ExtractFailed.
package extractor

import (
	"errors"
	"fmt"

	"github.com/stphkoo/solana-indexer/internal/altresolve"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

// ErrInvalidDelta is returned when the hydrated transaction fails the
// extractor's own structural invariants (mismatched array lengths, a
// pre+delta != post violation). These are demoted to ExtractFailed DLQ
// entries rather than propagated as process-fatal errors.
var ErrInvalidDelta = errors.New("extractor: invariant violation")

// CandidateSwap is the view C2 hands to C3 for one instruction (top-level or
// CPI-invoked) whose program id matched a registered venue.
type CandidateSwap struct {
	// OuterIndex is the top-level instruction index this candidate belongs
	// to; it becomes SwapEvent.IndexInTx regardless of IsInner.
	OuterIndex int
	// IsInner is true when the matched instruction itself was a CPI
	// (invoked from within OuterIndex rather than being OuterIndex).
	IsInner bool
	ProgramID string
	Instruction schema.Instruction
	// AccountKeys are the resolved pubkeys for Instruction.Accounts, in
	// order.
	AccountKeys []string
	// InnerInstructions are the sibling inner instructions of the same
	// outer call, resolved the same way.
	InnerInstructions []ResolvedInstruction
	// TokenDeltas is the subset of the transaction's token deltas whose
	// AccountIndex is reachable from this instruction's account slice.
	TokenDeltas []schema.TokenBalanceDelta
}

// ResolvedInstruction pairs a raw instruction with its resolved account
// keys.
type ResolvedInstruction struct {
	ProgramID   string
	Instruction schema.Instruction
	AccountKeys []string
}

// Result is the full output of Extract.
type Result struct {
	NativeDeltas []schema.NativeBalanceDelta
	TokenDeltas  []schema.TokenBalanceDelta
	Candidates   []CandidateSwap
}

// Extract runs C2 against a hydrated transaction and a set of registered
// venue program ids. It is deterministic: calling it twice on the same
// HydratedTx yields identical output modulo slice ordering.
func Extract(htx *schema.HydratedTx, venueProgramIDs map[string]struct{}) (Result, error) {
	var res Result

	accountKeys := altresolve.ResolveAccountKeys(&htx.Raw)
	native, err := extractNativeDeltas(htx, accountKeys)
	if err != nil {
		return res, err
	}
	res.NativeDeltas = native

	token, err := extractTokenDeltas(htx)
	if err != nil {
		return res, err
	}
	res.TokenDeltas = token

	res.Candidates = extractCandidates(htx, accountKeys, token, venueProgramIDs)
	return res, nil
}

// extractNativeDeltas aligns preBalances/postBalances position-wise against
// the fully resolved account key list, emitting a delta only when post !=
// pre.
func extractNativeDeltas(htx *schema.HydratedTx, accountKeys []string) ([]schema.NativeBalanceDelta, error) {
	meta := htx.Raw.Meta
	if len(meta.PreBalances) != len(meta.PostBalances) {
		return nil, fmt.Errorf("%w: preBalances/postBalances length mismatch (%d/%d)",
			ErrInvalidDelta, len(meta.PreBalances), len(meta.PostBalances))
	}

	var out []schema.NativeBalanceDelta
	for i, pre := range meta.PreBalances {
		post := meta.PostBalances[i]
		if i >= len(accountKeys) {
			// Array longer than resolved keys would itself be a structural
			// violation of the hydrated response; treat conservatively.
			return nil, fmt.Errorf("%w: balance index %d has no resolved account key", ErrInvalidDelta, i)
		}
		if post == pre {
			continue
		}
		delta := int64(post) - int64(pre)
		if pre+uint64(delta) != post {
			return nil, fmt.Errorf("%w: pre+delta != post for account %s", ErrInvalidDelta, accountKeys[i])
		}
		out = append(out, schema.NativeBalanceDelta{
			Slot:        htx.Raw.Slot,
			BlockTime:   htx.Raw.BlockTime,
			Signature:   htx.Envelope.Signature,
			Account:     accountKeys[i],
			PreBalance:  pre,
			PostBalance: post,
			Delta:       delta,
		})
	}
	return out, nil
}

type tokenKey struct {
	accountIndex uint32
	mint         string
}

type tokenSides struct {
	pre, post       *schema.TokenBalance
}

// extractTokenDeltas unions pre/post token balance entries keyed by
// (account_index, mint), treating a missing side as zero. On a decimals
// disagreement between sides the delta's Decimals is left nil.
func extractTokenDeltas(htx *schema.HydratedTx) ([]schema.TokenBalanceDelta, error) {
	meta := htx.Raw.Meta

	sides := make(map[tokenKey]*tokenSides)
	order := make([]tokenKey, 0, len(meta.PreTokenBalances)+len(meta.PostTokenBalances))

	upsert := func(tb schema.TokenBalance, isPre bool) {
		k := tokenKey{accountIndex: tb.AccountIndex, mint: tb.Mint}
		s, ok := sides[k]
		if !ok {
			s = &tokenSides{}
			sides[k] = s
			order = append(order, k)
		}
		if isPre {
			s.pre = &tb
		} else {
			s.post = &tb
		}
	}
	for _, tb := range meta.PreTokenBalances {
		upsert(tb, true)
	}
	for _, tb := range meta.PostTokenBalances {
		upsert(tb, false)
	}

	var out []schema.TokenBalanceDelta
	for _, k := range order {
		s := sides[k]
		preAmt, preDec, preOK := tokenAmount(s.pre)
		postAmt, postDec, postOK := tokenAmount(s.post)
		if preAmt == postAmt {
			continue
		}
		delta := int64(postAmt) - int64(preAmt)
		if preAmt+uint64(delta) != postAmt {
			return nil, fmt.Errorf("%w: pre+delta != post for token account %d mint %s", ErrInvalidDelta, k.accountIndex, k.mint)
		}

		var decimals *uint8
		switch {
		case preOK && postOK:
			if preDec == postDec {
				d := preDec
				decimals = &d
			}
			// Disagreement leaves decimals nil; the confidence-reasons flag
			// for this is set by the swap detector when it consumes this
			// delta.
		case preOK:
			d := preDec
			decimals = &d
		case postOK:
			d := postDec
			decimals = &d
		}

		out = append(out, schema.TokenBalanceDelta{
			Slot:         htx.Raw.Slot,
			BlockTime:    htx.Raw.BlockTime,
			Signature:    htx.Envelope.Signature,
			AccountIndex: k.accountIndex,
			Mint:         k.mint,
			Decimals:     decimals,
			PreAmount:    preAmt,
			PostAmount:   postAmt,
			Delta:        delta,
		})
	}
	return out, nil
}

func tokenAmount(tb *schema.TokenBalance) (amount uint64, decimals uint8, ok bool) {
	if tb == nil {
		return 0, 0, false
	}
	var v uint64
	_, err := fmt.Sscanf(tb.UITokenAmount.Amount, "%d", &v)
	if err != nil {
		return 0, 0, false
	}
	return v, tb.UITokenAmount.Decimals, true
}

// extractCandidates enumerates every top-level instruction and, within it,
// every inner (CPI) instruction, whose program id is in venueProgramIDs.
// Inner matches are included (and flagged IsInner) because a swap
// instruction reached via CPI from an aggregator is still a swap; the
// inner-instruction confidence penalty only makes sense if such candidates
// can reach the detector at all.
func extractCandidates(
	htx *schema.HydratedTx,
	accountKeys []string,
	tokenDeltas []schema.TokenBalanceDelta,
	venueProgramIDs map[string]struct{},
) []CandidateSwap {
	msg := htx.Raw.Transaction.Message
	var out []CandidateSwap

	innerByOuter := make(map[int][]schema.Instruction)
	for _, set := range htx.Raw.Meta.InnerInstructions {
		innerByOuter[set.Index] = set.Instructions
	}

	for outerIdx, ix := range msg.Instructions {
		resolvedInner := resolveInstructions(innerByOuter[outerIdx], accountKeys)

		pid, ok := altresolve.ProgramID(ix, accountKeys)
		if ok {
			if _, match := venueProgramIDs[pid]; match {
				out = append(out, buildCandidate(outerIdx, false, pid, ix, accountKeys, resolvedInner, tokenDeltas))
			}
		}

		for _, inner := range resolvedInner {
			if _, match := venueProgramIDs[inner.ProgramID]; match {
				out = append(out, buildCandidate(outerIdx, true, inner.ProgramID, inner.Instruction, accountKeys, resolvedInner, tokenDeltas))
			}
		}
	}
	return out
}

func resolveInstructions(ixs []schema.Instruction, accountKeys []string) []ResolvedInstruction {
	out := make([]ResolvedInstruction, 0, len(ixs))
	for _, ix := range ixs {
		pid, _ := altresolve.ProgramID(ix, accountKeys)
		out = append(out, ResolvedInstruction{
			ProgramID:   pid,
			Instruction: ix,
			AccountKeys: resolveAccounts(ix.Accounts, accountKeys),
		})
	}
	return out
}

func resolveAccounts(idxs []int, accountKeys []string) []string {
	out := make([]string, 0, len(idxs))
	for _, i := range idxs {
		if k, ok := altresolve.AccountAt(accountKeys, i); ok {
			out = append(out, k)
		}
	}
	return out
}

func buildCandidate(
	outerIdx int,
	isInner bool,
	programID string,
	ix schema.Instruction,
	accountKeys []string,
	inner []ResolvedInstruction,
	tokenDeltas []schema.TokenBalanceDelta,
) CandidateSwap {
	resolvedAccts := resolveAccounts(ix.Accounts, accountKeys)
	reachable := make(map[uint32]struct{})
	for _, idx := range ix.Accounts {
		reachable[uint32(idx)] = struct{}{}
	}
	for _, in := range inner {
		for _, idx := range in.Instruction.Accounts {
			reachable[uint32(idx)] = struct{}{}
		}
	}

	var view []schema.TokenBalanceDelta
	for _, d := range tokenDeltas {
		if _, ok := reachable[d.AccountIndex]; ok {
			view = append(view, d)
		}
	}

	return CandidateSwap{
		OuterIndex:        outerIdx,
		IsInner:           isInner,
		ProgramID:         programID,
		Instruction:       ix,
		AccountKeys:       resolvedAccts,
		InnerInstructions: inner,
		TokenDeltas:       view,
	}
}
