// Package altresolve resolves the full account key list of a Solana
// transaction, merging the static account keys with the address-lookup-table
// entries v0 transactions load at execution time.
//
// Resolution order is static keys, then writable loaded addresses, then
// readonly loaded addresses, matching the order runtime programIdIndex and
// instruction account-index operands are resolved against.
package altresolve

import "github.com/stphkoo/solana-indexer/internal/schema"

// ResolveAccountKeys returns the full, protocol-ordered account key list for
// tx: static accountKeys first, then meta.loadedAddresses.writable, then
// meta.loadedAddresses.readonly. For legacy (non-versioned) transactions
// LoadedAddresses is nil and the result is just the static list.
func ResolveAccountKeys(tx *schema.TxResult) []string {
	if tx == nil || tx.Transaction == nil || tx.Transaction.Message == nil {
		return nil
	}
	msg := tx.Transaction.Message
	keys := make([]string, 0, len(msg.AccountKeys))
	for _, k := range msg.AccountKeys {
		keys = append(keys, k.Pubkey)
	}
	if tx.Meta == nil || tx.Meta.LoadedAddresses == nil {
		return keys
	}
	keys = append(keys, tx.Meta.LoadedAddresses.Writable...)
	keys = append(keys, tx.Meta.LoadedAddresses.Readonly...)
	return keys
}

// IsVersionedWithALT reports whether tx is a v0 transaction that actually
// loaded any address-lookup-table entries. Used to set DlqRecord.IsV0ALT.
func IsVersionedWithALT(tx *schema.TxResult) bool {
	if tx == nil || tx.Meta == nil || tx.Meta.LoadedAddresses == nil {
		return false
	}
	return len(tx.Meta.LoadedAddresses.Writable) > 0 || len(tx.Meta.LoadedAddresses.Readonly) > 0
}

// ProgramID resolves the program id of an instruction against the fully
// resolved account key list, preferring an explicit ProgramID string
// (jsonParsed form) and falling back to ProgramIDIndex.
func ProgramID(ix schema.Instruction, accountKeys []string) (string, bool) {
	if ix.ProgramID != nil {
		return *ix.ProgramID, true
	}
	if ix.ProgramIDIndex == nil {
		return "", false
	}
	idx := *ix.ProgramIDIndex
	if idx < 0 || idx >= len(accountKeys) {
		return "", false
	}
	return accountKeys[idx], true
}

// AccountAt resolves one account-index operand of an instruction against
// the fully resolved account key list.
func AccountAt(accountKeys []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(accountKeys) {
		return "", false
	}
	return accountKeys[idx], true
}

// IsWritable reports whether the account at idx (an index into the fully
// resolved key list returned by ResolveAccountKeys) is writable, following
// the standard Solana message layout: signed accounts first (writable
// prefix, then readonly signed), then unsigned static accounts (writable
// prefix, then readonly unsigned), then ALT-loaded accounts (writable
// block, then readonly block). Raw ("json") encoding carries no per-account
// writable flag, only the header's partition counts, so this is computed
// rather than read off a field.
func IsWritable(tx *schema.TxResult, idx int) bool {
	if tx == nil || tx.Transaction == nil || tx.Transaction.Message == nil {
		return false
	}
	msg := tx.Transaction.Message
	numStatic := len(msg.AccountKeys)

	if msg.Header != nil {
		h := msg.Header
		numSigned := h.NumRequiredSignatures
		if idx < numSigned {
			return idx < numSigned-h.NumReadonlySignedAccounts
		}
		if idx < numStatic {
			return idx < numStatic-h.NumReadonlyUnsignedAccounts
		}
	} else if idx < numStatic {
		// jsonParsed form carries the flag directly on the key.
		return msg.AccountKeys[idx].Writable
	}

	if tx.Meta == nil || tx.Meta.LoadedAddresses == nil {
		return false
	}
	altIdx := idx - numStatic
	writableCount := len(tx.Meta.LoadedAddresses.Writable)
	return altIdx >= 0 && altIdx < writableCount
}

// IsSigner reports whether the account at idx signed the transaction.
func IsSigner(tx *schema.TxResult, idx int) bool {
	if tx == nil || tx.Transaction == nil || tx.Transaction.Message == nil {
		return false
	}
	msg := tx.Transaction.Message
	if msg.Header != nil {
		return idx < msg.Header.NumRequiredSignatures
	}
	if idx < len(msg.AccountKeys) {
		return msg.AccountKeys[idx].Signer
	}
	return false
}
