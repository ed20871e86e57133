package schema

import (
	"encoding/json"
	"fmt"
)

// HydratedTx is the decoded getTransaction response together with the
// envelope fields needed to label every derived record. C1 produces it; C2
// consumes it and nothing else.
type HydratedTx struct {
	Envelope RawTxEnvelope
	Raw      TxResult
}

// TxResult mirrors the JSON-RPC getTransaction result shape for
// encoding="json". AccountKeys additionally accepts the jsonParsed object
// form ({"pubkey": "..."}) since some providers return it regardless of the
// requested encoding.
type TxResult struct {
	Slot        uint64   `json:"slot"`
	BlockTime   *int64   `json:"blockTime"`
	Transaction *TxBody  `json:"transaction"`
	Meta        *TxMeta  `json:"meta"`
	Version     *TxVer   `json:"version"`
}

// TxVer decodes the "version" field, which the RPC returns as either the
// JSON string "legacy" or an unsigned integer (0, 1, ...) for versioned
// transactions.
type TxVer struct {
	Legacy bool
	Num    uint8
}

func (v *TxVer) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v.Legacy = s == "legacy"
		return nil
	}
	var n uint8
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	v.Num = n
	return nil
}

type TxBody struct {
	Signatures []string `json:"signatures"`
	Message    *TxMessage `json:"message"`
}

type TxMessage struct {
	AccountKeys     []AccountKey   `json:"accountKeys"`
	Header          *MessageHeader `json:"header"`
	Instructions    []Instruction  `json:"instructions"`
	RecentBlockhash string         `json:"recentBlockhash"`
}

// MessageHeader carries the signer/writable partition counts for the static
// account key list. Present on raw (non-jsonParsed) encoding, which is what
// the getTransaction call requests.
type MessageHeader struct {
	NumRequiredSignatures       int `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   int `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts int `json:"numReadonlyUnsignedAccounts"`
}

// AccountKey decodes both the raw string form and the jsonParsed object
// form of an account key entry.
type AccountKey struct {
	Pubkey     string
	Signer     bool
	Writable   bool
}

func (a *AccountKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		a.Pubkey = s
		return nil
	}
	var obj struct {
		Pubkey   string `json:"pubkey"`
		Signer   bool   `json:"signer"`
		Writable bool   `json:"writable"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("accountKey: %w", err)
	}
	a.Pubkey = obj.Pubkey
	a.Signer = obj.Signer
	a.Writable = obj.Writable
	return nil
}

// Instruction is one top-level or inner instruction, in raw (programIdIndex
// + accounts-by-index) form.
type Instruction struct {
	ProgramIDIndex *int     `json:"programIdIndex"`
	ProgramID      *string  `json:"programId"`
	Accounts       []int    `json:"accounts"`
	Data           string   `json:"data"`
}

type InnerInstructionSet struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

type TxMeta struct {
	Err               interface{}           `json:"err"`
	Fee               uint64                `json:"fee"`
	PreBalances       []uint64              `json:"preBalances"`
	PostBalances      []uint64              `json:"postBalances"`
	PreTokenBalances  []TokenBalance        `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance        `json:"postTokenBalances"`
	InnerInstructions []InnerInstructionSet `json:"innerInstructions"`
	LoadedAddresses   *LoadedAddresses      `json:"loadedAddresses"`
	LogMessages       []string              `json:"logMessages"`
	ComputeUnitsConsumed *uint64            `json:"computeUnitsConsumed"`
}

// LoadedAddresses carries the address-lookup-table-resolved account keys for
// a v0 transaction, writable first, then readonly.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// TokenBalance is one entry of preTokenBalances/postTokenBalances.
type TokenBalance struct {
	AccountIndex  uint32          `json:"accountIndex"`
	Mint          string          `json:"mint"`
	Owner         *string         `json:"owner"`
	UITokenAmount UITokenAmount   `json:"uiTokenAmount"`
}

type UITokenAmount struct {
	Amount   string `json:"amount"` // raw base-unit string
	Decimals uint8  `json:"decimals"`
}

// IsSuccess reports whether the transaction executed without error.
func (m *TxMeta) IsSuccess() bool {
	return m == nil || m.Err == nil
}
