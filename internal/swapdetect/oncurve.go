package swapdetect

import (
	"github.com/mr-tron/base58"
	"filippo.io/edwards25519"
)

// traderKeyOnCurve reports whether trader is a point on the Edwards curve.
// Solana wallet accounts are Ed25519 public keys (on-curve);
// program-derived addresses are deliberately off-curve. A candidate whose
// "trader" resolves off-curve is more likely a misidentified PDA than a
// real wallet; the detector records this only as a trader_off_curve note in
// the explain string, and it never changes the confidence score.
//
// A trader string that doesn't even decode to a 32-byte pubkey (malformed
// input, or test fixtures using short placeholder strings) is treated as
// on-curve: only a positive off-curve signal returns false, never an
// address it can't parse.
func traderKeyOnCurve(trader string) bool {
	raw, err := base58.Decode(trader)
	if err != nil || len(raw) != 32 {
		return true
	}
	var buf [32]byte
	copy(buf[:], raw)
	_, err = edwards25519.NewIdentityPoint().SetBytes(buf[:])
	return err == nil
}
