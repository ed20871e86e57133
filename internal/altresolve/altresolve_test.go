package altresolve

import (
	"testing"

	"github.com/stphkoo/solana-indexer/internal/schema"
)

func sampleTx(loaded *schema.LoadedAddresses) *schema.TxResult {
	return &schema.TxResult{
		Transaction: &schema.TxBody{
			Message: &schema.TxMessage{
				AccountKeys: []schema.AccountKey{
					{Pubkey: "static1"},
					{Pubkey: "static2"},
				},
			},
		},
		Meta: &schema.TxMeta{LoadedAddresses: loaded},
	}
}

func TestResolveAccountKeys_LegacyHasNoALT(t *testing.T) {
	tx := sampleTx(nil)
	got := ResolveAccountKeys(tx)
	want := []string{"static1", "static2"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestResolveAccountKeys_AppendsWritableThenReadonly(t *testing.T) {
	tx := sampleTx(&schema.LoadedAddresses{
		Writable: []string{"w1", "w2"},
		Readonly: []string{"r1"},
	})
	got := ResolveAccountKeys(tx)
	want := []string{"static1", "static2", "w1", "w2", "r1"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestIsVersionedWithALT(t *testing.T) {
	if IsVersionedWithALT(sampleTx(nil)) {
		t.Fatalf("legacy tx should not report ALT usage")
	}
	if !IsVersionedWithALT(sampleTx(&schema.LoadedAddresses{Writable: []string{"w1"}})) {
		t.Fatalf("tx with loaded writable addresses should report ALT usage")
	}
}

func TestProgramID_PrefersExplicitOverIndex(t *testing.T) {
	keys := []string{"a", "b", "c"}
	idx := 1
	ix := schema.Instruction{ProgramID: strPtr("explicit"), ProgramIDIndex: &idx}
	got, ok := ProgramID(ix, keys)
	if !ok || got != "explicit" {
		t.Fatalf("got %q ok=%v, want explicit", got, ok)
	}
}

func TestProgramID_FallsBackToIndex(t *testing.T) {
	keys := []string{"a", "b", "c"}
	idx := 2
	ix := schema.Instruction{ProgramIDIndex: &idx}
	got, ok := ProgramID(ix, keys)
	if !ok || got != "c" {
		t.Fatalf("got %q ok=%v, want c", got, ok)
	}
}

func strPtr(s string) *string { return &s }
