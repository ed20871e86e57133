package swapdetect

import "testing"

func TestTraderKeyOnCurve(t *testing.T) {
	cases := []struct {
		name    string
		trader  string
		onCurve bool
	}{
		{"wrapped sol mint is a real account", "So11111111111111111111111111111111111111112", true},
		{"short placeholder is not penalized", "TRADER", true},
		{"empty string is not penalized", "", true},
		{"non-base58 is not penalized", "not-base-58!!", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := traderKeyOnCurve(tc.trader); got != tc.onCurve {
				t.Fatalf("traderKeyOnCurve(%q) = %v, want %v", tc.trader, got, tc.onCurve)
			}
		})
	}
}
