package liquidity

import "testing"

func TestMintedSharesFirstProviderGetsAmount(t *testing.T) {
	if got := mintedShares(100_000_000, 0, 0); got != 100_000_000 {
		t.Fatalf("minted = %d, want 100000000", got)
	}
}

func TestMintedSharesLaterProviderIsProportional(t *testing.T) {
	// Scenario 6: 50 units deposited into a 100-unit pool already minted
	// 100_000_000 shares.
	got := mintedShares(50_000_000, 100_000_000, 100_000_000)
	if got != 50_000_000 {
		t.Fatalf("minted = %d, want 50000000", got)
	}
}

func TestWithdrawalAmountsScenario6(t *testing.T) {
	// LP E: 100 units deposited, sole holder of 100_000_000 shares.
	// Market resolves with 80 units outstanding redeemable, so the pool
	// after resolution is 20 units. E withdraws everything.
	poolValue, _, total := withdrawalAmounts(100_000_000, 100_000_000, 20_000_000, 0, 100_000_000)
	if poolValue != 20_000_000 {
		t.Fatalf("pool value = %d, want 20000000", poolValue)
	}
	if total != 20_000_000 {
		t.Fatalf("total = %d, want 20000000", total)
	}
}

func TestWithdrawalAmountsClampedToCurrentValue(t *testing.T) {
	_, _, total := withdrawalAmounts(100_000_000, 100_000_000, 200_000_000, 0, 50_000_000)
	if total != 50_000_000 {
		t.Fatalf("total = %d, want clamp to 50000000", total)
	}
}
