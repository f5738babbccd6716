package trade

import (
	"testing"

	"github.com/moodring-exchange/core-engine/internal/lmsr"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

func TestValidateSingleSideRejectsBothZero(t *testing.T) {
	if err := validateSingleSide(0, 0); err == nil {
		t.Fatal("expected error when both deltas are zero")
	}
}

func TestValidateSingleSideRejectsBothPositive(t *testing.T) {
	if err := validateSingleSide(10, 10); err == nil {
		t.Fatal("expected error when both deltas are positive")
	}
}

func TestValidateSingleSideAcceptsExactlyOne(t *testing.T) {
	if err := validateSingleSide(10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateSingleSide(0, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyBuyToPositionUpdatesAveragePrice(t *testing.T) {
	pos := &models.UserPosition{}
	applyBuyToPosition(pos, models.SideYes, 100_000, 50_000_000)
	if pos.YesShares != 100_000 {
		t.Fatalf("yes shares = %d, want 100000", pos.YesShares)
	}
	want := int64(50_000_000) * lmsr.Precision / 100_000
	if pos.AvgYesPrice != want {
		t.Fatalf("avg yes price = %d, want %d", pos.AvgYesPrice, want)
	}
}

func TestApplySellToPositionZeroesCostOnFullExit(t *testing.T) {
	pos := &models.UserPosition{YesShares: 100_000, TotalYesCost: 50_000_000, AvgYesPrice: 500_000}
	removed := int64(100_000) * 500_000 / lmsr.Precision
	applySellToPosition(pos, models.SideYes, 100_000, removed, 0)
	if pos.YesShares != 0 || pos.TotalYesCost != 0 || pos.AvgYesPrice != 0 {
		t.Fatalf("full exit left residue: %+v", pos)
	}
}

func TestApplySellToPositionPartialExitKeepsAvgStable(t *testing.T) {
	pos := &models.UserPosition{YesShares: 200_000, TotalYesCost: 100_000, AvgYesPrice: 500_000}
	removed := int64(50_000) * 500_000 / lmsr.Precision
	applySellToPosition(pos, models.SideYes, 50_000, removed, 1234)
	if pos.YesShares != 150_000 {
		t.Fatalf("yes shares = %d, want 150000", pos.YesShares)
	}
	if pos.AvgYesPrice != 500_000 {
		t.Fatalf("avg yes price drifted to %d, want 500000", pos.AvgYesPrice)
	}
	if pos.RealizedPnL != 1234 {
		t.Fatalf("realized pnl = %d, want 1234", pos.RealizedPnL)
	}
}
