package resolution

import (
	"testing"

	"github.com/moodring-exchange/core-engine/internal/lmsr"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

func TestOpinionWinnerTieGoesToYes(t *testing.T) {
	if got := opinionWinner(lmsr.Precision / 2); got != models.SideYes {
		t.Fatalf("winner at exact tie = %v, want YES", got)
	}
}

func TestOpinionWinnerBelowHalfIsNo(t *testing.T) {
	if got := opinionWinner(lmsr.Precision/2 - 1); got != models.SideNo {
		t.Fatalf("winner below half = %v, want NO", got)
	}
}

func TestOpinionWinnerAboveHalfIsYes(t *testing.T) {
	if got := opinionWinner(lmsr.Precision/2 + 1); got != models.SideYes {
		t.Fatalf("winner above half = %v, want YES", got)
	}
}

func TestOverturnedSideFlips(t *testing.T) {
	if got := overturnedSide(models.SideYes); got != models.SideNo {
		t.Fatalf("overturn of YES = %v, want NO", got)
	}
	if got := overturnedSide(models.SideNo); got != models.SideYes {
		t.Fatalf("overturn of NO = %v, want YES", got)
	}
}
