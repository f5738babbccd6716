package comments

import (
	"testing"

	"github.com/moodring-exchange/core-engine/pkg/models"
)

func TestVoteDeltaSameStateIsNoOp(t *testing.T) {
	up, down := voteDelta(models.VoteUp, models.VoteUp)
	if up != 0 || down != 0 {
		t.Fatalf("same-state vote produced delta (%d,%d), want (0,0)", up, down)
	}
}

func TestVoteDeltaNoneToUp(t *testing.T) {
	up, down := voteDelta(models.VoteNone, models.VoteUp)
	if up != 1 || down != 0 {
		t.Fatalf("none->up = (%d,%d), want (1,0)", up, down)
	}
}

func TestVoteDeltaFlipUpToDown(t *testing.T) {
	up, down := voteDelta(models.VoteUp, models.VoteDown)
	if up != -1 || down != 1 {
		t.Fatalf("up->down = (%d,%d), want (-1,1)", up, down)
	}
}

func TestVoteDeltaRetractDownToNone(t *testing.T) {
	up, down := voteDelta(models.VoteDown, models.VoteNone)
	if up != 0 || down != -1 {
		t.Fatalf("down->none = (%d,%d), want (0,-1)", up, down)
	}
}
