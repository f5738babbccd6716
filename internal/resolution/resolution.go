// Package resolution implements the three ways a market option settles
// (ORACLE, AUTHORITY, OPINION) and the AUTHORITY dispute state machine that
// sits between a resolution being issued and claims unblocking. Every
// mutating method follows the same lock/compute/apply/commit shape as
// internal/trade and internal/liquidity.
package resolution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodring-exchange/core-engine/internal/apperr"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/internal/lmsr"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// DisputeWindow is the fixed window spec.md §4.7 gives AUTHORITY resolutions
// before they settle unopposed.
const DisputeWindow = 2 * time.Hour

// EventEmitter is the subset of fanout the resolution manager drives.
type EventEmitter interface {
	EmitResolved(optionID uuid.UUID, winningSide models.Side, at time.Time)
}

// Engine is the resolution and dispute manager (C7).
type Engine struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter EventEmitter
}

func NewEngine(pool *pgxpool.Pool, led *ledger.Ledger, emitter EventEmitter) *Engine {
	return &Engine{pool: pool, ledger: led, emitter: emitter}
}

func validWinningSide(s models.Side) error {
	if s != models.SideYes && s != models.SideNo {
		return apperr.Validationf("winning side must be YES or NO")
	}
	return nil
}

// ResolveOracle settles an option immediately: no dispute window. Only valid
// for markets whose resolution_mode is ORACLE.
func (e *Engine) ResolveOracle(ctx context.Context, marketID, optionID uuid.UUID, winningSide models.Side) error {
	if err := validWinningSide(winningSide); err != nil {
		return err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	market, err := e.ledger.GetMarketWithLock(ctx, tx, marketID)
	if err != nil {
		return err
	}
	if market.ResolutionMode != models.ResolutionOracle {
		return apperr.Preconditionf("market is not in ORACLE resolution mode")
	}

	option, err := e.ledger.GetOptionWithLock(ctx, tx, optionID)
	if err != nil {
		return err
	}
	if option.MarketID != marketID {
		return apperr.Validationf("option does not belong to market")
	}
	if option.IsResolved {
		return apperr.Conflictf("option is already resolved")
	}

	now := time.Now()
	if err := e.ledger.UpdateOptionResolution(ctx, tx, optionID, winningSide, true, models.StateSettled, nil); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitResolved(optionID, winningSide, now)
	return nil
}

// ResolveAuthority sets a tentative winning side and opens the 2-hour
// dispute window. Claims stay blocked (is_resolved stays false) until the
// window expires or a filed dispute is decided.
func (e *Engine) ResolveAuthority(ctx context.Context, marketID, optionID uuid.UUID, winningSide models.Side) error {
	if err := validWinningSide(winningSide); err != nil {
		return err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	market, err := e.ledger.GetMarketWithLock(ctx, tx, marketID)
	if err != nil {
		return err
	}
	if market.ResolutionMode != models.ResolutionAuthority {
		return apperr.Preconditionf("market is not in AUTHORITY resolution mode")
	}

	option, err := e.ledger.GetOptionWithLock(ctx, tx, optionID)
	if err != nil {
		return err
	}
	if option.MarketID != marketID {
		return apperr.Validationf("option does not belong to market")
	}
	if option.IsResolved || option.DisputeState == models.StateAwaitingDispute || option.DisputeState == models.StateUnderReview {
		return apperr.Conflictf("option already has a resolution in flight")
	}

	deadline := time.Now().Add(DisputeWindow)
	if err := e.ledger.UpdateOptionResolution(ctx, tx, optionID, winningSide, false, models.StateAwaitingDispute, &deadline); err != nil {
		return err
	}

	return commitOnly(ctx, tx)
}

// FileDispute opens a challenge against an AWAITING_DISPUTE resolution. The
// bond is escrowed out of the disputer's wallet immediately; it is returned
// or forfeited when DecideDispute runs.
func (e *Engine) FileDispute(ctx context.Context, optionID, disputerID uuid.UUID, bondAmount int64) (*models.Dispute, error) {
	if bondAmount <= 0 {
		return nil, apperr.Validationf("dispute bond must be positive")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	option, err := e.ledger.GetOptionWithLock(ctx, tx, optionID)
	if err != nil {
		return nil, err
	}
	if option.DisputeState != models.StateAwaitingDispute {
		return nil, apperr.Preconditionf("option is not awaiting dispute")
	}
	if option.DisputeDeadline == nil || time.Now().After(*option.DisputeDeadline) {
		return nil, apperr.Preconditionf("dispute window has closed")
	}

	wallet, err := e.ledger.GetWalletWithLock(ctx, tx, disputerID)
	if err != nil {
		return nil, err
	}
	if wallet.BalanceUSDC < bondAmount {
		return nil, apperr.Insufficient("balance", wallet.BalanceUSDC, bondAmount)
	}

	if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC-bondAmount); err != nil {
		return nil, err
	}

	dispute := &models.Dispute{
		ID:         uuid.New(),
		OptionID:   optionID,
		DisputerID: disputerID,
		BondAmount: bondAmount,
		Status:     models.DisputeFiled,
		CreatedAt:  time.Now(),
	}
	if err := e.ledger.InsertDispute(ctx, tx, dispute); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateOptionResolution(ctx, tx, optionID, option.WinningSide, false, models.StateUnderReview, option.DisputeDeadline); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}
	return dispute, nil
}

// overturnedSide flips a tentative winning side when an admin overturns an
// AUTHORITY resolution; a binary option has exactly one alternative.
func overturnedSide(original models.Side) models.Side {
	if original == models.SideYes {
		return models.SideNo
	}
	return models.SideYes
}

// DecideDispute resolves an UNDER_REVIEW option. Upholding forfeits the
// bond to the protocol and settles with the original winning side;
// overturning refunds the bond and settles with the alternative side.
func (e *Engine) DecideDispute(ctx context.Context, optionID uuid.UUID, uphold bool) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	option, err := e.ledger.GetOptionWithLock(ctx, tx, optionID)
	if err != nil {
		return err
	}
	if option.DisputeState != models.StateUnderReview {
		return apperr.Preconditionf("option is not under review")
	}

	dispute, err := e.ledger.GetOpenDisputeWithLock(ctx, tx, optionID)
	if err != nil {
		return err
	}
	if dispute == nil {
		return apperr.Internalf("no filed dispute found for option under review")
	}

	winningSide := option.WinningSide
	now := time.Now()

	if uphold {
		dispute.Status = models.DisputeUpheld
		if err := e.ledger.UpdateMarketStats(ctx, tx, option.MarketID, ledger.MarketStatsDelta{ProtocolFee: dispute.BondAmount}); err != nil {
			return err
		}
	} else {
		dispute.Status = models.DisputeOverturned
		winningSide = overturnedSide(option.WinningSide)
		wallet, err := e.ledger.GetWalletWithLock(ctx, tx, dispute.DisputerID)
		if err != nil {
			return err
		}
		if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC+dispute.BondAmount); err != nil {
			return err
		}
	}

	if err := e.ledger.UpdateDisputeDecision(ctx, tx, dispute.ID, dispute.Status, now); err != nil {
		return err
	}
	if err := e.ledger.UpdateOptionResolution(ctx, tx, optionID, winningSide, true, models.StateSettled, nil); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitResolved(optionID, winningSide, now)
	return nil
}

// SettleExpiredWindow settles an AWAITING_DISPUTE option whose window has
// passed with no dispute filed. Intended to be driven by a periodic sweep,
// mirroring the teacher's ResolveExpiredMarkets loop: callers iterate
// candidates and call this once per option, continuing past individual
// failures.
func (e *Engine) SettleExpiredWindow(ctx context.Context, optionID uuid.UUID) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	option, err := e.ledger.GetOptionWithLock(ctx, tx, optionID)
	if err != nil {
		return err
	}
	if option.DisputeState != models.StateAwaitingDispute {
		return apperr.Preconditionf("option is not awaiting dispute")
	}
	if option.DisputeDeadline == nil || time.Now().Before(*option.DisputeDeadline) {
		return apperr.Preconditionf("dispute window has not yet closed")
	}

	now := time.Now()
	if err := e.ledger.UpdateOptionResolution(ctx, tx, optionID, option.WinningSide, true, models.StateSettled, nil); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitResolved(optionID, option.WinningSide, now)
	return nil
}

// opinionWinner applies spec.md §4.7's OPINION rule: YES wins on a tie.
func opinionWinner(yesPrice int64) models.Side {
	if yesPrice >= lmsr.Precision/2 {
		return models.SideYes
	}
	return models.SideNo
}

// ResolveOpinion settles an OPINION market from its price at expiration. The
// deterministic snapshot is the most recent price_history row at or before
// the market's expires_at; if none was ever recorded (a market that expires
// before its first trade), it falls back to a live LMSR read of the
// option's current inventory.
func (e *Engine) ResolveOpinion(ctx context.Context, marketID, optionID uuid.UUID) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	market, err := e.ledger.GetMarketWithLock(ctx, tx, marketID)
	if err != nil {
		return err
	}
	if market.ResolutionMode != models.ResolutionOpinion {
		return apperr.Preconditionf("market is not in OPINION resolution mode")
	}

	option, err := e.ledger.GetOptionWithLock(ctx, tx, optionID)
	if err != nil {
		return err
	}
	if option.MarketID != marketID {
		return apperr.Validationf("option does not belong to market")
	}
	if option.IsResolved {
		return apperr.Conflictf("option is already resolved")
	}

	snapshot, err := e.ledger.LatestPriceAtOrBefore(ctx, tx, optionID, market.ExpiresAt)
	if err != nil {
		return err
	}

	var yesPrice int64
	if snapshot != nil {
		yesPrice = snapshot.YesPrice
	} else {
		yesPrice, err = lmsr.YesPrice(option.YesQuantity, option.NoQuantity, market.LiquidityParameter)
		if err != nil {
			return err
		}
	}

	winningSide := opinionWinner(yesPrice)
	now := time.Now()
	if err := e.ledger.UpdateOptionResolution(ctx, tx, optionID, winningSide, true, models.StateSettled, nil); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitResolved(optionID, winningSide, now)
	return nil
}

func commitOnly(ctx context.Context, tx interface{ Commit(context.Context) error }) error {
	if err := tx.Commit(ctx); err != nil {
		return apperr.Internalf("commit: %v", err)
	}
	return nil
}
