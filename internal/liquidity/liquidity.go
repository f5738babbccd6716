// Package liquidity implements the LP lifecycle: minting shares against a
// market's pool on deposit, and settling claimable value out of the
// post-resolution residual pool on withdrawal. Both operations follow the
// same lock/compute/apply/commit shape as internal/trade.
package liquidity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodring-exchange/core-engine/internal/apperr"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// EventEmitter is the subset of fanout the liquidity engine drives.
type EventEmitter interface {
	EmitPriceUpdate(optionID uuid.UUID, yesPrice, noPrice, yesQty, noQty int64, at time.Time)
	EmitBalanceUpdate(userID uuid.UUID, balance int64)
}

// Engine is the liquidity lifecycle (C6).
type Engine struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter EventEmitter
}

func NewEngine(pool *pgxpool.Pool, led *ledger.Ledger, emitter EventEmitter) *Engine {
	return &Engine{pool: pool, ledger: led, emitter: emitter}
}

// mintedShares applies spec.md §4.6's minting rule: the first provider (or
// a market whose pool is somehow empty) receives shares equal to their
// deposit; later providers are minted proportionally to the pool as it
// stood before their deposit.
func mintedShares(amount, totalShares, poolBefore int64) int64 {
	if totalShares == 0 || poolBefore == 0 {
		return amount
	}
	return amount * totalShares / poolBefore
}

// withdrawalAmounts computes an LP's share of the post-resolution pool plus
// accumulated fees, clamped so claimable_value never exceeds current_value
// (L2).
func withdrawalAmounts(shares, totalShares, poolAfterResolution, accumulatedFees, currentValue int64) (poolValue, feesPaid, total int64) {
	if totalShares > 0 {
		poolValue = shares * poolAfterResolution / totalShares
		feesPaid = shares * accumulatedFees / totalShares
	}
	total = poolValue + feesPaid
	if total > currentValue {
		total = currentValue
	}
	return poolValue, feesPaid, total
}

// LpReceipt is returned by AddLiquidity.
type LpReceipt struct {
	SharesMinted int64
	NewPool      int64
}

// AddLiquidity executes spec.md §4.6's deposit path: only while a market is
// initialized and unresolved. The first provider receives shares equal to
// their deposit; later providers receive a proportional mint against the
// pool as it stood before their deposit.
func (e *Engine) AddLiquidity(ctx context.Context, userID, marketID uuid.UUID, amount int64) (*LpReceipt, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("liquidity amount must be positive")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	market, err := e.ledger.GetMarketWithLock(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.IsInitialized || market.IsResolved {
		return nil, apperr.Preconditionf("market is not open for liquidity deposits")
	}

	wallet, err := e.ledger.GetWalletWithLock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.BalanceUSDC < amount {
		return nil, apperr.Insufficient("balance", wallet.BalanceUSDC, amount)
	}

	totalShares, err := e.ledger.TotalLpShares(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}

	poolBefore := market.SharedPoolLiquidity
	minted := mintedShares(amount, totalShares, poolBefore)

	if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC-amount); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateMarketStats(ctx, tx, marketID, ledger.MarketStatsDelta{PoolLiquidity: amount}); err != nil {
		return nil, err
	}

	lp, err := e.ledger.GetLpPositionWithLock(ctx, tx, userID, marketID)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		lp = &models.LpPosition{ID: uuid.New(), UserID: userID, MarketID: marketID}
	}
	lp.Shares += minted
	lp.DepositedAmount += amount
	lp.CurrentValue = lp.DepositedAmount
	if err := e.ledger.UpsertLpPosition(ctx, tx, lp); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitBalanceUpdate(userID, wallet.BalanceUSDC-amount)

	return &LpReceipt{SharesMinted: minted, NewPool: poolBefore + amount}, nil
}

// WithdrawReceipt is returned by RemoveLiquidity.
type WithdrawReceipt struct {
	PoolValue int64
	FeesPaid  int64
	Total     int64
}

// RemoveLiquidity executes spec.md §4.6's withdrawal path: only after
// resolution. The payable pool excludes outstanding redeemable winning
// shares across every option of the market (L2/L3).
func (e *Engine) RemoveLiquidity(ctx context.Context, userID, marketID uuid.UUID, shares int64) (*WithdrawReceipt, error) {
	if shares <= 0 {
		return nil, apperr.Validationf("withdrawal shares must be positive")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	market, err := e.ledger.GetMarketWithLock(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.IsResolved {
		return nil, apperr.Preconditionf("market is not yet resolved")
	}

	lp, err := e.ledger.GetLpPositionWithLock(ctx, tx, userID, marketID)
	if err != nil {
		return nil, err
	}
	if lp == nil || lp.Shares < shares {
		avail := int64(0)
		if lp != nil {
			avail = lp.Shares
		}
		return nil, apperr.Insufficient("lp_shares", avail, shares)
	}

	totalShares, err := e.ledger.TotalLpShares(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	outstanding, err := e.ledger.OutstandingRedeemableShares(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}

	poolAfterResolution := market.SharedPoolLiquidity - outstanding
	if poolAfterResolution < 0 {
		poolAfterResolution = 0
	}

	userValue, feesPaid, total := withdrawalAmounts(shares, totalShares, poolAfterResolution, market.AccumulatedLPFees, lp.CurrentValue)

	wallet, err := e.ledger.GetWalletWithLock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.UpdateMarketStats(ctx, tx, marketID, ledger.MarketStatsDelta{PoolLiquidity: -total, LPFee: -feesPaid}); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC+total); err != nil {
		return nil, err
	}

	lp.Shares -= shares
	lp.ClaimableValue = total
	lp.CurrentValue -= total
	if lp.CurrentValue < 0 {
		lp.CurrentValue = 0
	}
	if err := e.ledger.UpsertLpPosition(ctx, tx, lp); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitBalanceUpdate(userID, wallet.BalanceUSDC+total)

	return &WithdrawReceipt{PoolValue: userValue, FeesPaid: feesPaid, Total: total}, nil
}
