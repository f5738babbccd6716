// Package trade composes the LMSR kernel, fee calculator, ledger, and risk
// controller into the three atomic operations external callers actually
// invoke: buy, sell, and claim. Each is a single database transaction. Buy
// and sell lock rows in the canonical order (market, option, wallet,
// position); claim reads the option unlocked and locks the position before
// the market and wallet. Each prices and fee-splits the trade (claim pays
// out without fees), applies mutations, and commits before
// emitting fanout events — the same acquire-lock/compute/apply/commit shape
// the teacher engine uses for its analysis transactions.
package trade

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodring-exchange/core-engine/internal/apperr"
	"github.com/moodring-exchange/core-engine/internal/config"
	"github.com/moodring-exchange/core-engine/internal/fees"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/internal/lmsr"
	"github.com/moodring-exchange/core-engine/internal/risk"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// minTradeCost is the dust floor from spec.md §4.5.1 step 4: 0.01 unit.
const minTradeCost = lmsr.Precision / 100

// EventEmitter is the narrow interface the trade engine needs from the
// realtime fanout subsystem. internal/realtime.Bus satisfies it; defining
// it here (rather than importing that package) keeps trade free of a
// dependency on the transport layer.
type EventEmitter interface {
	EmitPriceUpdate(optionID uuid.UUID, yesPrice, noPrice, yesQty, noQty int64, at time.Time)
	EmitTradeCreated(t *models.Trade)
	EmitPositionUpdate(userID, optionID uuid.UUID, yesShares, noShares, realizedPnL int64)
	EmitBalanceUpdate(userID uuid.UUID, balance int64)
}

// Engine is the trade execution pipeline (C5).
type Engine struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	risk    *risk.Controller
	riskCfg config.RiskConfig
	feeCfg  config.FeesConfig
	limits  config.LimitsConfig
	emitter EventEmitter
}

func NewEngine(pool *pgxpool.Pool, led *ledger.Ledger, riskCtl *risk.Controller, riskCfg config.RiskConfig, feeCfg config.FeesConfig, limits config.LimitsConfig, emitter EventEmitter) *Engine {
	return &Engine{pool: pool, ledger: led, risk: riskCtl, riskCfg: riskCfg, feeCfg: feeCfg, limits: limits, emitter: emitter}
}

// recordFindings persists each risk finding as its own SuspiciousTrade row,
// or just logs it under shadow mode so new checks can run against live
// traffic without affecting the evidence table yet.
func (e *Engine) recordFindings(ctx context.Context, q ledger.Querier, tc risk.TradeContext, findings []risk.Finding) {
	for _, f := range findings {
		if e.riskCfg.ShadowMode {
			log.Printf("risk: shadow finding reason=%s score=%d user=%s market=%s option=%s", f.DetectionReason, f.RiskScore, tc.UserID, tc.MarketID, tc.OptionID)
			continue
		}
		st := risk.ToSuspiciousTrade(tc, f)
		_ = e.ledger.InsertSuspiciousTrade(ctx, q, st) // best-effort: risk telemetry never blocks the trade
	}
}

// checkLimits enforces spec.md §4.5's per-user/per-market/per-option trade
// limits identically for buy and sell: a per-call floor/ceiling on the
// gross trade amount, a cumulative per-user-per-market cost-basis ceiling,
// and a ceiling on the option's own post-trade inventory.
func (e *Engine) checkLimits(ctx context.Context, q ledger.Querier, userID, marketID uuid.UUID, grossAmount int64, postTradeOptionNotional int64) error {
	if grossAmount < e.limits.MinTradeNotionalUnits {
		return apperr.Newf(apperr.LimitExceeded, "trade amount %d below minimum %d", grossAmount, e.limits.MinTradeNotionalUnits)
	}
	if grossAmount > e.limits.MaxTradeNotionalUnits {
		return apperr.Newf(apperr.LimitExceeded, "trade amount %d exceeds maximum %d", grossAmount, e.limits.MaxTradeNotionalUnits)
	}
	userMarketSum, err := e.ledger.SumUserCostInMarket(ctx, q, userID, marketID)
	if err != nil {
		return err
	}
	if userMarketSum+grossAmount > e.limits.MaxUserMarketNotionalUnits {
		return apperr.Newf(apperr.LimitExceeded, "user exposure %d in market would exceed maximum %d", userMarketSum+grossAmount, e.limits.MaxUserMarketNotionalUnits)
	}
	if postTradeOptionNotional > e.limits.MaxOptionNotionalUnits {
		return apperr.Newf(apperr.LimitExceeded, "option notional %d would exceed maximum %d", postTradeOptionNotional, e.limits.MaxOptionNotionalUnits)
	}
	return nil
}

func (e *Engine) rates() fees.Rates {
	return fees.Rates{ProtocolPPM: e.feeCfg.ProtocolPPM, CreatorPPM: e.feeCfg.CreatorPPM, LPPPM: e.feeCfg.LPPPM}
}

// BuyRequest is the input to Buy.
type BuyRequest struct {
	UserID        uuid.UUID
	MarketID      uuid.UUID
	OptionID      uuid.UUID
	DeltaYes      int64
	DeltaNo       int64
	MaxCost       *int64
	SlippageBps   *int64
	ClientOrderID *uuid.UUID
}

// TradeResult is returned by both Buy and Sell.
type TradeResult struct {
	Trade       *models.Trade
	RawAmount   int64 // raw_cost for buys, raw_payout for sells
	Fees        fees.Split
	NewYesPrice int64
	NewNoPrice  int64
}

func validateSingleSide(dYes, dNo int64) error {
	if dYes < 0 || dNo < 0 {
		return apperr.Validationf("trade quantities must be non-negative")
	}
	if (dYes > 0) == (dNo > 0) {
		return apperr.Validationf("exactly one of delta_yes/delta_no must be positive")
	}
	return nil
}

// Buy executes spec.md §4.5.1.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*TradeResult, error) {
	if err := validateSingleSide(req.DeltaYes, req.DeltaNo); err != nil {
		return nil, err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if paused, err := e.ledger.IsTradingPaused(ctx, tx); err != nil {
		return nil, err
	} else if paused {
		return nil, apperr.Preconditionf("trading is paused")
	}

	if req.ClientOrderID != nil {
		if existing, err := e.ledger.FindTradeByClientOrderID(ctx, tx, req.UserID, *req.ClientOrderID); err != nil {
			return nil, err
		} else if existing != nil {
			opt, optErr := e.ledger.GetOption(ctx, tx, existing.OptionID)
			var yp, np int64
			if optErr == nil {
				if mkt, mErr := e.ledger.GetMarket(ctx, tx, existing.MarketID); mErr == nil {
					yp, np, _ = lmsrPrices(opt.YesQuantity, opt.NoQuantity, mkt.LiquidityParameter)
				}
			}
			return &TradeResult{Trade: existing, RawAmount: existing.TotalCost - existing.ProtocolFee - existing.CreatorFee - existing.LPFee, NewYesPrice: yp, NewNoPrice: np}, nil
		}
	}

	market, err := e.ledger.GetMarketWithLock(ctx, tx, req.MarketID)
	if err != nil {
		return nil, err
	}
	if !market.IsInitialized || market.IsResolved || market.SharedPoolLiquidity <= 0 {
		return nil, apperr.Preconditionf("market is not open for trading")
	}

	option, err := e.ledger.GetOptionWithLock(ctx, tx, req.OptionID)
	if err != nil {
		return nil, err
	}
	if option.MarketID != market.ID {
		return nil, apperr.Validationf("option does not belong to market")
	}
	if option.IsResolved {
		return nil, apperr.Preconditionf("option is already resolved")
	}

	wallet, err := e.ledger.GetWalletWithLock(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	side := models.SideYes
	qty := req.DeltaYes
	if req.DeltaNo > 0 {
		side = models.SideNo
		qty = req.DeltaNo
	}

	rawCost, err := lmsr.BuyCost(option.YesQuantity, option.NoQuantity, req.DeltaYes, req.DeltaNo, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	if rawCost < minTradeCost {
		rawCost = minTradeCost
	}

	split := fees.Calculate(rawCost, e.rates())
	totalCost := rawCost + split.TotalFee

	newYesForLimit := option.YesQuantity + req.DeltaYes
	newNoForLimit := option.NoQuantity + req.DeltaNo
	if err := e.checkLimits(ctx, tx, req.UserID, req.MarketID, totalCost, newYesForLimit+newNoForLimit); err != nil {
		return nil, err
	}

	poolSizeBefore := option.YesQuantity + option.NoQuantity
	now := time.Now()
	priceBefore, _, err := lmsrPrices(option.YesQuantity, option.NoQuantity, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	priceAfter, _, err := lmsrPrices(newYesForLimit, newNoForLimit, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	findings, err := e.risk.Assess(ctx, tx, risk.TradeContext{
		UserID: req.UserID, MarketID: req.MarketID, OptionID: req.OptionID,
		NotionalUnits: totalCost, PriceBefore: priceBefore, PriceAfter: priceAfter,
		PoolSizeBefore: poolSizeBefore, TradeSize: qty, Now: now,
	})
	if err != nil {
		return nil, err
	}
	e.recordFindings(ctx, tx, risk.TradeContext{UserID: req.UserID, MarketID: req.MarketID, OptionID: req.OptionID, Now: now}, findings)

	if req.MaxCost != nil {
		ceiling := *req.MaxCost
		if req.SlippageBps != nil {
			ceiling += *req.MaxCost * *req.SlippageBps / 10000
		}
		if totalCost > ceiling {
			return nil, apperr.Slippage(*req.MaxCost, totalCost)
		}
	}

	if wallet.BalanceUSDC < totalCost {
		return nil, apperr.Insufficient("balance", wallet.BalanceUSDC, totalCost)
	}

	if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC-totalCost); err != nil {
		return nil, err
	}
	newYes := newYesForLimit
	newNo := newNoForLimit
	if err := e.ledger.UpdateOptionQuantities(ctx, tx, option.ID, newYes, newNo); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateMarketStats(ctx, tx, market.ID, ledger.MarketStatsDelta{
		Volume: totalCost, OpenInterest: req.DeltaYes + req.DeltaNo,
		CreatorFee: split.CreatorFee, ProtocolFee: split.ProtocolFee, LPFee: split.LPFee,
		PoolLiquidity: rawCost,
	}); err != nil {
		return nil, err
	}

	posID, err := e.ledger.UpsertUserPosition(ctx, tx, req.UserID, option.ID)
	if err != nil {
		return nil, err
	}
	pos, err := e.ledger.GetPositionWithLock(ctx, tx, req.UserID, option.ID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &models.UserPosition{ID: posID, UserID: req.UserID, OptionID: option.ID}
	}
	upd := applyBuyToPosition(pos, side, qty, rawCost)
	if err := e.ledger.UpdatePositionShares(ctx, tx, pos.ID, upd); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		ID: uuid.New(), UserID: req.UserID, MarketID: market.ID, OptionID: option.ID,
		Side: side, IsBuy: true, Quantity: qty, TotalCost: totalCost,
		ProtocolFee: split.ProtocolFee, CreatorFee: split.CreatorFee, LPFee: split.LPFee,
		ClientOrderID: req.ClientOrderID, CreatedAt: now,
	}
	if err := e.ledger.InsertTrade(ctx, tx, trade); err != nil {
		return nil, err
	}

	yp, np, err := lmsrPrices(newYes, newNo, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.InsertPriceHistoryPoint(ctx, tx, models.PriceHistoryPoint{OptionID: option.ID, Timestamp: now, YesPrice: yp, NoPrice: np}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitAll(trade, yp, np, newYes, newNo, upd, wallet.BalanceUSDC-totalCost)

	return &TradeResult{Trade: trade, RawAmount: rawCost, Fees: split, NewYesPrice: yp, NewNoPrice: np}, nil
}

// SellRequest is the input to Sell.
type SellRequest struct {
	UserID        uuid.UUID
	MarketID      uuid.UUID
	OptionID      uuid.UUID
	DeltaYes      int64
	DeltaNo       int64
	MinPayout     *int64
	SlippageBps   *int64
	ClientOrderID *uuid.UUID
}

// Sell executes spec.md §4.5.2.
func (e *Engine) Sell(ctx context.Context, req SellRequest) (*TradeResult, error) {
	if err := validateSingleSide(req.DeltaYes, req.DeltaNo); err != nil {
		return nil, err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if paused, err := e.ledger.IsTradingPaused(ctx, tx); err != nil {
		return nil, err
	} else if paused {
		return nil, apperr.Preconditionf("trading is paused")
	}

	market, err := e.ledger.GetMarketWithLock(ctx, tx, req.MarketID)
	if err != nil {
		return nil, err
	}
	if market.IsResolved {
		return nil, apperr.Preconditionf("market is resolved")
	}

	option, err := e.ledger.GetOptionWithLock(ctx, tx, req.OptionID)
	if err != nil {
		return nil, err
	}
	if option.IsResolved {
		return nil, apperr.Preconditionf("option is already resolved")
	}

	wallet, err := e.ledger.GetWalletWithLock(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	pos, err := e.ledger.GetPositionWithLock(ctx, tx, req.UserID, option.ID)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.YesShares < req.DeltaYes || pos.NoShares < req.DeltaNo {
		avail := int64(0)
		if pos != nil {
			avail = pos.YesShares
			if req.DeltaNo > 0 {
				avail = pos.NoShares
			}
		}
		need := req.DeltaYes
		if req.DeltaNo > 0 {
			need = req.DeltaNo
		}
		return nil, apperr.Insufficient("shares", avail, need)
	}

	side := models.SideYes
	qty := req.DeltaYes
	avgPrice := pos.AvgYesPrice
	if req.DeltaNo > 0 {
		side = models.SideNo
		qty = req.DeltaNo
		avgPrice = pos.AvgNoPrice
	}

	rawPayout, err := lmsr.SellPayout(option.YesQuantity, option.NoQuantity, req.DeltaYes, req.DeltaNo, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}

	split := fees.Calculate(rawPayout, e.rates())
	netPayout := split.Net

	newYesForLimit := option.YesQuantity - req.DeltaYes
	newNoForLimit := option.NoQuantity - req.DeltaNo
	if err := e.checkLimits(ctx, tx, req.UserID, req.MarketID, rawPayout, newYesForLimit+newNoForLimit); err != nil {
		return nil, err
	}

	poolSizeBefore := option.YesQuantity + option.NoQuantity
	now := time.Now()
	priceBefore, _, err := lmsrPrices(option.YesQuantity, option.NoQuantity, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	priceAfter, _, err := lmsrPrices(newYesForLimit, newNoForLimit, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	findings, err := e.risk.Assess(ctx, tx, risk.TradeContext{
		UserID: req.UserID, MarketID: req.MarketID, OptionID: req.OptionID,
		NotionalUnits: rawPayout, PriceBefore: priceBefore, PriceAfter: priceAfter,
		PoolSizeBefore: poolSizeBefore, TradeSize: qty, Now: now,
	})
	if err != nil {
		return nil, err
	}
	e.recordFindings(ctx, tx, risk.TradeContext{UserID: req.UserID, MarketID: req.MarketID, OptionID: req.OptionID, Now: now}, findings)

	if req.MinPayout != nil {
		floor := *req.MinPayout
		if req.SlippageBps != nil {
			floor -= *req.MinPayout * *req.SlippageBps / 10000
		}
		if netPayout < floor {
			return nil, apperr.Slippage(*req.MinPayout, netPayout)
		}
	}

	if market.SharedPoolLiquidity < rawPayout {
		return nil, apperr.Insufficient("pool_liquidity", market.SharedPoolLiquidity, rawPayout)
	}

	removedCost := qty * avgPrice / lmsr.Precision
	realizedPnL := netPayout - removedCost

	if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC+netPayout); err != nil {
		return nil, err
	}
	newYes := newYesForLimit
	newNo := newNoForLimit
	if err := e.ledger.UpdateOptionQuantities(ctx, tx, option.ID, newYes, newNo); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateMarketStats(ctx, tx, market.ID, ledger.MarketStatsDelta{
		Volume: rawPayout, OpenInterest: -(req.DeltaYes + req.DeltaNo),
		CreatorFee: split.CreatorFee, ProtocolFee: split.ProtocolFee, LPFee: split.LPFee,
		PoolLiquidity: -rawPayout,
	}); err != nil {
		return nil, err
	}

	upd := applySellToPosition(pos, side, qty, removedCost, realizedPnL)
	if err := e.ledger.UpdatePositionShares(ctx, tx, pos.ID, upd); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		ID: uuid.New(), UserID: req.UserID, MarketID: market.ID, OptionID: option.ID,
		Side: side, IsBuy: false, Quantity: qty, TotalCost: rawPayout,
		ProtocolFee: split.ProtocolFee, CreatorFee: split.CreatorFee, LPFee: split.LPFee,
		ClientOrderID: req.ClientOrderID, CreatedAt: now,
	}
	if err := e.ledger.InsertTrade(ctx, tx, trade); err != nil {
		return nil, err
	}

	yp, np, err := lmsrPrices(newYes, newNo, market.LiquidityParameter)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.InsertPriceHistoryPoint(ctx, tx, models.PriceHistoryPoint{OptionID: option.ID, Timestamp: now, YesPrice: yp, NoPrice: np}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitAll(trade, yp, np, newYes, newNo, upd, wallet.BalanceUSDC+netPayout)

	return &TradeResult{Trade: trade, RawAmount: rawPayout, Fees: split, NewYesPrice: yp, NewNoPrice: np}, nil
}

// ClaimResult is returned by Claim.
type ClaimResult struct {
	Payout      int64
	RealizedPnL int64
}

// Claim executes spec.md §4.5.3.
func (e *Engine) Claim(ctx context.Context, userID, marketID, optionID uuid.UUID) (*ClaimResult, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	option, err := e.ledger.GetOption(ctx, tx, optionID)
	if err != nil {
		return nil, err
	}
	if !option.IsResolved || option.WinningSide == models.SideNone {
		return nil, apperr.Preconditionf("option is not resolved")
	}

	pos, err := e.ledger.GetPositionWithLock(ctx, tx, userID, optionID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, apperr.NotFoundf("position not found")
	}
	if pos.IsClaimed {
		return nil, apperr.Conflictf("already claimed")
	}

	winningShares := pos.YesShares
	if option.WinningSide == models.SideNo {
		winningShares = pos.NoShares
	}
	if winningShares <= 0 {
		return nil, apperr.Preconditionf("no winning shares to claim")
	}
	payout := winningShares

	market, err := e.ledger.GetMarketWithLock(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	wallet, err := e.ledger.GetWalletWithLock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if market.SharedPoolLiquidity < payout {
		return nil, apperr.Insufficient("pool_liquidity", market.SharedPoolLiquidity, payout)
	}

	realizedPnL := payout - (pos.TotalYesCost + pos.TotalNoCost)

	if err := e.ledger.UpdateMarketStats(ctx, tx, market.ID, ledger.MarketStatsDelta{PoolLiquidity: -payout}); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateWalletBalance(ctx, tx, wallet.ID, wallet.BalanceUSDC+payout); err != nil {
		return nil, err
	}
	upd := ledger.PositionUpdate{
		YesShares: 0, NoShares: 0, TotalYesCost: 0, TotalNoCost: 0,
		AvgYesPrice: 0, AvgNoPrice: 0, RealizedPnL: pos.RealizedPnL + realizedPnL, IsClaimed: true,
	}
	if err := e.ledger.UpdatePositionShares(ctx, tx, pos.ID, upd); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitPositionUpdate(userID, optionID, 0, 0, upd.RealizedPnL)
	e.emitter.EmitBalanceUpdate(userID, wallet.BalanceUSDC+payout)

	return &ClaimResult{Payout: payout, RealizedPnL: realizedPnL}, nil
}

func lmsrPrices(yes, no, b int64) (int64, int64, error) {
	yp, err := lmsr.YesPrice(yes, no, b)
	if err != nil {
		return 0, 0, err
	}
	np, err := lmsr.NoPrice(yes, no, b)
	if err != nil {
		return 0, 0, err
	}
	return yp, np, nil
}

func applyBuyToPosition(pos *models.UserPosition, side models.Side, qty, rawCost int64) ledger.PositionUpdate {
	if side == models.SideYes {
		pos.YesShares += qty
		pos.TotalYesCost += rawCost
		if pos.YesShares > 0 {
			pos.AvgYesPrice = pos.TotalYesCost * lmsr.Precision / pos.YesShares
		}
	} else {
		pos.NoShares += qty
		pos.TotalNoCost += rawCost
		if pos.NoShares > 0 {
			pos.AvgNoPrice = pos.TotalNoCost * lmsr.Precision / pos.NoShares
		}
	}
	return ledger.PositionUpdate{
		YesShares: pos.YesShares, NoShares: pos.NoShares,
		TotalYesCost: pos.TotalYesCost, TotalNoCost: pos.TotalNoCost,
		AvgYesPrice: pos.AvgYesPrice, AvgNoPrice: pos.AvgNoPrice,
		RealizedPnL: pos.RealizedPnL, IsClaimed: pos.IsClaimed,
	}
}

func applySellToPosition(pos *models.UserPosition, side models.Side, qty, removedCost, realizedPnLDelta int64) ledger.PositionUpdate {
	if side == models.SideYes {
		pos.YesShares -= qty
		pos.TotalYesCost -= removedCost
		if pos.TotalYesCost < 0 || pos.YesShares == 0 {
			pos.TotalYesCost = 0
		}
		if pos.YesShares > 0 {
			pos.AvgYesPrice = pos.TotalYesCost * lmsr.Precision / pos.YesShares
		} else {
			pos.AvgYesPrice = 0
		}
	} else {
		pos.NoShares -= qty
		pos.TotalNoCost -= removedCost
		if pos.TotalNoCost < 0 || pos.NoShares == 0 {
			pos.TotalNoCost = 0
		}
		if pos.NoShares > 0 {
			pos.AvgNoPrice = pos.TotalNoCost * lmsr.Precision / pos.NoShares
		} else {
			pos.AvgNoPrice = 0
		}
	}
	pos.RealizedPnL += realizedPnLDelta
	return ledger.PositionUpdate{
		YesShares: pos.YesShares, NoShares: pos.NoShares,
		TotalYesCost: pos.TotalYesCost, TotalNoCost: pos.TotalNoCost,
		AvgYesPrice: pos.AvgYesPrice, AvgNoPrice: pos.AvgNoPrice,
		RealizedPnL: pos.RealizedPnL, IsClaimed: pos.IsClaimed,
	}
}

func (e *Engine) emitAll(t *models.Trade, yesPrice, noPrice, yesQty, noQty int64, pos ledger.PositionUpdate, balance int64) {
	at := time.Now()
	e.emitter.EmitPriceUpdate(t.OptionID, yesPrice, noPrice, yesQty, noQty, at)
	e.emitter.EmitTradeCreated(t)
	e.emitter.EmitPositionUpdate(t.UserID, t.OptionID, pos.YesShares, pos.NoShares, pos.RealizedPnL)
	e.emitter.EmitBalanceUpdate(t.UserID, balance)
}
