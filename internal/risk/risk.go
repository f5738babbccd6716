// Package risk implements the advisory-only risk controller: three ordered
// checks (suspicious-notional threshold, circuit breaker, volatility gate)
// that never block a trade. A hit only produces a SuspiciousTrade record;
// the trade itself always completes. The scoring shape (a 0-100 score per
// finding) and the shadow-mode toggle that lets new checks run without
// affecting what gets persisted are both carried over from this engine's
// ancestor transaction-risk scorer.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moodring-exchange/core-engine/internal/config"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// Finding is one triggered check, carrying the detection reason and risk
// score a SuspiciousTrade record is built from.
type Finding struct {
	DetectionReason string
	RiskScore       int // 0-100
}

// Controller runs the three checks against a caller-supplied transaction.
// It holds no state of its own beyond configuration: the circuit breaker's
// "last hour" window is a live query, not an in-memory sample buffer, so
// the controller is safe to share across goroutines and rebuilds nothing
// on restart.
type Controller struct {
	cfg    config.RiskConfig
	ledger *ledger.Ledger
}

func NewController(cfg config.RiskConfig, led *ledger.Ledger) *Controller {
	return &Controller{cfg: cfg, ledger: led}
}

// TradeContext is everything the controller needs to evaluate one trade.
// PriceBefore/PriceAfter are the option's yes-price immediately before and
// after the candidate trade (as computed by C1); PoolSizeBefore is
// yes_quantity+no_quantity before the trade; TradeSize is the quantity of
// shares the trade moves.
type TradeContext struct {
	UserID         uuid.UUID
	MarketID       uuid.UUID
	OptionID       uuid.UUID
	NotionalUnits  int64
	PriceBefore    int64
	PriceAfter     int64
	PoolSizeBefore int64
	TradeSize      int64
	Now            time.Time
}

// Assess runs the three spec.md §4.4 checks in order against tc and returns
// one Finding per triggered check. It queries q for the circuit breaker's
// rolling sum but never writes; callers persist the returned findings (or
// skip persisting under ShadowMode) themselves.
func (c *Controller) Assess(ctx context.Context, q ledger.Querier, tc TradeContext) ([]Finding, error) {
	var findings []Finding

	if f, ok := c.suspiciousNotional(tc); ok {
		findings = append(findings, f)
	}

	f, ok, err := c.circuitBreaker(ctx, q, tc)
	if err != nil {
		return nil, err
	}
	if ok {
		findings = append(findings, f)
	}

	if f, ok := c.volatilityGate(tc); ok {
		findings = append(findings, f)
	}

	return findings, nil
}

// suspiciousNotional implements spec.md §4.4's first check exactly:
// risk_score = min(100, floor(50*amount/threshold)) once amount crosses
// the configured threshold.
func (c *Controller) suspiciousNotional(tc TradeContext) (Finding, bool) {
	threshold := c.cfg.SuspiciousNotionalUnits
	if threshold <= 0 || tc.NotionalUnits < threshold {
		return Finding{}, false
	}
	score := int(50 * tc.NotionalUnits / threshold)
	if score > 100 {
		score = 100
	}
	return Finding{DetectionReason: "suspicious_notional", RiskScore: score}, true
}

// circuitBreaker implements spec.md §4.4's second check exactly: sum
// trades.total_cost for the market over the configured window (the window
// defaults to one hour); if the sum including the candidate trade meets or
// exceeds the threshold, risk_score is fixed at 100.
func (c *Controller) circuitBreaker(ctx context.Context, q ledger.Querier, tc TradeContext) (Finding, bool, error) {
	threshold := c.cfg.CircuitBreakerThreshold
	if threshold <= 0 {
		return Finding{}, false, nil
	}
	since := tc.Now.Add(-time.Duration(c.cfg.CircuitBreakerWindowSec) * time.Second)
	priorSum, err := c.ledger.SumMarketTradeCostSince(ctx, q, tc.MarketID, since)
	if err != nil {
		return Finding{}, false, err
	}
	if priorSum+tc.NotionalUnits < threshold {
		return Finding{}, false, nil
	}
	return Finding{DetectionReason: "circuit_breaker", RiskScore: 100}, true, nil
}

// maturityMultiplier implements spec.md §4.4's maturity-adjusted threshold
// table: a thin pool relative to the trade size widens the threshold
// (large moves in a shallow pool are expected), a deep pool leaves it at 1x.
func maturityMultiplier(poolSize, tradeSize int64) int64 {
	switch {
	case tradeSize <= 0:
		return 1
	case poolSize < 10*tradeSize:
		return 5
	case poolSize < 50*tradeSize:
		return 3
	case poolSize < 100*tradeSize:
		return 2
	default:
		return 1
	}
}

// volatilityGate implements spec.md §4.4's third check exactly:
// volatility_bps = floor(10000*|p_new-p_old|/p_old) against a
// maturity-adjusted threshold. Log only — it still produces a Finding, which
// the caller persists as a SuspiciousTrade record (this controller itself
// writes nothing).
func (c *Controller) volatilityGate(tc TradeContext) (Finding, bool) {
	base := c.cfg.MaxMarketVolatilityThresholdBps
	if base <= 0 || tc.PriceBefore <= 0 {
		return Finding{}, false
	}
	delta := tc.PriceAfter - tc.PriceBefore
	if delta < 0 {
		delta = -delta
	}
	volatilityBps := 10000 * delta / tc.PriceBefore
	threshold := base * maturityMultiplier(tc.PoolSizeBefore, tc.TradeSize)
	if volatilityBps < threshold {
		return Finding{}, false
	}
	score := int(100 * volatilityBps / threshold)
	if score > 100 {
		score = 100
	}
	return Finding{DetectionReason: "volatility_gate", RiskScore: score}, true
}

// ToSuspiciousTrade builds the persisted record for one Finding. Callers
// skip persisting when ShadowMode is set and instead only log — mirroring
// how experimental detectors here used to run against production traffic
// without writing to the production evidence tables.
func ToSuspiciousTrade(tc TradeContext, f Finding) models.SuspiciousTrade {
	return models.SuspiciousTrade{
		ID:                   uuid.New(),
		UserID:               tc.UserID,
		MarketID:             tc.MarketID,
		OptionID:             tc.OptionID,
		DetectionReason:      f.DetectionReason,
		DetectionMetadata:    fmt.Sprintf(`{"riskScore":%d}`, f.RiskScore),
		RiskScore:            f.RiskScore,
		AutomatedActionTaken: "log",
		CreatedAt:            tc.Now,
	}
}
