package risk

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/moodring-exchange/core-engine/internal/config"
	"github.com/moodring-exchange/core-engine/internal/ledger"
)

// fakeRow hands back a fixed sum for the one SELECT SUM(...) circuitBreaker issues.
type fakeRow struct{ sum int64 }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.sum
	return nil
}

// fakeQuerier implements ledger.Querier with a constant circuit-breaker sum,
// enough surface to exercise Controller.circuitBreaker without a database.
type fakeQuerier struct{ sum int64 }

func (f fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (f fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (f fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{sum: f.sum}
}

func newTestController() *Controller {
	return &Controller{
		cfg: config.RiskConfig{
			SuspiciousNotionalUnits:         50_000_000_000,
			CircuitBreakerThreshold:         500_000_000_000,
			CircuitBreakerWindowSec:         3600,
			MaxMarketVolatilityThresholdBps: 500,
		},
		ledger: ledger.New(),
	}
}

func TestCircuitBreakerFiresWhenWindowSumMeetsThreshold(t *testing.T) {
	c := newTestController()
	tc := TradeContext{MarketID: uuid.New(), NotionalUnits: 1_000_000_000}
	q := fakeQuerier{sum: 499_000_000_000} // plus this trade's notional = 500_000_000_000, meets threshold
	f, ok, err := c.circuitBreaker(context.Background(), q, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected circuit breaker to fire when window sum meets threshold")
	}
	if f.DetectionReason != "circuit_breaker" || f.RiskScore != 100 {
		t.Fatalf("finding = %+v, want circuit_breaker/100", f)
	}
}

func TestCircuitBreakerDoesNotFireBelowThreshold(t *testing.T) {
	c := newTestController()
	tc := TradeContext{MarketID: uuid.New(), NotionalUnits: 1_000_000_000}
	q := fakeQuerier{sum: 100_000_000_000}
	_, ok, err := c.circuitBreaker(context.Background(), q, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no finding below threshold")
	}
}

func TestSuspiciousNotionalBelowThresholdDoesNotFire(t *testing.T) {
	c := newTestController()
	if _, ok := c.suspiciousNotional(TradeContext{NotionalUnits: 49_999_999_999}); ok {
		t.Fatal("expected no finding below threshold")
	}
}

func TestSuspiciousNotionalScoreFormula(t *testing.T) {
	c := newTestController()
	// risk_score = min(100, floor(50*amount/threshold))
	f, ok := c.suspiciousNotional(TradeContext{NotionalUnits: 50_000_000_000})
	if !ok {
		t.Fatal("expected a finding at exactly the threshold")
	}
	if f.DetectionReason != "suspicious_notional" {
		t.Fatalf("detection reason = %q, want suspicious_notional", f.DetectionReason)
	}
	if f.RiskScore != 50 {
		t.Fatalf("risk score = %d, want 50", f.RiskScore)
	}

	f, ok = c.suspiciousNotional(TradeContext{NotionalUnits: 200_000_000_000})
	if !ok || f.RiskScore != 100 {
		t.Fatalf("risk score = %d, ok=%v, want 100 clamped", f.RiskScore, ok)
	}
}

func TestMaturityMultiplierTable(t *testing.T) {
	cases := []struct {
		poolSize, tradeSize, want int64
	}{
		{tradeSize: 100, poolSize: 500, want: 5},    // < 10x
		{tradeSize: 100, poolSize: 2000, want: 3},   // < 50x
		{tradeSize: 100, poolSize: 7000, want: 2},   // < 100x
		{tradeSize: 100, poolSize: 20000, want: 1},  // >= 100x
		{tradeSize: 0, poolSize: 1000, want: 1},     // guard divide-by-zero shape
	}
	for _, tc := range cases {
		got := maturityMultiplier(tc.poolSize, tc.tradeSize)
		if got != tc.want {
			t.Errorf("maturityMultiplier(%d, %d) = %d, want %d", tc.poolSize, tc.tradeSize, got, tc.want)
		}
	}
}

func TestVolatilityGateCrossesThreshold(t *testing.T) {
	c := newTestController()
	tc := TradeContext{
		PriceBefore:    100_000,
		PriceAfter:     106_000,
		PoolSizeBefore: 20_000,
		TradeSize:      100, // pool is >=100x trade size -> multiplier 1 -> threshold 500bps
	}
	// volatility_bps = floor(10000*|106000-100000|/100000) = 600, above the 500bps threshold
	f, ok := c.volatilityGate(tc)
	if !ok {
		t.Fatal("expected volatility gate to trigger")
	}
	if f.DetectionReason != "volatility_gate" {
		t.Fatalf("detection reason = %q, want volatility_gate", f.DetectionReason)
	}
}

func TestVolatilityGateBelowThresholdDoesNotFire(t *testing.T) {
	c := newTestController()
	tc := TradeContext{
		PriceBefore:    100_000,
		PriceAfter:     100_200, // 20 bps move
		PoolSizeBefore: 20_000,
		TradeSize:      100,
	}
	if _, ok := c.volatilityGate(tc); ok {
		t.Fatal("expected no finding for a small price move")
	}
}

func TestVolatilityGateWidensThresholdForThinPool(t *testing.T) {
	c := newTestController()
	// Same 600bps move as TestVolatilityGateCrossesThreshold; thin pool (< 10x trade size)
	// multiplies threshold by 5 (2500bps), so it should NOT trigger even though the base
	// threshold (500bps) would have.
	tc := TradeContext{
		PriceBefore:    100_000,
		PriceAfter:     106_000,
		PoolSizeBefore: 500,
		TradeSize:      100,
	}
	if _, ok := c.volatilityGate(tc); ok {
		t.Fatal("expected thin-pool multiplier to widen the threshold past this move")
	}
}
