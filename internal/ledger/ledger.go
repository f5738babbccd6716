// Package ledger is the stateless façade every mutating operation in the
// trading core goes through. It owns nothing; every method takes a Querier
// (either a *pgxpool.Pool for plain reads or a pgx.Tx for the mutating
// paths) and issues SELECT ... FOR UPDATE reads in the canonical lock order
// markets -> market_options -> wallets -> user_positions, so two concurrent
// trades can never deadlock against each other.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/moodring-exchange/core-engine/internal/apperr"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so callers that
// only read can skip opening a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger has no fields; it is safe for concurrent use because all state
// lives in Postgres, guarded by row locks taken per-call.
type Ledger struct{}

func New() *Ledger { return &Ledger{} }

func wrapNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("%s not found", what)
	}
	return apperr.Internalf("%s: %v", what, err)
}

// GetMarketWithLock locks and returns a market row. Callers must hold the
// enclosing transaction for the duration of the mutation.
func (l *Ledger) GetMarketWithLock(ctx context.Context, q Querier, marketID uuid.UUID) (*models.Market, error) {
	const query = `
		SELECT id, creator_id, question, description, category, image_url, expires_at,
		       is_binary, is_initialized, is_resolved, liquidity_parameter, shared_pool_liquidity,
		       total_volume, total_open_interest, creator_fees_collected, lifetime_creator_fees_generated,
		       protocol_fees_collected, accumulated_lp_fees, resolution_mode, resolution_source, created_at
		FROM markets WHERE id = $1 FOR UPDATE`
	m := &models.Market{}
	err := q.QueryRow(ctx, query, marketID).Scan(
		&m.ID, &m.CreatorID, &m.Question, &m.Description, &m.Category, &m.ImageURL, &m.ExpiresAt,
		&m.IsBinary, &m.IsInitialized, &m.IsResolved, &m.LiquidityParameter, &m.SharedPoolLiquidity,
		&m.TotalVolume, &m.TotalOpenInterest, &m.CreatorFeesCollected, &m.LifetimeCreatorFeesGenerated,
		&m.ProtocolFeesCollected, &m.AccumulatedLPFees, &m.ResolutionMode, &m.ResolutionSource, &m.CreatedAt,
	)
	if err != nil {
		return nil, wrapNotFound(err, "market")
	}
	return m, nil
}

// GetMarket reads a market at read-committed isolation, without a row lock.
// Used by read-only surfaces (price lookups, idempotent-replay responses)
// that must never participate in the write path's lock order.
func (l *Ledger) GetMarket(ctx context.Context, q Querier, marketID uuid.UUID) (*models.Market, error) {
	const query = `
		SELECT id, creator_id, question, description, category, image_url, expires_at,
		       is_binary, is_initialized, is_resolved, liquidity_parameter, shared_pool_liquidity,
		       total_volume, total_open_interest, creator_fees_collected, lifetime_creator_fees_generated,
		       protocol_fees_collected, accumulated_lp_fees, resolution_mode, resolution_source, created_at
		FROM markets WHERE id = $1`
	m := &models.Market{}
	err := q.QueryRow(ctx, query, marketID).Scan(
		&m.ID, &m.CreatorID, &m.Question, &m.Description, &m.Category, &m.ImageURL, &m.ExpiresAt,
		&m.IsBinary, &m.IsInitialized, &m.IsResolved, &m.LiquidityParameter, &m.SharedPoolLiquidity,
		&m.TotalVolume, &m.TotalOpenInterest, &m.CreatorFeesCollected, &m.LifetimeCreatorFeesGenerated,
		&m.ProtocolFeesCollected, &m.AccumulatedLPFees, &m.ResolutionMode, &m.ResolutionSource, &m.CreatedAt,
	)
	if err != nil {
		return nil, wrapNotFound(err, "market")
	}
	return m, nil
}

// GetOptionWithLock locks and returns one option row.
func (l *Ledger) GetOptionWithLock(ctx context.Context, q Querier, optionID uuid.UUID) (*models.Option, error) {
	const query = `
		SELECT id, market_id, label, yes_quantity, no_quantity, is_resolved, winning_side, dispute_state, dispute_deadline
		FROM market_options WHERE id = $1 FOR UPDATE`
	o := &models.Option{}
	err := q.QueryRow(ctx, query, optionID).Scan(
		&o.ID, &o.MarketID, &o.Label, &o.YesQuantity, &o.NoQuantity, &o.IsResolved, &o.WinningSide, &o.DisputeState, &o.DisputeDeadline,
	)
	if err != nil {
		return nil, wrapNotFound(err, "option")
	}
	return o, nil
}

// GetOption reads an option at read-committed isolation, without a row
// lock. Safe for the claim path: a resolved option is immutable post-commit
// except for the position rows claiming against it, which claim locks
// separately.
func (l *Ledger) GetOption(ctx context.Context, q Querier, optionID uuid.UUID) (*models.Option, error) {
	const query = `
		SELECT id, market_id, label, yes_quantity, no_quantity, is_resolved, winning_side, dispute_state, dispute_deadline
		FROM market_options WHERE id = $1`
	o := &models.Option{}
	err := q.QueryRow(ctx, query, optionID).Scan(
		&o.ID, &o.MarketID, &o.Label, &o.YesQuantity, &o.NoQuantity, &o.IsResolved, &o.WinningSide, &o.DisputeState, &o.DisputeDeadline,
	)
	if err != nil {
		return nil, wrapNotFound(err, "option")
	}
	return o, nil
}

// GetOptionsForMarketWithLock locks every option belonging to a market, in
// id order, so a multi-option resolution never locks siblings out of order.
func (l *Ledger) GetOptionsForMarketWithLock(ctx context.Context, q Querier, marketID uuid.UUID) ([]*models.Option, error) {
	const query = `
		SELECT id, market_id, label, yes_quantity, no_quantity, is_resolved, winning_side, dispute_state, dispute_deadline
		FROM market_options WHERE market_id = $1 ORDER BY id FOR UPDATE`
	rows, err := q.Query(ctx, query, marketID)
	if err != nil {
		return nil, apperr.Internalf("list options: %v", err)
	}
	defer rows.Close()
	var out []*models.Option
	for rows.Next() {
		o := &models.Option{}
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Label, &o.YesQuantity, &o.NoQuantity, &o.IsResolved, &o.WinningSide, &o.DisputeState, &o.DisputeDeadline); err != nil {
			return nil, apperr.Internalf("scan option: %v", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetWalletWithLock locks and returns a user's wallet, creating one with a
// zero balance on first touch (a wallet is implicit until a user trades).
func (l *Ledger) GetWalletWithLock(ctx context.Context, q Querier, userID uuid.UUID) (*models.Wallet, error) {
	const query = `
		INSERT INTO wallets (id, user_id, balance_usdc) VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := q.Exec(ctx, query, uuid.New(), userID); err != nil {
		return nil, apperr.Internalf("ensure wallet: %v", err)
	}
	const sel = `SELECT id, user_id, balance_usdc FROM wallets WHERE user_id = $1 FOR UPDATE`
	w := &models.Wallet{}
	if err := q.QueryRow(ctx, sel, userID).Scan(&w.ID, &w.UserID, &w.BalanceUSDC); err != nil {
		return nil, wrapNotFound(err, "wallet")
	}
	return w, nil
}

// GetPositionWithLock locks a user's position in one option. It returns
// (nil, nil) when the user has never traded this option.
func (l *Ledger) GetPositionWithLock(ctx context.Context, q Querier, userID, optionID uuid.UUID) (*models.UserPosition, error) {
	const query = `
		SELECT id, user_id, option_id, yes_shares, no_shares, total_yes_cost, total_no_cost,
		       avg_yes_price, avg_no_price, realized_pnl, is_claimed
		FROM user_positions WHERE user_id = $1 AND option_id = $2 FOR UPDATE`
	p := &models.UserPosition{}
	err := q.QueryRow(ctx, query, userID, optionID).Scan(
		&p.ID, &p.UserID, &p.OptionID, &p.YesShares, &p.NoShares, &p.TotalYesCost, &p.TotalNoCost,
		&p.AvgYesPrice, &p.AvgNoPrice, &p.RealizedPnL, &p.IsClaimed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("load position: %v", err)
	}
	return p, nil
}

// GetLpPositionWithLock locks a user's LP position in a market, returning
// (nil, nil) if they have never added liquidity.
func (l *Ledger) GetLpPositionWithLock(ctx context.Context, q Querier, userID, marketID uuid.UUID) (*models.LpPosition, error) {
	const query = `
		SELECT id, user_id, market_id, shares, deposited_amount, current_value, claimable_value
		FROM lp_positions WHERE user_id = $1 AND market_id = $2 FOR UPDATE`
	p := &models.LpPosition{}
	err := q.QueryRow(ctx, query, userID, marketID).Scan(
		&p.ID, &p.UserID, &p.MarketID, &p.Shares, &p.DepositedAmount, &p.CurrentValue, &p.ClaimableValue,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("load lp position: %v", err)
	}
	return p, nil
}

// TotalLpShares sums every LP position's shares for a market.
func (l *Ledger) TotalLpShares(ctx context.Context, q Querier, marketID uuid.UUID) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(shares), 0) FROM lp_positions WHERE market_id = $1`, marketID).Scan(&total)
	if err != nil {
		return 0, apperr.Internalf("sum lp shares: %v", err)
	}
	return total, nil
}

// OutstandingRedeemableShares sums unclaimed winning-side shares across
// every option of a market, the quantity spec.md §4.6 calls
// outstanding_redeemable.
func (l *Ledger) OutstandingRedeemableShares(ctx context.Context, q Querier, marketID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(CASE WHEN o.winning_side = 1 THEN p.yes_shares WHEN o.winning_side = 2 THEN p.no_shares ELSE 0 END), 0)
		FROM user_positions p
		JOIN market_options o ON o.id = p.option_id
		WHERE o.market_id = $1 AND o.is_resolved AND NOT p.is_claimed`
	var total int64
	if err := q.QueryRow(ctx, query, marketID).Scan(&total); err != nil {
		return 0, apperr.Internalf("sum outstanding redeemable shares: %v", err)
	}
	return total, nil
}

// UpsertLpPosition writes an LP position's full state, inserting on first
// touch.
func (l *Ledger) UpsertLpPosition(ctx context.Context, q Querier, lp *models.LpPosition) error {
	const query = `
		INSERT INTO lp_positions (id, user_id, market_id, shares, deposited_amount, current_value, claimable_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, market_id) DO UPDATE SET
			shares = EXCLUDED.shares, deposited_amount = EXCLUDED.deposited_amount,
			current_value = EXCLUDED.current_value, claimable_value = EXCLUDED.claimable_value`
	_, err := q.Exec(ctx, query, lp.ID, lp.UserID, lp.MarketID, lp.Shares, lp.DepositedAmount, lp.CurrentValue, lp.ClaimableValue)
	if err != nil {
		return apperr.Internalf("upsert lp position: %v", err)
	}
	return nil
}

// UpdateWalletBalance sets a wallet's absolute new balance.
func (l *Ledger) UpdateWalletBalance(ctx context.Context, q Querier, walletID uuid.UUID, newBalance int64) error {
	_, err := q.Exec(ctx, `UPDATE wallets SET balance_usdc = $1 WHERE id = $2`, newBalance, walletID)
	if err != nil {
		return apperr.Internalf("update wallet balance: %v", err)
	}
	return nil
}

// UpdateOptionQuantities sets an option's absolute new yes/no inventory.
func (l *Ledger) UpdateOptionQuantities(ctx context.Context, q Querier, optionID uuid.UUID, yes, no int64) error {
	_, err := q.Exec(ctx, `UPDATE market_options SET yes_quantity = $1, no_quantity = $2 WHERE id = $3`, yes, no, optionID)
	if err != nil {
		return apperr.Internalf("update option quantities: %v", err)
	}
	return nil
}

// MarketStatsDelta is applied additively to a market's aggregate counters.
type MarketStatsDelta struct {
	Volume        int64
	OpenInterest  int64
	CreatorFee    int64
	ProtocolFee   int64
	LPFee         int64
	PoolLiquidity int64
}

// UpdateMarketStats applies a delta to a market's running totals. The pool
// and open-interest columns use GREATEST(0, ...) saturating arithmetic per
// spec.md §4.3 to defend invariants I1/I3 against rounding drift.
func (l *Ledger) UpdateMarketStats(ctx context.Context, q Querier, marketID uuid.UUID, d MarketStatsDelta) error {
	const query = `
		UPDATE markets SET
			total_volume = total_volume + $1,
			total_open_interest = GREATEST(0, total_open_interest + $2),
			creator_fees_collected = creator_fees_collected + $3,
			lifetime_creator_fees_generated = lifetime_creator_fees_generated + $3,
			protocol_fees_collected = protocol_fees_collected + $4,
			accumulated_lp_fees = accumulated_lp_fees + $5,
			shared_pool_liquidity = GREATEST(0, shared_pool_liquidity + $6)
		WHERE id = $7`
	_, err := q.Exec(ctx, query, d.Volume, d.OpenInterest, d.CreatorFee, d.ProtocolFee, d.LPFee, d.PoolLiquidity, marketID)
	if err != nil {
		return apperr.Internalf("update market stats: %v", err)
	}
	return nil
}

// UpsertUserPosition creates a zero position row if one doesn't exist yet,
// returning its id.
func (l *Ledger) UpsertUserPosition(ctx context.Context, q Querier, userID, optionID uuid.UUID) (uuid.UUID, error) {
	const query = `
		INSERT INTO user_positions (id, user_id, option_id, yes_shares, no_shares, total_yes_cost, total_no_cost, avg_yes_price, avg_no_price, realized_pnl, is_claimed)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, 0, 0, false)
		ON CONFLICT (user_id, option_id) DO NOTHING`
	id := uuid.New()
	if _, err := q.Exec(ctx, query, id, userID, optionID); err != nil {
		return uuid.Nil, apperr.Internalf("upsert position: %v", err)
	}
	var existing uuid.UUID
	if err := q.QueryRow(ctx, `SELECT id FROM user_positions WHERE user_id = $1 AND option_id = $2`, userID, optionID).Scan(&existing); err != nil {
		return uuid.Nil, apperr.Internalf("reload position id: %v", err)
	}
	return existing, nil
}

// PositionUpdate is the full replacement state written back after a trade
// mutates a position (the trade engine computes new totals; the ledger just
// persists them).
type PositionUpdate struct {
	YesShares    int64
	NoShares     int64
	TotalYesCost int64
	TotalNoCost  int64
	AvgYesPrice  int64
	AvgNoPrice   int64
	RealizedPnL  int64
	IsClaimed    bool
}

// UpdatePositionShares writes a position's full new state.
func (l *Ledger) UpdatePositionShares(ctx context.Context, q Querier, positionID uuid.UUID, u PositionUpdate) error {
	const query = `
		UPDATE user_positions SET
			yes_shares = $1, no_shares = $2, total_yes_cost = $3, total_no_cost = $4,
			avg_yes_price = $5, avg_no_price = $6, realized_pnl = $7, is_claimed = $8
		WHERE id = $9`
	_, err := q.Exec(ctx, query, u.YesShares, u.NoShares, u.TotalYesCost, u.TotalNoCost, u.AvgYesPrice, u.AvgNoPrice, u.RealizedPnL, u.IsClaimed, positionID)
	if err != nil {
		return apperr.Internalf("update position: %v", err)
	}
	return nil
}

// InsertTrade appends an immutable trade audit row.
func (l *Ledger) InsertTrade(ctx context.Context, q Querier, t *models.Trade) error {
	const query = `
		INSERT INTO trades (id, user_id, market_id, option_id, side, is_buy, quantity, total_cost, protocol_fee, creator_fee, lp_fee, client_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := q.Exec(ctx, query, t.ID, t.UserID, t.MarketID, t.OptionID, t.Side, t.IsBuy, t.Quantity, t.TotalCost, t.ProtocolFee, t.CreatorFee, t.LPFee, t.ClientOrderID, t.CreatedAt)
	if err != nil {
		return apperr.Internalf("insert trade: %v", err)
	}
	return nil
}

// InsertSuspiciousTrade appends a risk-controller finding. Callers treat a
// failure here as non-fatal to the enclosing trade per spec.md §7.
func (l *Ledger) InsertSuspiciousTrade(ctx context.Context, q Querier, s models.SuspiciousTrade) error {
	const query = `
		INSERT INTO suspicious_trades (id, trade_id, user_id, market_id, option_id, detection_reason, detection_metadata, risk_score, automated_action_taken, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := q.Exec(ctx, query, s.ID, s.TradeID, s.UserID, s.MarketID, s.OptionID, s.DetectionReason, s.DetectionMetadata, s.RiskScore, s.AutomatedActionTaken, s.CreatedAt)
	if err != nil {
		return apperr.Internalf("insert suspicious trade: %v", err)
	}
	return nil
}

// SumMarketTradeCostSince sums trades.total_cost for a market since a point
// in time, the query C4's circuit breaker check runs against. Backed by
// idx_trades_market_created.
func (l *Ledger) SumMarketTradeCostSince(ctx context.Context, q Querier, marketID uuid.UUID, since time.Time) (int64, error) {
	const query = `SELECT COALESCE(SUM(total_cost), 0) FROM trades WHERE market_id = $1 AND created_at >= $2`
	var sum int64
	if err := q.QueryRow(ctx, query, marketID, since).Scan(&sum); err != nil {
		return 0, apperr.Internalf("sum market trade cost: %v", err)
	}
	return sum, nil
}

// SumUserCostInMarket sums a user's cost basis (total_yes_cost +
// total_no_cost) across every option of one market, the figure the trade
// engine's per-user/per-market exposure ceiling is checked against.
func (l *Ledger) SumUserCostInMarket(ctx context.Context, q Querier, userID, marketID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(up.total_yes_cost + up.total_no_cost), 0)
		FROM user_positions up
		JOIN market_options mo ON mo.id = up.option_id
		WHERE up.user_id = $1 AND mo.market_id = $2`
	var sum int64
	if err := q.QueryRow(ctx, query, userID, marketID).Scan(&sum); err != nil {
		return 0, apperr.Internalf("sum user cost in market: %v", err)
	}
	return sum, nil
}

// IsTradingPaused reads the global pause flag admins flip in the moodring
// table. A missing row (schema initialized but never written to) means
// trading has never been paused.
func (l *Ledger) IsTradingPaused(ctx context.Context, q Querier) (bool, error) {
	const query = `SELECT trading_paused FROM moodring WHERE id = 1`
	var paused bool
	err := q.QueryRow(ctx, query).Scan(&paused)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperr.Internalf("read trading paused flag: %v", err)
	}
	return paused, nil
}

// InsertPriceHistoryPoint appends one price sample for an option.
func (l *Ledger) InsertPriceHistoryPoint(ctx context.Context, q Querier, p models.PriceHistoryPoint) error {
	const query = `INSERT INTO price_history (option_id, ts, yes_price, no_price) VALUES ($1, $2, $3, $4)`
	_, err := q.Exec(ctx, query, p.OptionID, p.Timestamp, p.YesPrice, p.NoPrice)
	if err != nil {
		return apperr.Internalf("insert price history: %v", err)
	}
	return nil
}

// rangeWindow maps a TimeRange bucket to a lookback duration. RangeAll
// returns false for ok, telling PriceHistory to skip the time filter.
func rangeWindow(r models.TimeRange) (time.Duration, bool) {
	switch r {
	case models.Range1H:
		return time.Hour, true
	case models.Range24H:
		return 24 * time.Hour, true
	case models.Range7D:
		return 7 * 24 * time.Hour, true
	case models.Range30D:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// PriceHistory returns an option's price samples ordered oldest to newest,
// optionally bounded to the lookback window named by rng.
func (l *Ledger) PriceHistory(ctx context.Context, q Querier, optionID uuid.UUID, rng models.TimeRange) ([]models.PriceHistoryPoint, error) {
	var rows pgx.Rows
	var err error
	if window, ok := rangeWindow(rng); ok {
		const query = `SELECT option_id, ts, yes_price, no_price FROM price_history WHERE option_id = $1 AND ts >= $2 ORDER BY ts ASC`
		rows, err = q.Query(ctx, query, optionID, time.Now().Add(-window))
	} else {
		const query = `SELECT option_id, ts, yes_price, no_price FROM price_history WHERE option_id = $1 ORDER BY ts ASC`
		rows, err = q.Query(ctx, query, optionID)
	}
	if err != nil {
		return nil, apperr.Internalf("query price history: %v", err)
	}
	defer rows.Close()

	var points []models.PriceHistoryPoint
	for rows.Next() {
		var p models.PriceHistoryPoint
		if err := rows.Scan(&p.OptionID, &p.Timestamp, &p.YesPrice, &p.NoPrice); err != nil {
			return nil, apperr.Internalf("scan price history: %v", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf("iterate price history: %v", err)
	}
	return points, nil
}

// ErrClientOrderSeen names a replayed client order id. No caller returns it:
// Buy's pre-check via FindTradeByClientOrderID returns the earlier trade
// instead of an error.
var ErrClientOrderSeen = errors.New("client order id already processed")

// UpdateOptionResolution writes an option's full resolution state: winning
// side, resolved flag, state-machine position, and dispute deadline. Claims
// require IsResolved (as well as a non-NONE winning side), so AUTHORITY
// resolutions can set WinningSide ahead of Settled without unblocking payout.
func (l *Ledger) UpdateOptionResolution(ctx context.Context, q Querier, optionID uuid.UUID, winningSide models.Side, isResolved bool, state models.DisputeState, deadline *time.Time) error {
	const query = `
		UPDATE market_options SET
			winning_side = $1, is_resolved = $2, dispute_state = $3, dispute_deadline = $4
		WHERE id = $5`
	_, err := q.Exec(ctx, query, winningSide, isResolved, state, deadline, optionID)
	if err != nil {
		return apperr.Internalf("update option resolution: %v", err)
	}
	return nil
}

// InsertDispute appends a new filed dispute against an option.
func (l *Ledger) InsertDispute(ctx context.Context, q Querier, d *models.Dispute) error {
	const query = `
		INSERT INTO disputes (id, option_id, disputer_id, bond_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.Exec(ctx, query, d.ID, d.OptionID, d.DisputerID, d.BondAmount, d.Status, d.CreatedAt)
	if err != nil {
		return apperr.Internalf("insert dispute: %v", err)
	}
	return nil
}

// GetOpenDisputeWithLock locks the single outstanding FILED dispute against
// an option, if any. Returns (nil, nil) when none is open.
func (l *Ledger) GetOpenDisputeWithLock(ctx context.Context, q Querier, optionID uuid.UUID) (*models.Dispute, error) {
	const query = `
		SELECT id, option_id, disputer_id, bond_amount, status, created_at, decided_at
		FROM disputes WHERE option_id = $1 AND status = $2
		ORDER BY created_at LIMIT 1 FOR UPDATE`
	d := &models.Dispute{}
	err := q.QueryRow(ctx, query, optionID, models.DisputeFiled).Scan(
		&d.ID, &d.OptionID, &d.DisputerID, &d.BondAmount, &d.Status, &d.CreatedAt, &d.DecidedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("load open dispute: %v", err)
	}
	return d, nil
}

// UpdateDisputeDecision records an admin's uphold/overturn verdict.
func (l *Ledger) UpdateDisputeDecision(ctx context.Context, q Querier, disputeID uuid.UUID, status models.DisputeStatus, decidedAt time.Time) error {
	const query = `UPDATE disputes SET status = $1, decided_at = $2 WHERE id = $3`
	_, err := q.Exec(ctx, query, status, decidedAt, disputeID)
	if err != nil {
		return apperr.Internalf("update dispute decision: %v", err)
	}
	return nil
}

// LatestPriceAtOrBefore returns the most recent price_history sample for an
// option at or before the given timestamp. Returns (nil, nil) if none exists.
func (l *Ledger) LatestPriceAtOrBefore(ctx context.Context, q Querier, optionID uuid.UUID, at time.Time) (*models.PriceHistoryPoint, error) {
	const query = `
		SELECT option_id, ts, yes_price, no_price FROM price_history
		WHERE option_id = $1 AND ts <= $2
		ORDER BY ts DESC LIMIT 1`
	p := &models.PriceHistoryPoint{}
	err := q.QueryRow(ctx, query, optionID, at).Scan(&p.OptionID, &p.Timestamp, &p.YesPrice, &p.NoPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("load price snapshot: %v", err)
	}
	return p, nil
}

// CreateMarket inserts a new market row. Markets are created already
// initialized (liquidity_parameter fixed at creation time); trading opens
// as soon as the first AddLiquidity deposit funds the pool.
func (l *Ledger) CreateMarket(ctx context.Context, q Querier, m *models.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator_id, question, description, category, image_url, expires_at,
			is_binary, is_initialized, is_resolved, liquidity_parameter, shared_pool_liquidity,
			total_volume, total_open_interest, creator_fees_collected, lifetime_creator_fees_generated,
			protocol_fees_collected, accumulated_lp_fees, resolution_mode, resolution_source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, FALSE, $9, 0, 0, 0, 0, 0, 0, 0, $10, $11, $12)`
	_, err := q.Exec(ctx, query,
		m.ID, m.CreatorID, m.Question, m.Description, m.Category, m.ImageURL, m.ExpiresAt,
		m.IsBinary, m.LiquidityParameter, m.ResolutionMode, m.ResolutionSource, m.CreatedAt,
	)
	if err != nil {
		return apperr.Internalf("create market: %v", err)
	}
	return nil
}

// CreateOption inserts a new option row, starting with empty inventory.
func (l *Ledger) CreateOption(ctx context.Context, q Querier, o *models.Option) error {
	const query = `
		INSERT INTO market_options (id, market_id, label, yes_quantity, no_quantity, is_resolved, winning_side, dispute_state, dispute_deadline)
		VALUES ($1, $2, $3, 0, 0, FALSE, 0, 'OPEN', NULL)`
	_, err := q.Exec(ctx, query, o.ID, o.MarketID, o.Label)
	if err != nil {
		return apperr.Internalf("create option: %v", err)
	}
	return nil
}

// InsertComment appends a new top-level comment or reply.
func (l *Ledger) InsertComment(ctx context.Context, q Querier, c *models.Comment) error {
	const query = `
		INSERT INTO comments (id, market_id, parent_id, author_id, content, upvotes, downvotes, reply_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)`
	_, err := q.Exec(ctx, query, c.ID, c.MarketID, c.ParentID, c.AuthorID, c.Content, c.CreatedAt)
	if err != nil {
		return apperr.Internalf("insert comment: %v", err)
	}
	return nil
}

// GetCommentWithLock locks and returns a comment row.
func (l *Ledger) GetCommentWithLock(ctx context.Context, q Querier, commentID uuid.UUID) (*models.Comment, error) {
	const query = `
		SELECT id, market_id, parent_id, author_id, content, upvotes, downvotes, reply_count, created_at
		FROM comments WHERE id = $1 FOR UPDATE`
	c := &models.Comment{}
	err := q.QueryRow(ctx, query, commentID).Scan(
		&c.ID, &c.MarketID, &c.ParentID, &c.AuthorID, &c.Content, &c.Upvotes, &c.Downvotes, &c.ReplyCount, &c.CreatedAt,
	)
	if err != nil {
		return nil, wrapNotFound(err, "comment")
	}
	return c, nil
}

// ListCommentsForMarket returns every comment (top-level and replies) for a
// market, oldest first, for an unlocked read.
func (l *Ledger) ListCommentsForMarket(ctx context.Context, q Querier, marketID uuid.UUID) ([]*models.Comment, error) {
	const query = `
		SELECT id, market_id, parent_id, author_id, content, upvotes, downvotes, reply_count, created_at
		FROM comments WHERE market_id = $1 ORDER BY created_at`
	rows, err := q.Query(ctx, query, marketID)
	if err != nil {
		return nil, apperr.Internalf("list comments: %v", err)
	}
	defer rows.Close()
	var out []*models.Comment
	for rows.Next() {
		c := &models.Comment{}
		if err := rows.Scan(&c.ID, &c.MarketID, &c.ParentID, &c.AuthorID, &c.Content, &c.Upvotes, &c.Downvotes, &c.ReplyCount, &c.CreatedAt); err != nil {
			return nil, apperr.Internalf("scan comment: %v", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteRepliesOf removes every reply to a top-level comment, as part of a
// cascading delete.
func (l *Ledger) DeleteRepliesOf(ctx context.Context, q Querier, parentID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM comments WHERE parent_id = $1`, parentID)
	if err != nil {
		return apperr.Internalf("delete replies: %v", err)
	}
	return nil
}

// DeleteComment removes a single comment row.
func (l *Ledger) DeleteComment(ctx context.Context, q Querier, commentID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM comments WHERE id = $1`, commentID)
	if err != nil {
		return apperr.Internalf("delete comment: %v", err)
	}
	return nil
}

// IncrementReplyCount adjusts a parent comment's cached reply_count.
func (l *Ledger) IncrementReplyCount(ctx context.Context, q Querier, parentID uuid.UUID, delta int) error {
	_, err := q.Exec(ctx, `UPDATE comments SET reply_count = GREATEST(0, reply_count + $1) WHERE id = $2`, delta, parentID)
	if err != nil {
		return apperr.Internalf("update reply count: %v", err)
	}
	return nil
}

// UpdateCommentVoteCounts applies signed deltas to a comment's tallies.
func (l *Ledger) UpdateCommentVoteCounts(ctx context.Context, q Querier, commentID uuid.UUID, upDelta, downDelta int) error {
	const query = `UPDATE comments SET upvotes = GREATEST(0, upvotes + $1), downvotes = GREATEST(0, downvotes + $2) WHERE id = $3`
	_, err := q.Exec(ctx, query, upDelta, downDelta, commentID)
	if err != nil {
		return apperr.Internalf("update comment votes: %v", err)
	}
	return nil
}

// GetVote returns a user's current vote on a comment, or VoteNone if they
// have never voted on it.
func (l *Ledger) GetVote(ctx context.Context, q Querier, userID, commentID uuid.UUID) (models.VoteState, error) {
	var state models.VoteState
	err := q.QueryRow(ctx, `SELECT state FROM comment_votes WHERE user_id = $1 AND comment_id = $2`, userID, commentID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.VoteNone, nil
	}
	if err != nil {
		return models.VoteNone, apperr.Internalf("load vote: %v", err)
	}
	return state, nil
}

// SetVote upserts a user's vote state on a comment.
func (l *Ledger) SetVote(ctx context.Context, q Querier, userID, commentID uuid.UUID, state models.VoteState) error {
	const query = `
		INSERT INTO comment_votes (user_id, comment_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, comment_id) DO UPDATE SET state = EXCLUDED.state`
	_, err := q.Exec(ctx, query, userID, commentID, state)
	if err != nil {
		return apperr.Internalf("set vote: %v", err)
	}
	return nil
}

// FindTradeByClientOrderID supports idempotent retries of buy/sell requests.
func (l *Ledger) FindTradeByClientOrderID(ctx context.Context, q Querier, userID uuid.UUID, clientOrderID uuid.UUID) (*models.Trade, error) {
	const query = `
		SELECT id, user_id, market_id, option_id, side, is_buy, quantity, total_cost, protocol_fee, creator_fee, lp_fee, client_order_id, created_at
		FROM trades WHERE user_id = $1 AND client_order_id = $2`
	t := &models.Trade{}
	err := q.QueryRow(ctx, query, userID, clientOrderID).Scan(
		&t.ID, &t.UserID, &t.MarketID, &t.OptionID, &t.Side, &t.IsBuy, &t.Quantity, &t.TotalCost,
		&t.ProtocolFee, &t.CreatorFee, &t.LPFee, &t.ClientOrderID, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("lookup client order: %v", err)
	}
	return t, nil
}
