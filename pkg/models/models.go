// Package models holds the persistent entities of the moodring trading core:
// markets, options, wallets, positions, trades, and the comment subsystem.
// All monetary and share fields are non-negative integers in micro-units
// (1 unit = 1_000_000 micro-units); PRECISION-scaled prices use the same
// fixed point.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ResolutionMode names which authority resolves a market's options.
type ResolutionMode string

const (
	ResolutionOracle    ResolutionMode = "ORACLE"
	ResolutionAuthority ResolutionMode = "AUTHORITY"
	ResolutionOpinion   ResolutionMode = "OPINION"
)

// Side identifies YES/NO for trades, positions, and winning outcomes.
type Side int16

const (
	SideNone Side = 0
	SideYes  Side = 1
	SideNo   Side = 2
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	default:
		return "NONE"
	}
}

// Market is the top-level tradable entity: a question with one or more
// Options sharing a single collateral pool.
type Market struct {
	ID                          uuid.UUID      `json:"id"`
	CreatorID                   uuid.UUID      `json:"creatorId"`
	Question                    string         `json:"question"`
	Description                 string         `json:"description"`
	Category                    string         `json:"category,omitempty"`
	ImageURL                    string         `json:"imageUrl,omitempty"`
	ExpiresAt                   time.Time      `json:"expiresAt"`
	IsBinary                    bool           `json:"isBinary"`
	IsInitialized               bool           `json:"isInitialized"`
	IsResolved                  bool           `json:"isResolved"`
	LiquidityParameter          int64          `json:"liquidityParameter"` // b, scaled by PRECISION
	SharedPoolLiquidity         int64          `json:"sharedPoolLiquidity"`
	TotalVolume                 int64          `json:"totalVolume"`
	TotalOpenInterest           int64          `json:"totalOpenInterest"`
	CreatorFeesCollected        int64          `json:"creatorFeesCollected"`
	LifetimeCreatorFeesGenerated int64         `json:"lifetimeCreatorFeesGenerated"`
	ProtocolFeesCollected       int64          `json:"protocolFeesCollected"`
	AccumulatedLPFees           int64          `json:"accumulatedLpFees"`
	ResolutionMode              ResolutionMode `json:"resolutionMode"`
	ResolutionSource            string         `json:"resolutionSource,omitempty"`
	CreatedAt                   time.Time      `json:"createdAt"`
}

// DisputeState is an option's position in the §4.7 resolution state machine.
type DisputeState string

const (
	StateOpen            DisputeState = "OPEN"
	StateAwaitingDispute DisputeState = "AWAITING_DISPUTE"
	StateUnderReview     DisputeState = "UNDER_REVIEW"
	StateSettled         DisputeState = "SETTLED"
)

// Option is one independent YES/NO outcome inventory owned by a Market.
type Option struct {
	ID              uuid.UUID    `json:"id"`
	MarketID        uuid.UUID    `json:"marketId"`
	Label           string       `json:"label"`
	YesQuantity     int64        `json:"yesQuantity"`
	NoQuantity      int64        `json:"noQuantity"`
	IsResolved      bool         `json:"isResolved"`
	WinningSide     Side         `json:"winningSide"`
	DisputeState    DisputeState `json:"disputeState"`
	DisputeDeadline *time.Time   `json:"disputeDeadline,omitempty"`
}

// DisputeStatus is the outcome ledger entry for one filed dispute.
type DisputeStatus string

const (
	DisputeFiled      DisputeStatus = "FILED"
	DisputeUpheld     DisputeStatus = "UPHELD"
	DisputeOverturned DisputeStatus = "OVERTURNED"
)

// Dispute is one user's bonded challenge against an AUTHORITY resolution.
type Dispute struct {
	ID         uuid.UUID     `json:"id"`
	OptionID   uuid.UUID     `json:"optionId"`
	DisputerID uuid.UUID     `json:"disputerId"`
	BondAmount int64         `json:"bondAmount"`
	Status     DisputeStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	DecidedAt  *time.Time    `json:"decidedAt,omitempty"`
}

// Wallet holds a single user's collateral balance.
type Wallet struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	BalanceUSDC int64     `json:"balanceUsdc"`
}

// UserPosition is one user's inventory and cost basis in one Option.
type UserPosition struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	OptionID     uuid.UUID `json:"optionId"`
	YesShares    int64     `json:"yesShares"`
	NoShares     int64     `json:"noShares"`
	TotalYesCost int64     `json:"totalYesCost"`
	TotalNoCost  int64     `json:"totalNoCost"`
	AvgYesPrice  int64     `json:"avgYesPrice"`
	AvgNoPrice   int64     `json:"avgNoPrice"`
	RealizedPnL  int64     `json:"realizedPnl"`
	IsClaimed    bool      `json:"isClaimed"`
}

// LpPosition is one user's proportional claim on a Market's residual pool.
type LpPosition struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"userId"`
	MarketID        uuid.UUID `json:"marketId"`
	Shares          int64     `json:"shares"`
	DepositedAmount int64     `json:"depositedAmount"`
	CurrentValue    int64     `json:"currentValue"`
	ClaimableValue  int64     `json:"claimableValue"`
}

// Trade is an append-only audit record of a single buy or sell.
type Trade struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"userId"`
	MarketID      uuid.UUID  `json:"marketId"`
	OptionID      uuid.UUID  `json:"optionId"`
	Side          Side       `json:"side"`
	IsBuy         bool       `json:"isBuy"`
	Quantity      int64      `json:"quantity"`
	TotalCost     int64      `json:"totalCost"`
	ProtocolFee   int64      `json:"protocolFee"`
	CreatorFee    int64      `json:"creatorFee"`
	LPFee         int64      `json:"lpFee"`
	ClientOrderID *uuid.UUID `json:"clientOrderId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// SuspiciousTrade is an append-only record produced by the risk controller.
type SuspiciousTrade struct {
	ID                   uuid.UUID `json:"id"`
	TradeID              *uuid.UUID `json:"tradeId,omitempty"`
	UserID               uuid.UUID `json:"userId"`
	MarketID             uuid.UUID `json:"marketId"`
	OptionID             uuid.UUID `json:"optionId"`
	DetectionReason      string    `json:"detectionReason"`
	DetectionMetadata    string    `json:"detectionMetadata"` // JSON-encoded
	RiskScore            int       `json:"riskScore"`
	AutomatedActionTaken string    `json:"automatedActionTaken"`
	CreatedAt            time.Time `json:"createdAt"`
}

// PriceHistoryPoint is one appended sample of a price_history row.
type PriceHistoryPoint struct {
	OptionID  uuid.UUID `json:"optionId"`
	Timestamp time.Time `json:"timestamp"`
	YesPrice  int64     `json:"yesPrice"`
	NoPrice   int64     `json:"noPrice"`
}

// TimeRange buckets price_history queries.
type TimeRange string

const (
	Range1H  TimeRange = "1H"
	Range24H TimeRange = "24H"
	Range7D  TimeRange = "7D"
	Range30D TimeRange = "30D"
	RangeAll TimeRange = "ALL"
)

// VoteState is the per-(user,comment) ledger entry.
type VoteState int16

const (
	VoteNone VoteState = 0
	VoteUp   VoteState = 1
	VoteDown VoteState = 2
)

// Comment is one node in a market's one-level discussion thread.
type Comment struct {
	ID         uuid.UUID  `json:"id"`
	MarketID   uuid.UUID  `json:"marketId"`
	ParentID   *uuid.UUID `json:"parentId,omitempty"`
	AuthorID   uuid.UUID  `json:"authorId"`
	Content    string     `json:"content"`
	Upvotes    int        `json:"upvotes"`
	Downvotes  int        `json:"downvotes"`
	ReplyCount int        `json:"replyCount"`
	CreatedAt  time.Time  `json:"createdAt"`
}
