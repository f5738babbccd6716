// Package realtime is the fanout layer (C8): three keyed hubs — market,
// option, and user — generalizing the teacher's single broadcast Hub so
// each subject gets its own ordered, bounded-buffer stream instead of one
// global firehose. Every Emit* method is called synchronously from the
// component that just committed the mutation, so per-subject ordering
// matches commit order: two trades against the same option can only run
// concurrently if they don't hold the option's row lock at the same time,
// and the lock is held until commit, so their emits never race each other.
package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moodring-exchange/core-engine/pkg/models"
)

// subscriberBuffer bounds how many undelivered events a slow client can
// accumulate before the hub starts dropping its oldest backlog, mirroring
// the teacher's write-deadline-then-disconnect policy but without tearing
// down the connection — a dropped event is recoverable from a later
// PriceUpdate or from an explicit history fetch, so the hub prefers to keep
// the subscriber alive and stale over disconnecting it outright.
const subscriberBuffer = 64

type subscriber struct {
	id uuid.UUID
	ch chan []byte
}

// topic is the set of subscribers for one key (one market, option, or user).
type topic struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*subscriber
}

func newTopic() *topic {
	return &topic{subs: make(map[uuid.UUID]*subscriber)}
}

func (t *topic) subscribe() *subscriber {
	s := &subscriber{id: uuid.New(), ch: make(chan []byte, subscriberBuffer)}
	t.mu.Lock()
	t.subs[s.id] = s
	t.mu.Unlock()
	return s
}

func (t *topic) unsubscribe(s *subscriber) {
	t.mu.Lock()
	delete(t.subs, s.id)
	t.mu.Unlock()
	close(s.ch)
}

// publish pushes data to every subscriber's buffer. A full buffer means the
// subscriber is falling behind; the oldest queued event is dropped to make
// room rather than blocking the publisher or disconnecting the client.
func (t *topic) publish(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		select {
		case s.ch <- data:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- data:
			default:
			}
		}
	}
}

// keyedHub routes events to the topic named by a uuid key, creating topics
// lazily and reaping them once their last subscriber leaves.
type keyedHub struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]*topic
}

func newKeyedHub() *keyedHub {
	return &keyedHub{topics: make(map[uuid.UUID]*topic)}
}

func (h *keyedHub) topicFor(key uuid.UUID) *topic {
	h.mu.RLock()
	t, ok := h.topics[key]
	h.mu.RUnlock()
	if ok {
		return t
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.topics[key]; ok {
		return t
	}
	t = newTopic()
	h.topics[key] = t
	return t
}

// Subscribe returns a channel of encoded events for a key, and an unsubscribe
// function the caller must invoke when the connection closes.
func (h *keyedHub) Subscribe(key uuid.UUID) (<-chan []byte, func()) {
	t := h.topicFor(key)
	s := t.subscribe()
	return s.ch, func() {
		t.unsubscribe(s)
		h.mu.Lock()
		if len(t.subs) == 0 {
			delete(h.topics, key)
		}
		h.mu.Unlock()
	}
}

func (h *keyedHub) Publish(key uuid.UUID, data []byte) {
	h.topicFor(key).publish(data)
}

// Bus is the process-wide fanout: one keyed hub per subject named in
// spec.md §4.8.
type Bus struct {
	Market *keyedHub
	Option *keyedHub
	User   *keyedHub
}

func NewBus() *Bus {
	return &Bus{
		Market: newKeyedHub(),
		Option: newKeyedHub(),
		User:   newKeyedHub(),
	}
}

// envelope wraps every event with a type tag so a single websocket stream
// can carry more than one event shape.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (b *Bus) publishMarket(marketID uuid.UUID, eventType string, data any) {
	b.send(b.Market, marketID, eventType, data)
}

func (b *Bus) publishOption(optionID uuid.UUID, eventType string, data any) {
	b.send(b.Option, optionID, eventType, data)
}

func (b *Bus) publishUser(userID uuid.UUID, eventType string, data any) {
	b.send(b.User, userID, eventType, data)
}

func (b *Bus) send(hub *keyedHub, key uuid.UUID, eventType string, data any) {
	raw, err := json.Marshal(envelope{Type: eventType, Data: data})
	if err != nil {
		log.Printf("realtime: marshal %s event: %v", eventType, err)
		return
	}
	hub.Publish(key, raw)
}

// Event payload shapes, field-for-field per spec.md §4.8.

type PriceUpdatePayload struct {
	OptionID    uuid.UUID `json:"optionId"`
	YesPrice    int64     `json:"yesPrice"`
	NoPrice     int64     `json:"noPrice"`
	YesQuantity int64     `json:"yesQuantity"`
	NoQuantity  int64     `json:"noQuantity"`
	Timestamp   time.Time `json:"timestamp"`
}

type TradeCreatedPayload struct {
	TradeID   uuid.UUID   `json:"tradeId"`
	MarketID  uuid.UUID   `json:"marketId"`
	OptionID  uuid.UUID   `json:"optionId"`
	UserID    uuid.UUID   `json:"userId"`
	Side      models.Side `json:"side"`
	Quantity  int64       `json:"quantity"`
	TotalCost int64       `json:"totalCost"`
	Timestamp time.Time   `json:"timestamp"`
}

type PositionUpdatePayload struct {
	UserID      uuid.UUID `json:"userId"`
	OptionID    uuid.UUID `json:"optionId"`
	YesShares   int64     `json:"yesShares"`
	NoShares    int64     `json:"noShares"`
	RealizedPnL int64     `json:"realizedPnl"`
}

type BalanceUpdatePayload struct {
	UserID      uuid.UUID `json:"userId"`
	BalanceUSDC int64     `json:"balanceUsdc"`
}

type ResolvedPayload struct {
	OptionID    uuid.UUID   `json:"optionId"`
	WinningSide models.Side `json:"winningSide"`
	Timestamp   time.Time   `json:"timestamp"`
}

type CommentEventKind string

const (
	CommentCreated CommentEventKind = "created"
	CommentUpdated CommentEventKind = "updated"
	CommentDeleted CommentEventKind = "deleted"
	CommentVoted   CommentEventKind = "voted"
)

type CommentUpdatePayload struct {
	MarketID  uuid.UUID        `json:"marketId"`
	CommentID uuid.UUID        `json:"commentId"`
	Event     CommentEventKind `json:"event"`
	ParentID  *uuid.UUID       `json:"parentId,omitempty"`
	Upvotes   *int             `json:"upvotes,omitempty"`
	Downvotes *int             `json:"downvotes,omitempty"`
	Comment   *models.Comment  `json:"comment,omitempty"`
}

// EmitPriceUpdate satisfies trade.EventEmitter and liquidity.EventEmitter.
func (b *Bus) EmitPriceUpdate(optionID uuid.UUID, yesPrice, noPrice, yesQty, noQty int64, at time.Time) {
	b.publishOption(optionID, "price_update", PriceUpdatePayload{
		OptionID: optionID, YesPrice: yesPrice, NoPrice: noPrice,
		YesQuantity: yesQty, NoQuantity: noQty, Timestamp: at,
	})
}

// EmitTradeCreated satisfies trade.EventEmitter.
func (b *Bus) EmitTradeCreated(t *models.Trade) {
	payload := TradeCreatedPayload{
		TradeID: t.ID, MarketID: t.MarketID, OptionID: t.OptionID, UserID: t.UserID,
		Side: t.Side, Quantity: t.Quantity, TotalCost: t.TotalCost, Timestamp: t.CreatedAt,
	}
	b.publishMarket(t.MarketID, "trade_created", payload)
	b.publishOption(t.OptionID, "trade_created", payload)
}

// EmitPositionUpdate satisfies trade.EventEmitter.
func (b *Bus) EmitPositionUpdate(userID, optionID uuid.UUID, yesShares, noShares, realizedPnL int64) {
	b.publishUser(userID, "position_update", PositionUpdatePayload{
		UserID: userID, OptionID: optionID, YesShares: yesShares, NoShares: noShares, RealizedPnL: realizedPnL,
	})
}

// EmitBalanceUpdate satisfies trade.EventEmitter and liquidity.EventEmitter.
func (b *Bus) EmitBalanceUpdate(userID uuid.UUID, balance int64) {
	b.publishUser(userID, "balance_update", BalanceUpdatePayload{UserID: userID, BalanceUSDC: balance})
}

// EmitResolved satisfies resolution.EventEmitter.
func (b *Bus) EmitResolved(optionID uuid.UUID, winningSide models.Side, at time.Time) {
	b.publishOption(optionID, "resolved", ResolvedPayload{OptionID: optionID, WinningSide: winningSide, Timestamp: at})
}

// EmitCommentUpdate satisfies comments.EventEmitter.
func (b *Bus) EmitCommentUpdate(p CommentUpdatePayload) {
	b.publishMarket(p.MarketID, "comment_update", p)
}
