package engine

import (
	"fmt"
	"math"
	"strings"
)

// NoTime is the event time reported by an empty queue.
const NoTime int64 = math.MaxInt64

// Side represents the direction of an order or trade.
type Side int

const (
	// Buy indicates a bid.
	Buy Side = iota
	// Sell indicates an ask.
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BID"
	}
	return "ASK"
}

// ParseSide accepts the spellings used by feeds and HTTP clients.
func ParseSide(value string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "buy", "bid", "b":
		return Buy, nil
	case "sell", "ask", "s":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", value)
	}
}

// OrderKind represents the execution style for an order.
type OrderKind int

const (
	// Limit orders may execute immediately or rest until filled or canceled.
	Limit OrderKind = iota
	// PostOnly orders never take liquidity; a marketable one is dropped.
	PostOnly
)

func (k OrderKind) String() string {
	if k == PostOnly {
		return "POST_ONLY"
	}
	return "LIMIT"
}

// ParseOrderKind parses "limit" or "post_only".
func ParseOrderKind(value string) (OrderKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "limit", "lmt":
		return Limit, nil
	case "post_only", "postonly", "post-only":
		return PostOnly, nil
	default:
		return 0, fmt.Errorf("unknown order kind %q", value)
	}
}

// Liquidity classifies an own trade as taking or providing liquidity.
type Liquidity int

const (
	Taker Liquidity = iota
	Maker
)

func (l Liquidity) String() string {
	if l == Maker {
		return "MAKER"
	}
	return "TAKER"
}

// Venue says what an own trade executed against.
type Venue int

const (
	// VenueBook is resting liquidity in the order-book snapshot.
	VenueBook Venue = iota
	// VenueTrade is the anonymous trade tape.
	VenueTrade
)

func (v Venue) String() string {
	if v == VenueTrade {
		return "TRADE"
	}
	return "BOOK"
}

// Level is one price level of a snapshot.
type Level struct {
	Price float64
	Size  float64
}

// BookSnapshot is a top-N order-book snapshot, best level first on each side.
type BookSnapshot struct {
	ExchangeTS int64
	ReceiveTS  int64
	Asks       []Level
	Bids       []Level
}

// AnonTrade is a public trade print. Side is the aggressor side.
type AnonTrade struct {
	ExchangeTS int64
	ReceiveTS  int64
	Side       Side
	Size       float64
	Price      float64
}

// MarketData is one update of the merged market-data stream. At least one of
// Book and Trade is set.
type MarketData struct {
	ExchangeTS int64
	ReceiveTS  int64
	Book       *BookSnapshot
	Trade      *AnonTrade
}

// Order is a strategy order as the simulated exchange sees it.
type Order struct {
	PlaceTS    int64 // when the strategy submitted it
	ExchangeTS int64 // PlaceTS + execution latency
	ID         uint64
	Side       Side
	Size       float64
	Price      float64
	Kind       OrderKind
}

// CancelOrder asks the exchange to drop a resting order.
type CancelOrder struct {
	ExchangeTS int64
	OrderID    uint64
}

// OwnTrade is an execution of one of the strategy's orders.
type OwnTrade struct {
	PlaceTS    int64
	ExchangeTS int64
	ReceiveTS  int64
	ID         uint64
	OrderID    uint64
	Side       Side
	Size       float64
	Price      float64
	Liquidity  Liquidity
	Venue      Venue
}

// Action is either an Order or a CancelOrder.
type Action interface {
	action()
	ExchangeTime() int64
}

func (Order) action()       {}
func (CancelOrder) action() {}

func (o Order) ExchangeTime() int64       { return o.ExchangeTS }
func (c CancelOrder) ExchangeTime() int64 { return c.ExchangeTS }

// Notification is either a MarketData echo or an OwnTrade.
type Notification interface {
	notification()
	ExchangeTime() int64
	ReceiveTime() int64
}

func (MarketData) notification() {}
func (OwnTrade) notification()   {}

func (m MarketData) ExchangeTime() int64 { return m.ExchangeTS }
func (m MarketData) ReceiveTime() int64  { return m.ReceiveTS }
func (t OwnTrade) ExchangeTime() int64   { return t.ExchangeTS }
func (t OwnTrade) ReceiveTime() int64    { return t.ReceiveTS }
