// Package sink ships simulator notifications out of process.
package sink

import (
	"context"
	"errors"
	"fmt"

	"replaysim/engine"
)

// Sink receives every batch a simulator delivers.
type Sink interface {
	Write(ctx context.Context, ts int64, batch []engine.Notification) error
	Close() error
}

// Level is the JSON form of a book level.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Record is the JSON form of one notification.
type Record struct {
	Kind       string  `json:"kind"`
	DeliverTS  int64   `json:"deliverTs"`
	ExchangeTS int64   `json:"exchangeTs"`
	ReceiveTS  int64   `json:"receiveTs"`
	Bids       []Level `json:"bids,omitempty"`
	Asks       []Level `json:"asks,omitempty"`

	// Set for anonymous trades and own trades.
	Side  string  `json:"side,omitempty"`
	Price float64 `json:"price,omitempty"`
	Size  float64 `json:"size,omitempty"`

	// Set for own trades only.
	TradeID   *uint64 `json:"tradeId,omitempty"`
	OrderID   *uint64 `json:"orderId,omitempty"`
	PlaceTS   int64   `json:"placeTs,omitempty"`
	Liquidity string  `json:"liquidity,omitempty"`
	Venue     string  `json:"venue,omitempty"`
}

const (
	KindMarketData = "md"
	KindOwnTrade   = "trade"
)

// NewRecord converts n delivered at ts.
func NewRecord(ts int64, n engine.Notification) Record {
	switch n := n.(type) {
	case engine.MarketData:
		r := Record{Kind: KindMarketData, DeliverTS: ts, ExchangeTS: n.ExchangeTS, ReceiveTS: n.ReceiveTS}
		if n.Book != nil {
			r.Bids = levels(n.Book.Bids)
			r.Asks = levels(n.Book.Asks)
		}
		if n.Trade != nil {
			r.Side = n.Trade.Side.String()
			r.Price = n.Trade.Price
			r.Size = n.Trade.Size
		}
		return r
	case engine.OwnTrade:
		tradeID, orderID := n.ID, n.OrderID
		return Record{
			Kind:       KindOwnTrade,
			DeliverTS:  ts,
			ExchangeTS: n.ExchangeTS,
			ReceiveTS:  n.ReceiveTS,
			Side:       n.Side.String(),
			Price:      n.Price,
			Size:       n.Size,
			TradeID:    &tradeID,
			OrderID:    &orderID,
			PlaceTS:    n.PlaceTS,
			Liquidity:  n.Liquidity.String(),
			Venue:      n.Venue.String(),
		}
	default:
		panic(fmt.Sprintf("sink: unknown notification %T", n))
	}
}

func levels(in []engine.Level) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{Price: l.Price, Size: l.Size}
	}
	return out
}

// Multi fans a batch out to several sinks.
type Multi []Sink

func (m Multi) Write(ctx context.Context, ts int64, batch []engine.Notification) error {
	for _, s := range m {
		if err := s.Write(ctx, ts, batch); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
