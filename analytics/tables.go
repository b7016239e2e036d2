package analytics

import (
	"math"

	"replaysim/engine"
)

// TradeRow is one own trade in tabular form.
type TradeRow struct {
	ExchangeTS int64
	ReceiveTS  int64
	Size       float64
	Price      float64
	Side       engine.Side
	Liquidity  engine.Liquidity
	Venue      engine.Venue
}

// BidAskRow is the touch right after one market-data update.
type BidAskRow struct {
	ExchangeTS int64
	ReceiveTS  int64
	Bid        float64
	Ask        float64
}

// Trades extracts own trades from a notification stream.
func Trades(updates []engine.Notification) []TradeRow {
	var out []TradeRow
	for _, u := range updates {
		tr, ok := u.(engine.OwnTrade)
		if !ok {
			continue
		}
		out = append(out, TradeRow{
			ExchangeTS: tr.ExchangeTS,
			ReceiveTS:  tr.ReceiveTS,
			Size:       tr.Size,
			Price:      tr.Price,
			Side:       tr.Side,
			Liquidity:  tr.Liquidity,
			Venue:      tr.Venue,
		})
	}
	return out
}

// BidAsk replays the best-price tracker over md.
func BidAsk(md []engine.MarketData) []BidAskRow {
	bid, ask := math.Inf(-1), math.Inf(1)
	out := make([]BidAskRow, 0, len(md))
	for _, m := range md {
		bid, ask = engine.UpdateBest(bid, ask, m)
		out = append(out, BidAskRow{
			ExchangeTS: m.ExchangeTS,
			ReceiveTS:  m.ReceiveTS,
			Bid:        bid,
			Ask:        ask,
		})
	}
	return out
}

// Summary condenses a run.
type Summary struct {
	Updates    int     `json:"updates"`
	Trades     int     `json:"trades"`
	MakerFills int     `json:"makerFills"`
	TakerFills int     `json:"takerFills"`
	BookFills  int     `json:"bookFills"`
	TapeFills  int     `json:"tapeFills"`
	Volume     string  `json:"volume"`
	Base       string  `json:"base"`
	Quote      string  `json:"quote"`
	Worth      float64 `json:"worth"`
}

// Summarize reads the last PnL row and counts trades by class.
func Summarize(rows []PnLRow, trades []TradeRow) Summary {
	s := Summary{Updates: len(rows), Trades: len(trades), Volume: "0", Base: "0", Quote: "0"}
	for _, tr := range trades {
		if tr.Liquidity == engine.Maker {
			s.MakerFills++
		} else {
			s.TakerFills++
		}
		if tr.Venue == engine.VenueTrade {
			s.TapeFills++
		} else {
			s.BookFills++
		}
	}
	if len(rows) == 0 {
		return s
	}
	last := rows[len(rows)-1]
	s.Volume = last.Volume.String()
	s.Base = last.Base.String()
	s.Quote = last.Quote.String()
	// encoding/json rejects NaN.
	if !math.IsNaN(last.Worth) {
		s.Worth = last.Worth
	}
	return s
}
