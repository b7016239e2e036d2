package engine

import "go.uber.org/zap"

// executePending tries the latest placed order against the touch. A fill
// executes at the touch, not at the order's limit. An order that does not
// cross starts resting.
func (s *Simulator) executePending() {
	if s.pending == nil {
		return
	}
	order := *s.pending
	s.pending = nil

	price, ok := s.touchPrice(order)
	switch {
	case !ok:
		s.resting.add(order)
	case order.Kind == PostOnly:
		s.log.Debug("post_only_dropped",
			zap.Uint64("order_id", order.ID),
			zap.Float64("price", order.Price))
	default:
		s.emitTrade(order, price, Taker, VenueBook)
	}
}

// executeResting matches every resting order against the current touch and
// this step's tape. Fills execute at the order's own limit. Filled orders
// are removed once the pass is over.
func (s *Simulator) executeResting() {
	var filled []uint64
	s.resting.each(func(o Order) {
		venue, ok := s.passiveVenue(o)
		if !ok {
			return
		}
		s.emitTrade(o, o.Price, Maker, venue)
		filled = append(filled, o.ID)
	})
	for _, id := range filled {
		s.resting.remove(id)
	}
}

// touchPrice returns the opposite best price when o crosses it.
func (s *Simulator) touchPrice(o Order) (float64, bool) {
	if o.Side == Buy && o.Price > s.bestAsk {
		return s.bestAsk, true
	}
	if o.Side == Sell && o.Price < s.bestBid {
		return s.bestBid, true
	}
	return 0, false
}

func (s *Simulator) passiveVenue(o Order) (Venue, bool) {
	if _, ok := s.touchPrice(o); ok {
		return VenueBook, true
	}
	if o.Side == Buy && o.Price > s.lastTrade[Sell] {
		return VenueTrade, true
	}
	if o.Side == Sell && o.Price < s.lastTrade[Buy] {
		return VenueTrade, true
	}
	return 0, false
}

func (s *Simulator) emitTrade(o Order, price float64, liq Liquidity, venue Venue) {
	if s.current == nil {
		panic("engine: matching with no current market data")
	}
	trade := OwnTrade{
		PlaceTS:    o.PlaceTS,
		ExchangeTS: s.current.ExchangeTS,
		ReceiveTS:  s.current.ExchangeTS + s.cfg.MarketDataLatency,
		ID:         s.nextTradeID,
		OrderID:    o.ID,
		Side:       o.Side,
		Size:       o.Size,
		Price:      price,
		Liquidity:  liq,
		Venue:      venue,
	}
	s.nextTradeID++
	s.updates.Push(trade.ReceiveTS, trade)
	s.log.Debug("own_trade",
		zap.Uint64("trade_id", trade.ID),
		zap.Uint64("order_id", trade.OrderID),
		zap.Stringer("side", trade.Side),
		zap.Float64("price", trade.Price),
		zap.Float64("size", trade.Size),
		zap.Stringer("liquidity", trade.Liquidity),
		zap.Stringer("venue", trade.Venue))
}
