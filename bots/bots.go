package bots

import "replaysim/engine"

// Bot is a strategy driven by simulator deliveries. OnTick sees every batch
// in delivery order and may place or cancel orders through the client; ts is
// the strategy's current time.
type Bot interface {
	OnTick(ts int64, batch []engine.Notification, client Client)
}

// Client is the surface bots get onto the simulated exchange.
type Client interface {
	Place(ts int64, size float64, side engine.Side, price float64, kind engine.OrderKind) (engine.Order, error)
	Cancel(ts int64, orderID uint64) error
	// BestBidAsk is the touch as delivered to the strategy so far.
	BestBidAsk() (bid, ask float64)
	// Open lists orders placed and neither filled nor cancelled, oldest first.
	Open() []engine.Order
	OwnsOrder(id uint64) bool
}
