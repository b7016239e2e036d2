package bots

import (
	"math"

	"replaysim/engine"
)

// BestQuoteBot joins the touch every Interval of simulated time and cancels
// its quotes once they are older than Lifetime. Sides alternate between
// refreshes: the exchange only keeps the latest order placed between two
// market-data steps, so a bid and an ask sent together would lose the bid.
type BestQuoteBot struct {
	Interval int64
	Lifetime int64
	Quantity float64
	Kind     engine.OrderKind

	lastQuote int64
	quoted    bool
	next      engine.Side
}

func NewBestQuoteBot(interval, lifetime int64, quantity float64) *BestQuoteBot {
	return &BestQuoteBot{
		Interval: interval,
		Lifetime: lifetime,
		Quantity: quantity,
		Kind:     engine.Limit,
		next:     engine.Buy,
	}
}

func (b *BestQuoteBot) OnTick(ts int64, _ []engine.Notification, client Client) {
	cancelExpired(ts, b.Lifetime, client)
	if b.quoted && ts-b.lastQuote < b.Interval {
		return
	}
	bid, ask := client.BestBidAsk()
	price := bid
	if b.next == engine.Sell {
		price = ask
	}
	if math.IsInf(price, 0) {
		return
	}
	if _, err := client.Place(ts, b.Quantity, b.next, price, b.Kind); err != nil {
		return
	}
	b.lastQuote = ts
	b.quoted = true
	b.next = 1 - b.next
}
