package bots

import (
	"math/rand"

	"replaysim/engine"
)

// RandomQuoteBot places one limit order every Interval at a random number
// of ticks away from the mid, on the passive side. Seeded, so a run is
// reproducible.
type RandomQuoteBot struct {
	Interval   int64
	Lifetime   int64
	Quantity   float64
	RangeTicks int64
	TickSize   float64
	// Sides to draw from; empty means both.
	Sides []engine.Side

	lastQuote int64
	quoted    bool
	rand      *rand.Rand
}

func NewRandomQuoteBot(seed int64, interval, lifetime int64, quantity, tickSize float64) *RandomQuoteBot {
	return &RandomQuoteBot{
		Interval:   interval,
		Lifetime:   lifetime,
		Quantity:   quantity,
		RangeTicks: 5,
		TickSize:   tickSize,
		rand:       rand.New(rand.NewSource(seed)),
	}
}

func (b *RandomQuoteBot) OnTick(ts int64, _ []engine.Notification, client Client) {
	cancelExpired(ts, b.Lifetime, client)
	if b.quoted && ts-b.lastQuote < b.Interval {
		return
	}
	mid, ok := midPrice(client.BestBidAsk())
	if !ok {
		return
	}
	b.lastQuote = ts
	b.quoted = true

	side := b.pickSide()
	delta := float64(b.rand.Int63n(b.RangeTicks+1)) * b.TickSize
	price := mid - delta
	if side == engine.Sell {
		price = mid + delta
	}
	if price <= 0 {
		price = b.TickSize
	}
	_, _ = client.Place(ts, b.Quantity, side, price, engine.Limit)
}

func (b *RandomQuoteBot) pickSide() engine.Side {
	sides := b.Sides
	if len(sides) == 0 {
		sides = []engine.Side{engine.Buy, engine.Sell}
	}
	return sides[b.rand.Intn(len(sides))]
}
