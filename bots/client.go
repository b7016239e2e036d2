package bots

import (
	"errors"
	"fmt"
	"math"

	"replaysim/engine"
)

var (
	// ErrThrottled is returned when a placement exceeds the configured burst.
	ErrThrottled = errors.New("order throttled")
	// ErrUnknownOrder is returned when cancelling an order this client does
	// not hold open.
	ErrUnknownOrder = errors.New("unknown order")
)

// Throttle caps placements to Burst per Interval of simulated time. A zero
// Interval disables it.
type Throttle struct {
	Interval int64
	Burst    int
}

// SimClient wraps a simulator with throttling and open-order bookkeeping.
// It only learns about fills from delivered notifications, so its view lags
// the exchange by the market-data latency.
type SimClient struct {
	sim      *engine.Simulator
	throttle Throttle

	windowStart int64
	used        int

	open    map[uint64]engine.Order
	order   []uint64
	owned   map[uint64]struct{}
	bestBid float64
	bestAsk float64
}

// NewSimClient builds a client for sim.
func NewSimClient(sim *engine.Simulator, throttle Throttle) *SimClient {
	return &SimClient{
		sim:         sim,
		throttle:    throttle,
		windowStart: math.MinInt64,
		open:        make(map[uint64]engine.Order),
		owned:       make(map[uint64]struct{}),
		bestBid:     math.Inf(-1),
		bestAsk:     math.Inf(1),
	}
}

func (c *SimClient) Place(ts int64, size float64, side engine.Side, price float64, kind engine.OrderKind) (engine.Order, error) {
	if size <= 0 {
		return engine.Order{}, fmt.Errorf("size must be positive, got %v", size)
	}
	if err := c.take(ts); err != nil {
		return engine.Order{}, err
	}
	o := c.sim.Place(ts, size, side, price, kind)
	c.open[o.ID] = o
	c.order = append(c.order, o.ID)
	c.owned[o.ID] = struct{}{}
	return o, nil
}

func (c *SimClient) Cancel(ts int64, orderID uint64) error {
	if _, ok := c.open[orderID]; !ok {
		return fmt.Errorf("cancel %d: %w", orderID, ErrUnknownOrder)
	}
	c.sim.Cancel(ts, orderID)
	c.forget(orderID)
	return nil
}

func (c *SimClient) BestBidAsk() (float64, float64) {
	return c.bestBid, c.bestAsk
}

func (c *SimClient) Open() []engine.Order {
	out := make([]engine.Order, 0, len(c.open))
	for _, id := range c.order {
		if o, ok := c.open[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (c *SimClient) OwnsOrder(id uint64) bool {
	_, ok := c.owned[id]
	return ok
}

// Observe applies a delivered batch: the touch moves and filled orders close.
func (c *SimClient) Observe(batch []engine.Notification) {
	for _, n := range batch {
		switch n := n.(type) {
		case engine.MarketData:
			c.bestBid, c.bestAsk = engine.UpdateBest(c.bestBid, c.bestAsk, n)
		case engine.OwnTrade:
			c.forget(n.OrderID)
		}
	}
}

func (c *SimClient) take(ts int64) error {
	if c.throttle.Interval <= 0 {
		return nil
	}
	if ts-c.windowStart >= c.throttle.Interval {
		c.windowStart = ts
		c.used = 0
	}
	if c.used >= c.throttle.Burst {
		return ErrThrottled
	}
	c.used++
	return nil
}

func (c *SimClient) forget(id uint64) {
	if _, ok := c.open[id]; !ok {
		return
	}
	delete(c.open, id)
	// Compact once most tracked ids are closed.
	if len(c.order) > 2*len(c.open)+16 {
		kept := c.order[:0]
		for _, oid := range c.order {
			if _, ok := c.open[oid]; ok {
				kept = append(kept, oid)
			}
		}
		c.order = kept
	}
}
