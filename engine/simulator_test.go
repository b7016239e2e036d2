package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func book(ts int64, bid, ask float64) MarketData {
	return MarketData{
		ExchangeTS: ts,
		ReceiveTS:  ts,
		Book: &BookSnapshot{
			ExchangeTS: ts,
			ReceiveTS:  ts,
			Bids:       []Level{{Price: bid, Size: 1}},
			Asks:       []Level{{Price: ask, Size: 1}},
		},
	}
}

func tape(ts int64, side Side, price float64) MarketData {
	return MarketData{
		ExchangeTS: ts,
		ReceiveTS:  ts,
		Trade:      &AnonTrade{ExchangeTS: ts, ReceiveTS: ts, Side: side, Price: price, Size: 1},
	}
}

// drain ticks until the simulator is exhausted and returns every batch.
func drain(t *testing.T, s *Simulator) ([]int64, [][]Notification) {
	t.Helper()
	var times []int64
	var batches [][]Notification
	for !s.Exhausted() {
		ts, batch, err := s.Tick()
		require.NoError(t, err)
		require.NotEmpty(t, batch)
		times = append(times, ts)
		batches = append(batches, batch)
	}
	return times, batches
}

func ownTrades(batches [][]Notification) []OwnTrade {
	var out []OwnTrade
	for _, batch := range batches {
		for _, n := range batch {
			if tr, ok := n.(OwnTrade); ok {
				out = append(out, tr)
			}
		}
	}
	return out
}

func TestTickEchoesMarketDataInOrder(t *testing.T) {
	md := []MarketData{book(0, 99, 101), tape(10, Buy, 101), book(20, 100, 102)}
	md[1].ReceiveTS = 12
	md[2].ReceiveTS = 21
	s := NewSimulator(md, Config{})

	times, batches := drain(t, s)

	assert.Equal(t, []int64{0, 12, 21}, times)
	for i, batch := range batches {
		require.Len(t, batch, 1)
		assert.Equal(t, md[i], batch[0])
	}
	bid, ask := s.BestBidAsk()
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 102.0, ask)
}

func TestTickFailsWhenExhausted(t *testing.T) {
	s := NewSimulator([]MarketData{book(0, 99, 101)}, Config{})
	_, _, err := s.Tick()
	require.NoError(t, err)
	require.True(t, s.Exhausted())

	_, _, err = s.Tick()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestTickOnEmptyInput(t *testing.T) {
	s := NewSimulator(nil, Config{ExecutionLatency: 5})
	assert.True(t, s.Exhausted())
	_, _, err := s.Tick()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAggressiveBuyFillsAtTouch(t *testing.T) {
	md := []MarketData{book(0, 99, 101), book(10, 99, 101)}
	s := NewSimulator(md, Config{ExecutionLatency: 5, MarketDataLatency: 2})

	ts, batch, err := s.Tick()
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
	assert.Equal(t, []Notification{md[0]}, batch)

	order := s.Place(0, 3, Buy, 102, Limit)
	assert.Equal(t, int64(5), order.ExchangeTS)
	assert.Equal(t, uint64(0), order.ID)

	times, batches := drain(t, s)
	require.Equal(t, []int64{10, 12}, times)
	assert.Equal(t, []Notification{md[1]}, batches[0])

	require.Len(t, batches[1], 1)
	trade := batches[1][0].(OwnTrade)
	assert.Equal(t, OwnTrade{
		PlaceTS:    0,
		ExchangeTS: 10,
		ReceiveTS:  12,
		ID:         0,
		OrderID:    order.ID,
		Side:       Buy,
		Size:       3,
		Price:      101,
		Liquidity:  Taker,
		Venue:      VenueBook,
	}, trade)
	assert.Empty(t, s.Resting())
}

func TestAggressiveSellFillsAtTouch(t *testing.T) {
	md := []MarketData{book(0, 99, 101)}
	s := NewSimulator(md, Config{MarketDataLatency: 1})
	s.Place(0, 2, Sell, 50, Limit)

	_, batches := drain(t, s)
	trades := ownTrades(batches)
	require.Len(t, trades, 1)
	assert.Equal(t, 99.0, trades[0].Price)
	assert.Equal(t, Taker, trades[0].Liquidity)
	assert.Equal(t, VenueBook, trades[0].Venue)
	assert.Equal(t, int64(1), trades[0].ReceiveTS)
}

func TestPostOnlyMarketableIsDropped(t *testing.T) {
	md := []MarketData{book(0, 99, 101), book(10, 99, 101)}
	s := NewSimulator(md, Config{})
	s.Place(0, 1, Buy, 102, PostOnly)

	_, batches := drain(t, s)
	assert.Empty(t, ownTrades(batches))
	assert.Empty(t, s.Resting())
}

func TestPostOnlyNonMarketableRests(t *testing.T) {
	md := []MarketData{book(0, 99, 101), book(10, 99, 98)}
	s := NewSimulator(md, Config{})
	order := s.Place(0, 1, Buy, 100, PostOnly)

	_, _, err := s.Tick()
	require.NoError(t, err)
	assert.True(t, s.IsResting(order.ID))

	_, batches := drain(t, s)
	trades := ownTrades(batches)
	require.Len(t, trades, 1)
	assert.Equal(t, Maker, trades[0].Liquidity)
	assert.Equal(t, 100.0, trades[0].Price)
}

func TestRestingOrderFillsAgainstBook(t *testing.T) {
	md := []MarketData{book(0, 90, 100), book(10, 90, 94)}
	s := NewSimulator(md, Config{MarketDataLatency: 3})
	order := s.Place(0, 4, Buy, 95, Limit)

	ts, batch, err := s.Tick()
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
	assert.Equal(t, []Notification{md[0]}, batch)
	require.Equal(t, []Order{order}, s.Resting())

	times, batches := drain(t, s)
	require.Equal(t, []int64{10, 13}, times)
	assert.Equal(t, []Notification{md[1]}, batches[0])
	assert.Equal(t, []Notification{OwnTrade{
		PlaceTS:    0,
		ExchangeTS: 10,
		ReceiveTS:  13,
		ID:         0,
		OrderID:    order.ID,
		Side:       Buy,
		Size:       4,
		Price:      95,
		Liquidity:  Maker,
		Venue:      VenueBook,
	}}, batches[1])
	assert.Empty(t, s.Resting())
}

func TestRestingOrderFillsAgainstTape(t *testing.T) {
	tests := []struct {
		name   string
		side   Side
		price  float64
		print  MarketData
		filled bool
	}{
		{name: "buy below sell print", side: Buy, price: 95, print: tape(10, Sell, 94), filled: true},
		{name: "buy at sell print", side: Buy, price: 95, print: tape(10, Sell, 95), filled: false},
		{name: "buy ignores buy print", side: Buy, price: 95, print: tape(10, Buy, 94), filled: false},
		{name: "sell above buy print", side: Sell, price: 105, print: tape(10, Buy, 106), filled: true},
		{name: "sell ignores sell print", side: Sell, price: 105, print: tape(10, Sell, 106), filled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := []MarketData{book(0, 90, 110), tt.print}
			s := NewSimulator(md, Config{})
			order := s.Place(0, 1, tt.side, tt.price, Limit)

			_, batches := drain(t, s)
			trades := ownTrades(batches)
			if !tt.filled {
				assert.Empty(t, trades)
				assert.True(t, s.IsResting(order.ID))
				return
			}
			require.Len(t, trades, 1)
			assert.Equal(t, tt.price, trades[0].Price)
			assert.Equal(t, Maker, trades[0].Liquidity)
			assert.Equal(t, VenueTrade, trades[0].Venue)
			assert.False(t, s.IsResting(order.ID))
		})
	}
}

func TestTapePriceDoesNotOutliveItsStep(t *testing.T) {
	// The print at 10 happens before the order reaches the exchange at 15.
	md := []MarketData{book(0, 90, 110), tape(10, Sell, 80), book(20, 90, 110)}
	s := NewSimulator(md, Config{ExecutionLatency: 15})
	order := s.Place(0, 1, Buy, 95, Limit)

	_, batches := drain(t, s)
	assert.Empty(t, ownTrades(batches))
	assert.True(t, s.IsResting(order.ID))
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	md := []MarketData{book(0, 90, 100), book(10, 90, 94)}
	s := NewSimulator(md, Config{})
	order := s.Place(0, 1, Buy, 95, Limit)

	_, _, err := s.Tick()
	require.NoError(t, err)
	require.True(t, s.IsResting(order.ID))

	s.Cancel(1, order.ID)
	_, batches := drain(t, s)
	assert.Empty(t, ownTrades(batches))
	assert.Empty(t, s.Resting())
}

func TestCancelUnknownOrderIsNoop(t *testing.T) {
	md := []MarketData{book(0, 90, 100), book(10, 90, 94)}

	run := func(cancel bool) ([]int64, [][]Notification, []Order) {
		s := NewSimulator(md, Config{ExecutionLatency: 1})
		s.Place(0, 1, Buy, 95, Limit)
		if cancel {
			c := s.Cancel(0, 999)
			assert.Equal(t, CancelOrder{ExchangeTS: 1, OrderID: 999}, c)
		}
		times, batches := drain(t, s)
		return times, batches, s.Resting()
	}

	wantTimes, wantBatches, wantResting := run(false)
	gotTimes, gotBatches, gotResting := run(true)
	assert.Equal(t, wantTimes, gotTimes)
	assert.Equal(t, wantBatches, gotBatches)
	assert.Equal(t, wantResting, gotResting)
}

func TestCancelRemovesOrderAwaitingMarketData(t *testing.T) {
	md := []MarketData{book(0, 90, 100), book(10, 90, 94)}
	s := NewSimulator(md, Config{ExecutionLatency: 2})

	_, _, err := s.Tick()
	require.NoError(t, err)

	// Both actions reach the exchange before the update at 10.
	order := s.Place(0, 1, Buy, 95, Limit)
	cancel := s.Cancel(3, order.ID)
	require.Equal(t, int64(5), cancel.ExchangeTS)

	_, batches := drain(t, s)
	assert.Empty(t, ownTrades(batches))
	assert.Empty(t, s.Resting())
	assert.False(t, s.IsResting(order.ID))
}

func TestAggressiveResolutionUsesTouchAtArrival(t *testing.T) {
	// The ask moves from 101 to 105 before the order's first market-data
	// step, so the buy at 102 no longer crosses and rests.
	md := []MarketData{book(0, 99, 101), book(10, 103, 105)}
	s := NewSimulator(md, Config{ExecutionLatency: 5})

	_, _, err := s.Tick()
	require.NoError(t, err)
	order := s.Place(0, 1, Buy, 102, Limit)

	_, batches := drain(t, s)
	assert.Empty(t, ownTrades(batches))
	assert.Equal(t, []Order{order}, s.Resting())
}

func TestLatestPendingOrderReplacesEarlier(t *testing.T) {
	md := []MarketData{book(0, 90, 100), book(10, 90, 100)}
	s := NewSimulator(md, Config{ExecutionLatency: 5})

	_, _, err := s.Tick()
	require.NoError(t, err)

	first := s.Place(0, 1, Buy, 95, Limit)
	second := s.Place(0, 1, Buy, 96, Limit)

	_, batches := drain(t, s)
	assert.Empty(t, ownTrades(batches))
	assert.False(t, s.IsResting(first.ID))
	assert.Equal(t, []Order{second}, s.Resting())
}

func TestRestingPassFillsInSubmissionOrder(t *testing.T) {
	md := []MarketData{book(0, 80, 100), book(10, 80, 100), book(20, 80, 90)}
	s := NewSimulator(md, Config{ExecutionLatency: 0})

	a := s.Place(0, 1, Buy, 96, Limit)
	_, _, err := s.Tick()
	require.NoError(t, err)
	b := s.Place(10, 2, Buy, 95, Limit)

	_, batches := drain(t, s)
	last := batches[len(batches)-1]
	require.Len(t, last, 3)
	assert.Equal(t, md[2], last[0])
	assert.Equal(t, uint64(0), last[1].(OwnTrade).ID)
	assert.Equal(t, a.ID, last[1].(OwnTrade).OrderID)
	assert.Equal(t, uint64(1), last[2].(OwnTrade).ID)
	assert.Equal(t, b.ID, last[2].(OwnTrade).OrderID)
}

func TestIDsAreMonotonic(t *testing.T) {
	s := NewSimulator(nil, Config{})
	var prev uint64
	for i := 0; i < 5; i++ {
		o := s.Place(int64(i), 1, Buy, 1, Limit)
		if i > 0 {
			assert.Greater(t, o.ID, prev)
		}
		prev = o.ID
	}
}

type countingProgress struct{ n int }

func (c *countingProgress) Add(n int) error {
	c.n += n
	return nil
}

func TestProgressCountsMarketData(t *testing.T) {
	md := []MarketData{book(0, 99, 101), book(1, 99, 101), book(2, 99, 101)}
	p := &countingProgress{}
	s := NewSimulator(md, Config{}, WithProgress(p))

	drain(t, s)
	assert.Equal(t, 3, p.n)
	assert.Zero(t, s.Remaining())
}

func TestMatchingWithoutMarketDataPanics(t *testing.T) {
	s := NewSimulator(nil, Config{})
	assert.PanicsWithValue(t, "engine: matching with no current market data", func() {
		s.emitTrade(Order{}, 1, Taker, VenueBook)
	})
}
