package engine

import (
	"math/rand"
	"testing"
)

func BenchmarkTickThroughput(b *testing.B) {
	randGen := rand.New(rand.NewSource(42))
	md := make([]MarketData, b.N)
	for i := range md {
		md[i] = randomBenchmarkUpdate(randGen, int64(i))
	}

	s := NewSimulator(md, Config{ExecutionLatency: 3, MarketDataLatency: 2})
	var trades int

	b.ReportAllocs()
	b.ResetTimer()

	for !s.Exhausted() {
		ts, batch, err := s.Tick()
		if err != nil {
			b.Fatalf("tick failed: %v", err)
		}
		for _, n := range batch {
			switch n := n.(type) {
			case OwnTrade:
				trades++
			case MarketData:
				if n.Book != nil && randGen.Intn(4) == 0 {
					side := Side(randGen.Intn(2))
					price := n.Book.Bids[0].Price
					if side == Sell {
						price = n.Book.Asks[0].Price
					}
					s.Place(ts, 1, side, price, Limit)
				}
			}
		}
	}
	b.StopTimer()

	if elapsed := b.Elapsed(); elapsed > 0 {
		b.ReportMetric(float64(trades)/elapsed.Seconds(), "trades/sec")
	}
}

func randomBenchmarkUpdate(rng *rand.Rand, ts int64) MarketData {
	mid := 10_000 + float64(rng.Int63n(100))
	md := MarketData{ExchangeTS: ts * 10, ReceiveTS: ts*10 + 1}
	if rng.Intn(5) == 0 {
		md.Trade = &AnonTrade{ExchangeTS: md.ExchangeTS, ReceiveTS: md.ReceiveTS, Side: Side(rng.Intn(2)), Price: mid, Size: 1}
		return md
	}
	md.Book = &BookSnapshot{
		ExchangeTS: md.ExchangeTS,
		ReceiveTS:  md.ReceiveTS,
		Bids:       []Level{{Price: mid - 1, Size: 1}},
		Asks:       []Level{{Price: mid + 1, Size: 1}},
	}
	return md
}
