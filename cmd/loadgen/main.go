package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"

	"replaysim/bots"
	"replaysim/engine"
)

func main() {
	updates := flag.Int("updates", 500000, "number of synthetic market-data updates")
	basePrice := flag.Float64("base-price", 10000, "starting mid price")
	tick := flag.Float64("tick", 0.5, "tick size for synthetic prices")
	spreadTicks := flag.Int("spread-ticks", 2, "quoted spread in ticks")
	step := flag.Int64("step", 1_000_000, "ns between synthetic updates")
	tradeRatio := flag.Int("trade-ratio", 4, "1 in N updates will be a tape print instead of a snapshot")
	execLatency := flag.Int64("exec-latency", 5_000_000, "execution latency in ns")
	mdLatency := flag.Int64("md-latency", 5_000_000, "market data latency in ns")
	interval := flag.Int64("interval", 2_000_000, "bot quote interval in ns")
	lifetime := flag.Int64("lifetime", 20_000_000, "bot quote lifetime in ns")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for deterministic random streams")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	md := generate(rng, *updates, *basePrice, *tick, *spreadTicks, *step, *tradeRatio)
	sim := engine.NewSimulator(md, engine.Config{ExecutionLatency: *execLatency, MarketDataLatency: *mdLatency})
	bot := bots.NewRandomQuoteBot(*seed, *interval, *lifetime, 1, *tick)
	runner := bots.NewRunner(sim, bot, bots.WithLogger(zap.NewNop()), bots.WithFee(0))

	start := time.Now()
	res, err := runner.Run(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}

	updatesPerSec := float64(*updates) / elapsed.Seconds()
	tradesPerSec := float64(len(res.Trades)) / elapsed.Seconds()

	fmt.Printf("replayed %d updates in %s (%.0f updates/s)\n", *updates, elapsed.Truncate(time.Millisecond), updatesPerSec)
	fmt.Printf("own trades %d (%.0f trades/s), maker=%d taker=%d\n", len(res.Trades), tradesPerSec, res.Summary.MakerFills, res.Summary.TakerFills)
	fmt.Printf("config: exec-latency=%d md-latency=%d interval=%d trade-ratio=1/%d\n", *execLatency, *mdLatency, *interval, *tradeRatio)
}

// generate walks a mid price one tick at a time and emits snapshots with
// occasional tape prints at the touch.
func generate(rng *rand.Rand, n int, mid, tick float64, spreadTicks int, step int64, tradeRatio int) []engine.MarketData {
	out := make([]engine.MarketData, 0, n)
	half := float64(spreadTicks) * tick / 2
	for i := 0; i < n; i++ {
		ts := int64(i) * step
		mid += float64(rng.Intn(3)-1) * tick
		if mid-half <= 0 {
			mid = half + tick
		}
		bid, ask := mid-half, mid+half

		if tradeRatio > 0 && rng.Intn(tradeRatio) == 0 {
			side := engine.Side(rng.Intn(2))
			price := ask
			if side == engine.Sell {
				price = bid
			}
			out = append(out, engine.MarketData{
				ExchangeTS: ts,
				ReceiveTS:  ts,
				Trade:      &engine.AnonTrade{ExchangeTS: ts, ReceiveTS: ts, Side: side, Size: float64(rng.Intn(5) + 1), Price: price},
			})
			continue
		}
		out = append(out, engine.MarketData{
			ExchangeTS: ts,
			ReceiveTS:  ts,
			Book: &engine.BookSnapshot{
				ExchangeTS: ts,
				ReceiveTS:  ts,
				Bids:       []engine.Level{{Price: bid, Size: float64(rng.Intn(10) + 1)}},
				Asks:       []engine.Level{{Price: ask, Size: float64(rng.Intn(10) + 1)}},
			},
		})
	}
	return out
}
