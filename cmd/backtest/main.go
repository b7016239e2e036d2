package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"replaysim/analytics"
	"replaysim/bots"
	"replaysim/engine"
	"replaysim/marketdata"
	"replaysim/sink"
)

func main() {
	_ = godotenv.Load()

	lobsPath := flag.String("lobs", envOr("LOBS_PATH", "data/lobs.csv"), "order book snapshots csv")
	tradesPath := flag.String("trades", envOr("TRADES_PATH", "data/trades.csv"), "anonymous trades csv")
	minTS := flag.Int64("min-ts", 0, "drop updates received before this timestamp (0 = open)")
	maxTS := flag.Int64("max-ts", 0, "drop updates received after this timestamp (0 = open)")
	strategy := flag.String("strategy", "best", "strategy to run: best or random")
	execLatency := flag.Int64("exec-latency", 10_000_000, "execution latency in ns")
	mdLatency := flag.Int64("md-latency", 10_000_000, "market data latency in ns")
	interval := flag.Int64("interval", 100_000_000, "quote refresh interval in ns")
	lifetime := flag.Int64("lifetime", 1_000_000_000, "cancel own quotes older than this in ns (0 = never)")
	quantity := flag.Float64("qty", 0.001, "order size")
	kind := flag.String("kind", "limit", "order kind for the best quote strategy: limit or post_only")
	seed := flag.Int64("seed", 1, "seed for the random strategy")
	tick := flag.Float64("tick", 0.1, "tick size for the random strategy")
	rangeTicks := flag.Int64("range-ticks", 5, "random strategy distance from mid in ticks")
	throttleInterval := flag.Int64("throttle-interval", 0, "placement throttle window in ns (0 = off)")
	throttleBurst := flag.Int("throttle-burst", 1, "placements allowed per throttle window")
	fee := flag.Float64("fee", analytics.DefaultFee, "fee rate charged on notional; negative is a rebate")
	pnlOut := flag.String("pnl-out", "", "write the PnL table as csv")
	eventsOut := flag.String("events-out", "", "write every delivered notification as json lines")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "also stream notifications to redis")
	redisStream := flag.String("redis-stream", "backtest", "redis stream key")
	logInterval := flag.Int64("log-interval", 60_000_000_000, "log running PnL every N ns of simulated time (0 = off)")
	progress := flag.Bool("progress", true, "show a progress bar")
	dev := flag.Bool("dev", false, "human-readable debug logging")
	flag.Parse()

	logger := newLogger(*dev)
	defer func() { _ = logger.Sync() }()

	md, err := marketdata.Load(*lobsPath, *tradesPath, marketdata.Window{Min: *minTS, Max: *maxTS})
	if err != nil {
		logger.Fatal("load_market_data", zap.Error(err))
	}
	logger.Info("market_data_loaded", zap.Int("updates", len(md)))

	bot, err := buildBot(*strategy, *interval, *lifetime, *quantity, *kind, *seed, *tick, *rangeTicks)
	if err != nil {
		logger.Fatal("build_strategy", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simOpts := []engine.Option{engine.WithLogger(logger)}
	if *progress {
		simOpts = append(simOpts, engine.WithProgress(progressbar.Default(int64(len(md)), "replaying")))
	}
	sim := engine.NewSimulator(md, engine.Config{ExecutionLatency: *execLatency, MarketDataLatency: *mdLatency}, simOpts...)

	var sinks sink.Multi
	if *eventsOut != "" {
		jl, err := sink.CreateJSONLines(*eventsOut)
		if err != nil {
			logger.Fatal("open_events_out", zap.Error(err))
		}
		sinks = append(sinks, jl)
	}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis_ping", zap.String("addr", *redisAddr), zap.Error(err))
		}
		sinks = append(sinks, sink.NewRedisStream(rdb, *redisStream, 0))
	}

	runner := bots.NewRunner(sim, bot,
		bots.WithSink(sinks),
		bots.WithLogger(logger),
		bots.WithFee(*fee),
		bots.WithLogInterval(*logInterval),
		bots.WithThrottle(bots.Throttle{Interval: *throttleInterval, Burst: *throttleBurst}),
	)
	res, runErr := runner.Run(ctx)
	if err := sinks.Close(); err != nil {
		logger.Error("close_sinks", zap.Error(err))
	}
	if runErr != nil {
		logger.Error("run_stopped", zap.Error(runErr))
	}

	if *pnlOut != "" {
		if err := writePnL(*pnlOut, res.PnL); err != nil {
			logger.Fatal("write_pnl", zap.Error(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Summary); err != nil {
		logger.Fatal("write_summary", zap.Error(err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

func buildBot(strategy string, interval, lifetime int64, quantity float64, kind string, seed int64, tick float64, rangeTicks int64) (bots.Bot, error) {
	if quantity <= 0 {
		return nil, errors.New("qty must be positive")
	}
	if interval < 0 || lifetime < 0 {
		return nil, errors.New("interval and lifetime must not be negative")
	}
	switch strategy {
	case "best":
		k, err := engine.ParseOrderKind(kind)
		if err != nil {
			return nil, err
		}
		b := bots.NewBestQuoteBot(interval, lifetime, quantity)
		b.Kind = k
		return b, nil
	case "random":
		if tick <= 0 {
			return nil, errors.New("tick must be positive")
		}
		if rangeTicks <= 0 {
			return nil, errors.New("range-ticks must be positive")
		}
		b := bots.NewRandomQuoteBot(seed, interval, lifetime, quantity, tick)
		b.RangeTicks = rangeTicks
		return b, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

func writePnL(path string, rows []analytics.PnLRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := analytics.WritePnLCSV(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
