package bots

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"replaysim/analytics"
	"replaysim/engine"
	"replaysim/sink"
)

// Runner drives one bot against a simulator until the data runs out.
type Runner struct {
	sim    *engine.Simulator
	bot    Bot
	client *SimClient
	sinks  sink.Multi
	log    *zap.Logger
	fee    float64

	throttle    Throttle
	logInterval int64
	pnl         *pnlTracker
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithSink adds s to the sinks every delivered batch is written to.
func WithSink(s sink.Sink) RunnerOption {
	return func(r *Runner) { r.sinks = append(r.sinks, s) }
}

func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithFee sets the fee rate used for the final PnL table.
func WithFee(fee float64) RunnerOption {
	return func(r *Runner) { r.fee = fee }
}

// WithLogInterval logs position and cash every interval of simulated time.
func WithLogInterval(interval int64) RunnerOption {
	return func(r *Runner) { r.logInterval = interval }
}

func WithThrottle(t Throttle) RunnerOption {
	return func(r *Runner) { r.throttle = t }
}

// Result is everything a finished run produced.
type Result struct {
	Notifications []engine.Notification
	PnL           []analytics.PnLRow
	Trades        []analytics.TradeRow
	Summary       analytics.Summary
}

func NewRunner(sim *engine.Simulator, bot Bot, opts ...RunnerOption) *Runner {
	r := &Runner{
		sim: sim,
		bot: bot,
		log: zap.NewNop(),
		fee: analytics.DefaultFee,
		pnl: &pnlTracker{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client = NewSimClient(sim, r.throttle)
	return r
}

// Client is the client handed to the bot.
func (r *Runner) Client() *SimClient { return r.client }

// Run ticks until the simulator is exhausted or ctx is done. On
// cancellation the partial result is returned with ctx's error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var (
		log     []engine.Notification
		lastLog int64
		logged  bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return r.result(log), err
		}
		ts, batch, err := r.sim.Tick()
		if errors.Is(err, engine.ErrExhausted) {
			break
		}
		if err != nil {
			return r.result(log), err
		}
		log = append(log, batch...)

		r.client.Observe(batch)
		r.pnl.observe(batch)
		if err := r.sinks.Write(ctx, ts, batch); err != nil {
			return r.result(log), fmt.Errorf("sink write at %d: %w", ts, err)
		}
		r.bot.OnTick(ts, batch, r.client)

		if r.logInterval > 0 && (!logged || ts-lastLog >= r.logInterval) {
			pos, cash := r.pnl.snapshot()
			r.log.Info("pnl",
				zap.Int64("ts", ts),
				zap.String("position", pos.String()),
				zap.String("cash", cash.String()),
				zap.Int("open_orders", len(r.client.Open())),
			)
			lastLog, logged = ts, true
		}
	}

	res := r.result(log)
	r.log.Info("run_finished",
		zap.Int("updates", res.Summary.Updates),
		zap.Int("trades", res.Summary.Trades),
		zap.String("base", res.Summary.Base),
		zap.String("quote", res.Summary.Quote),
		zap.Float64("worth", res.Summary.Worth),
	)
	return res, nil
}

func (r *Runner) result(log []engine.Notification) Result {
	rows := analytics.PnL(log, r.fee)
	trades := analytics.Trades(log)
	return Result{
		Notifications: log,
		PnL:           rows,
		Trades:        trades,
		Summary:       analytics.Summarize(rows, trades),
	}
}

// pnlTracker keeps a running fee-free position for progress logging.
type pnlTracker struct {
	position decimal.Decimal
	cash     decimal.Decimal
}

func (p *pnlTracker) observe(batch []engine.Notification) {
	for _, n := range batch {
		tr, ok := n.(engine.OwnTrade)
		if !ok {
			continue
		}
		size := decimal.NewFromFloat(tr.Size)
		notional := decimal.NewFromFloat(tr.Price).Mul(size)
		if tr.Side == engine.Buy {
			p.position = p.position.Add(size)
			p.cash = p.cash.Sub(notional)
		} else {
			p.position = p.position.Sub(size)
			p.cash = p.cash.Add(notional)
		}
	}
}

func (p *pnlTracker) snapshot() (decimal.Decimal, decimal.Decimal) {
	return p.position, p.cash
}
