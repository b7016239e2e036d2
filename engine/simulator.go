package engine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// ErrExhausted is returned by Tick once every input has been consumed and no
// notification is left to deliver.
var ErrExhausted = errors.New("simulation exhausted")

// Config holds the latency model. Both latencies are in the same unit as the
// market-data timestamps (nanoseconds for the bundled loaders).
type Config struct {
	// ExecutionLatency delays every action before the exchange sees it.
	ExecutionLatency int64
	// MarketDataLatency delays own trades before the strategy sees them.
	MarketDataLatency int64
}

// ProgressReporter is told how many market-data updates were consumed.
// *progressbar.ProgressBar satisfies it.
type ProgressReporter interface {
	Add(n int) error
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithLogger routes simulator debug output to l.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProgress reports market-data consumption to p.
func WithProgress(p ProgressReporter) Option {
	return func(s *Simulator) { s.progress = p }
}

// Simulator replays market data against strategy actions under latency.
// It is not safe for concurrent use; one goroutine drives Tick, Place and
// Cancel.
type Simulator struct {
	cfg Config

	md     []MarketData
	mdHead int

	actions    []Action
	actionHead int

	updates *KeyedQueue[Notification]
	resting *restingBook

	// current is the last market-data update applied.
	current *MarketData
	// pending is the latest placed order not yet tried aggressively.
	pending *Order

	nextOrderID uint64
	nextTradeID uint64

	bestBid float64
	bestAsk float64
	// lastTrade holds the tape price seen this step, indexed by aggressor side.
	lastTrade [2]float64

	log      *zap.Logger
	progress ProgressReporter
}

// NewSimulator builds a simulator over md, which must be ordered as the
// marketdata loaders order it.
func NewSimulator(md []MarketData, cfg Config, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:     cfg,
		md:      md,
		updates: NewKeyedQueue[Notification](),
		resting: newRestingBook(),
		bestBid: math.Inf(-1),
		bestAsk: math.Inf(1),
		log:     zap.NewNop(),
	}
	s.clearLastTrade()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Place submits a limit order at ts. The exchange sees it at
// ts + ExecutionLatency. The returned order carries the id needed to cancel it.
func (s *Simulator) Place(ts int64, size float64, side Side, price float64, kind OrderKind) Order {
	o := Order{
		PlaceTS:    ts,
		ExchangeTS: ts + s.cfg.ExecutionLatency,
		ID:         s.nextOrderID,
		Side:       side,
		Size:       size,
		Price:      price,
		Kind:       kind,
	}
	s.nextOrderID++
	s.actions = append(s.actions, o)
	return o
}

// Cancel submits a cancel for orderID at ts. It removes the order whether it
// is resting or still waiting for its first market-data step. Unknown or
// already resolved ids are ignored when the cancel reaches the exchange.
func (s *Simulator) Cancel(ts int64, orderID uint64) CancelOrder {
	c := CancelOrder{ExchangeTS: ts + s.cfg.ExecutionLatency, OrderID: orderID}
	s.actions = append(s.actions, c)
	return c
}

// Tick advances the simulation until the earliest pending notification can
// be delivered, then returns every notification sharing that receive time.
func (s *Simulator) Tick() (int64, []Notification, error) {
	for {
		mdTime := s.marketDataTime()
		actionTime := s.actionTime()
		if mdTime == NoTime && actionTime == NoTime {
			break
		}
		// Nothing still queued can change what is already due.
		if s.updates.MinKey() < min(mdTime, actionTime) {
			break
		}

		mdStep := mdTime <= actionTime
		if mdStep {
			s.applyMarketData(s.popMarketData())
		}
		// Equal times apply both before matching.
		if actionTime <= mdTime {
			s.applyAction(s.popAction())
		}
		if mdStep {
			s.executePending()
			s.executeResting()
		}
		s.clearLastTrade()
	}

	ts, batch, ok := s.updates.PopMin()
	if !ok {
		return NoTime, nil, fmt.Errorf("tick: %w", ErrExhausted)
	}
	return ts, batch, nil
}

// Exhausted reports whether Tick has nothing left to return. Actions still
// queued after the last market-data update cannot produce a notification.
func (s *Simulator) Exhausted() bool {
	return s.marketDataTime() == NoTime && s.updates.Len() == 0
}

// BestBidAsk returns the touch as of the last applied snapshot.
func (s *Simulator) BestBidAsk() (bid, ask float64) {
	return s.bestBid, s.bestAsk
}

// Resting returns the resting orders in submission order.
func (s *Simulator) Resting() []Order {
	return s.resting.orders()
}

// IsResting reports whether id is resting on the simulated exchange.
func (s *Simulator) IsResting(id uint64) bool {
	return s.resting.contains(id)
}

// Remaining is the number of market-data updates not yet applied.
func (s *Simulator) Remaining() int {
	return len(s.md) - s.mdHead
}

func (s *Simulator) marketDataTime() int64 {
	if s.mdHead >= len(s.md) {
		return NoTime
	}
	return s.md[s.mdHead].ExchangeTS
}

func (s *Simulator) actionTime() int64 {
	if s.actionHead >= len(s.actions) {
		return NoTime
	}
	return s.actions[s.actionHead].ExchangeTime()
}

func (s *Simulator) popMarketData() MarketData {
	md := s.md[s.mdHead]
	s.mdHead++
	if s.progress != nil {
		_ = s.progress.Add(1)
	}
	return md
}

func (s *Simulator) popAction() Action {
	a := s.actions[s.actionHead]
	s.actions[s.actionHead] = nil
	s.actionHead++
	// Compact when the consumed prefix exceeds half the backing array.
	if s.actionHead >= len(s.actions)/2 {
		s.actions = append(s.actions[:0], s.actions[s.actionHead:]...)
		s.actionHead = 0
	}
	return a
}

func (s *Simulator) applyMarketData(md MarketData) {
	s.current = &md
	s.bestBid, s.bestAsk = UpdateBest(s.bestBid, s.bestAsk, md)
	if md.Trade != nil {
		s.lastTrade[md.Trade.Side] = md.Trade.Price
	}
	s.updates.Push(md.ReceiveTS, md)
}

func (s *Simulator) applyAction(a Action) {
	switch a := a.(type) {
	case Order:
		if s.pending != nil {
			s.log.Debug("pending_order_replaced",
				zap.Uint64("dropped_order_id", s.pending.ID),
				zap.Uint64("order_id", a.ID))
		}
		s.pending = &a
	case CancelOrder:
		switch {
		case s.pending != nil && s.pending.ID == a.OrderID:
			s.pending = nil
			s.log.Debug("pending_order_cancelled", zap.Uint64("order_id", a.OrderID))
		case s.resting.remove(a.OrderID):
		default:
			s.log.Debug("cancel_ignored", zap.Uint64("order_id", a.OrderID))
		}
	default:
		panic(fmt.Sprintf("engine: unknown action %T", a))
	}
}

func (s *Simulator) clearLastTrade() {
	s.lastTrade[Buy] = math.Inf(-1)
	s.lastTrade[Sell] = math.Inf(1)
}
