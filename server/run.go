package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"replaysim/analytics"
	"replaysim/bots"
	"replaysim/engine"
	"replaysim/sink"
)

type runStatus string

const (
	statusRunning   runStatus = "running"
	statusDone      runStatus = "done"
	statusFailed    runStatus = "failed"
	statusCancelled runStatus = "cancelled"
)

type backtestRequest struct {
	Strategy          string   `json:"strategy"`
	ExecutionLatency  int64    `json:"executionLatency"`
	MarketDataLatency int64    `json:"marketDataLatency"`
	Interval          int64    `json:"interval"`
	Lifetime          int64    `json:"lifetime"`
	Quantity          float64  `json:"quantity"`
	Kind              string   `json:"kind"`
	Seed              int64    `json:"seed"`
	TickSize          float64  `json:"tickSize"`
	RangeTicks        int64    `json:"rangeTicks"`
	Sides             []string `json:"sides"`
	Fee               *float64 `json:"fee"`
}

// run is one backtest: its record history and the hub live followers read.
type run struct {
	id  string
	log *zap.Logger

	mu      sync.Mutex
	status  runStatus
	err     error
	summary analytics.Summary
	history []sink.Record
	hub     *hub[sink.Record]
}

func newRun(id string, log *zap.Logger) *run {
	return &run{id: id, log: log, status: statusRunning, hub: newHub[sink.Record]()}
}

// Write records a delivered batch and forwards it to live followers.
func (r *run) Write(_ context.Context, ts int64, batch []engine.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range batch {
		rec := sink.NewRecord(ts, n)
		r.history = append(r.history, rec)
		if dropped := r.hub.Broadcast(rec); dropped > 0 {
			r.log.Warn("stream_follower_lagged",
				zap.Int("dropped", dropped),
				zap.Int("records", len(r.history)))
		}
	}
	return nil
}

func (r *run) Close() error { return nil }

// follow returns the history so far and a subscription for what follows,
// with nothing lost in between.
func (r *run) follow(buffer int) ([]sink.Record, *subscription[sink.Record]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]sink.Record, len(r.history))
	copy(history, r.history)
	return history, r.hub.Subscribe(buffer)
}

func (r *run) finish(res bots.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = res.Summary
	switch {
	case err == nil:
		r.status = statusDone
	case errors.Is(err, context.Canceled):
		r.status = statusCancelled
		r.err = err
	default:
		r.status = statusFailed
		r.err = err
	}
	r.hub.Close()
}

func (r *run) view() statusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := statusResponse{ID: r.id, Status: string(r.status), Records: len(r.history)}
	if r.status != statusRunning {
		summary := r.summary
		resp.Summary = &summary
	}
	if r.err != nil {
		resp.Error = r.err.Error()
	}
	return resp
}

type statusResponse struct {
	ID      string             `json:"id"`
	Status  string             `json:"status"`
	Records int                `json:"records"`
	Summary *analytics.Summary `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func buildBot(req backtestRequest) (bots.Bot, error) {
	if req.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}
	if req.Interval < 0 || req.Lifetime < 0 {
		return nil, errors.New("interval and lifetime must not be negative")
	}
	switch strings.ToLower(req.Strategy) {
	case "", "best", "best_quote":
		kind, err := engine.ParseOrderKind(req.Kind)
		if err != nil {
			return nil, err
		}
		bot := bots.NewBestQuoteBot(req.Interval, req.Lifetime, req.Quantity)
		bot.Kind = kind
		return bot, nil
	case "random", "random_quote":
		if req.TickSize <= 0 {
			return nil, errors.New("tickSize must be positive")
		}
		bot := bots.NewRandomQuoteBot(req.Seed, req.Interval, req.Lifetime, req.Quantity, req.TickSize)
		if req.RangeTicks > 0 {
			bot.RangeTicks = req.RangeTicks
		}
		for _, s := range req.Sides {
			side, err := engine.ParseSide(s)
			if err != nil {
				return nil, err
			}
			bot.Sides = append(bot.Sides, side)
		}
		return bot, nil
	default:
		return nil, fmt.Errorf("unknown strategy %s", req.Strategy)
	}
}

func buildConfig(req backtestRequest) (engine.Config, error) {
	if req.ExecutionLatency < 0 || req.MarketDataLatency < 0 {
		return engine.Config{}, errors.New("latencies must not be negative")
	}
	return engine.Config{
		ExecutionLatency:  req.ExecutionLatency,
		MarketDataLatency: req.MarketDataLatency,
	}, nil
}
