package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"replaysim/analytics"
	"replaysim/bots"
	"replaysim/engine"
	"replaysim/marketdata"
	"replaysim/sink"
)

const (
	defaultListenAddr = ":8080"
	defaultLobsPath   = "data/lobs.csv"
	defaultTradesPath = "data/trades.csv"
	streamBuffer      = 256
)

type server struct {
	ctx        context.Context
	md         []engine.MarketData
	redis      redis.Cmdable
	streamLen  int64
	log        *zap.Logger
	upgrader   websocket.Upgrader
	authToken  string
	corsOrigin string

	mu   sync.RWMutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type createResponse struct {
	ID string `json:"id"`
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	listenAddr := getEnv("LISTEN_ADDR", defaultListenAddr)
	lobsPath := getEnv("LOBS_PATH", defaultLobsPath)
	tradesPath := getEnv("TRADES_PATH", defaultTradesPath)
	authToken := os.Getenv("AUTH_TOKEN")
	corsOrigin := getEnv("CORS_ORIGIN", "*")
	window := marketdata.Window{
		Min: parseIntEnv(logger, "MIN_RECEIVE_TS", 0),
		Max: parseIntEnv(logger, "MAX_RECEIVE_TS", 0),
	}

	md, err := marketdata.Load(lobsPath, tradesPath, window)
	if err != nil {
		logger.Fatal("load_market_data", zap.Error(err))
	}
	logger.Info("market_data_loaded", zap.Int("updates", len(md)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(ctx, md, logger, authToken, corsOrigin)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis_ping", zap.String("addr", addr), zap.Error(err))
		}
		srv.redis = rdb
		srv.streamLen = parseIntEnv(logger, "REDIS_STREAM_MAXLEN", 100000)
	}

	httpSrv := &http.Server{Addr: listenAddr, Handler: srv.routes()}
	go func() {
		<-ctx.Done()
		_ = httpSrv.Shutdown(context.Background())
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("listen", zap.Error(err))
	}
	srv.wait()
}

func newServer(ctx context.Context, md []engine.MarketData, logger *zap.Logger, authToken, corsOrigin string) *server {
	return &server{
		ctx:        ctx,
		md:         md,
		log:        logger,
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		authToken:  authToken,
		corsOrigin: corsOrigin,
		runs:       make(map[string]*run),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/backtests", s.withCORS(s.withAuth(http.HandlerFunc(s.handleBacktests))))
	mux.Handle("/ws/backtests", s.withCORS(s.withAuth(http.HandlerFunc(s.handleBacktestStream))))
	return mux
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleBacktests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		s.handleStatus(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	bot, err := buildBot(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := buildConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fee := analytics.DefaultFee
	if req.Fee != nil {
		fee = *req.Fee
	}

	id := uuid.NewString()
	rn := newRun(id, s.log.With(zap.String("run_id", id)))
	s.mu.Lock()
	s.runs[id] = rn
	s.mu.Unlock()

	s.start(rn, bot, cfg, fee)
	writeJSON(w, http.StatusAccepted, createResponse{ID: id})
}

func (s *server) start(rn *run, bot bots.Bot, cfg engine.Config, fee float64) {
	log := s.log.With(zap.String("run_id", rn.id))
	sim := engine.NewSimulator(s.md, cfg, engine.WithLogger(log))
	opts := []bots.RunnerOption{
		bots.WithSink(rn),
		bots.WithLogger(log),
		bots.WithFee(fee),
	}
	if s.redis != nil {
		opts = append(opts, bots.WithSink(sink.NewRedisStream(s.redis, "backtest:"+rn.id, s.streamLen)))
	}
	runner := bots.NewRunner(sim, bot, opts...)

	log.Info("run_started",
		zap.Int64("execution_latency", cfg.ExecutionLatency),
		zap.Int64("market_data_latency", cfg.MarketDataLatency))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := runner.Run(s.ctx)
		if err != nil {
			log.Warn("run_failed", zap.Error(err))
		}
		rn.finish(res, err)
	}()
}

func (s *server) wait() { s.wg.Wait() }

func (s *server) lookup(r *http.Request) (*run, bool) {
	id := r.URL.Query().Get("id")
	s.mu.RLock()
	defer s.mu.RUnlock()
	rn, ok := s.runs[id]
	return rn, ok
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown backtest %q", r.URL.Query().Get("id")))
		return
	}
	writeJSON(w, http.StatusOK, rn.view())
}

func (s *server) handleBacktestStream(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown backtest %q", r.URL.Query().Get("id")))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	history, sub := rn.follow(streamBuffer)
	defer rn.hub.Unsubscribe(sub)

	for _, rec := range history {
		if err := conn.WriteJSON(outboundMessage{Type: rec.Kind, Data: rec}); err != nil {
			return
		}
	}
	for rec := range sub.ch {
		if err := conn.WriteJSON(outboundMessage{Type: rec.Kind, Data: rec}); err != nil {
			return
		}
	}
	// The hub closed the channel: either the run ended or this follower
	// fell behind and has to reconnect to replay from history.
	if sub.lagged {
		_ = conn.WriteJSON(outboundMessage{Type: "lagged", Data: rn.view()})
		return
	}
	_ = conn.WriteJSON(outboundMessage{Type: "done", Data: rn.view()})
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(log *zap.Logger, key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Warn("invalid_env",
			zap.String("key", key),
			zap.String("value", value),
			zap.Error(err),
			zap.Int64("fallback", defaultValue))
		return defaultValue
	}
	return parsed
}
