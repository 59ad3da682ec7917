package mockengine

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tradedash/internal/types"
)

// Engine is an in-process stand-in for the remote trading-bot engine. It honours
// the engine's HTTP contract with canned, deterministic results.
type Engine struct {
	logger *slog.Logger
	mu     sync.RWMutex

	running bool
	runs    []timeframeRun

	startRequests    []types.BotConfig
	backtestRequests []types.BotConfig

	latency    time.Duration
	failures   map[string]failure
	flatTrades bool
	clock      func() time.Time
	defaults   types.BotConfig
	persist    *StatePersistence
}

type failure struct {
	status  int
	message string
}

// Option configures the mock engine
type Option func(*Engine)

// WithLatency delays every response
func WithLatency(d time.Duration) Option {
	return func(e *Engine) {
		e.latency = d
	}
}

// WithFailure makes one endpoint ("start_bot", "backtest", ...) fail with status
// and a {"error": message} body.
func WithFailure(endpoint string, status int, message string) Option {
	return func(e *Engine) {
		e.failures[endpoint] = failure{status: status, message: message}
	}
}

// WithFlatTrades serves get_trades as a flat list instead of per timeframe
func WithFlatTrades() Option {
	return func(e *Engine) {
		e.flatTrades = true
	}
}

// WithClock fixes the reference time used for trade dates
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.clock = now
	}
}

// WithRunning sets the initial lifecycle state
func WithRunning(running bool) Option {
	return func(e *Engine) {
		e.running = running
	}
}

// WithStateFile persists the last run's results to path
func WithStateFile(path string, logger *slog.Logger) Option {
	return func(e *Engine) {
		if path != "" {
			e.persist = NewStatePersistence(path, logger)
		}
	}
}

// New creates a mock engine
func New(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger,
		failures: make(map[string]failure),
		clock:    func() time.Time { return time.Now().UTC().Truncate(time.Minute) },
		defaults: types.BotConfig{
			Symbol:         "ETHUSDT",
			HistoricalDays: 60,
			Timeframes:     []string{"5m", "1h"},
			InitialCapital: 10000,
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.persist != nil {
		runs, err := e.persist.Load()
		if err != nil {
			logger.Error("[MOCK] Failed to load stored results", "error", err)
		}
		e.runs = runs
	}

	return e
}

// Handler returns the engine's HTTP API rooted at /api
func (e *Engine) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bot_status", e.wrap("bot_status", e.handleStatus))
	mux.HandleFunc("POST /api/start_bot", e.wrap("start_bot", e.handleStart))
	mux.HandleFunc("POST /api/stop_bot", e.wrap("stop_bot", e.handleStop))
	mux.HandleFunc("POST /api/backtest", e.wrap("backtest", e.handleBacktest))
	mux.HandleFunc("GET /api/get_trades", e.wrap("get_trades", e.handleTrades))
	mux.HandleFunc("GET /api/get_profit", e.wrap("get_profit", e.handleProfit))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Mock engine is running."))
	})
	return mux
}

// wrap applies configured latency and failures before the real handler
func (e *Engine) wrap(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if e.latency > 0 {
			select {
			case <-time.After(e.latency):
			case <-r.Context().Done():
				return
			}
		}

		e.mu.RLock()
		f, failing := e.failures[endpoint]
		e.mu.RUnlock()
		if failing {
			e.logger.Error("[MOCK] Request failed (configured)",
				"endpoint", endpoint,
				"status", f.status,
				"error", f.message,
			)
			e.sendError(w, f.status, f.message)
			return
		}

		next(w, r)
	}
}

func (e *Engine) handleStatus(w http.ResponseWriter, r *http.Request) {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	e.sendJSON(w, http.StatusOK, map[string]bool{"bot_running": running})
}

func (e *Engine) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg, ok := e.decodeConfig(w, r)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn("[MOCK] Attempted to start bot, but it is already running")
		e.sendMessage(w, http.StatusBadRequest, "Bot is already running.")
		return
	}
	e.startRequests = append(e.startRequests, cfg.Clone())
	e.running = true
	e.runs = simulateRun(cfg, e.clock())
	runs := e.runs
	e.mu.Unlock()

	if e.persist != nil {
		if err := e.persist.Save(runs); err != nil {
			e.logger.Error("[MOCK] Failed to save results", "error", err)
		}
	}

	e.logger.Info("[MOCK] Bot started",
		"symbol", cfg.Symbol,
		"historical_days", cfg.HistoricalDays,
		"timeframes", cfg.Timeframes,
		"initial_capital", cfg.InitialCapital,
	)
	e.sendMessage(w, http.StatusOK, "Bot started successfully.")
}

func (e *Engine) handleStop(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.logger.Warn("[MOCK] Attempted to stop bot, but it is not running")
		e.sendMessage(w, http.StatusBadRequest, "Bot is not running.")
		return
	}
	e.running = false
	e.mu.Unlock()

	e.logger.Info("[MOCK] Bot stopped")
	e.sendMessage(w, http.StatusOK, "Bot stopped successfully.")
}

func (e *Engine) handleBacktest(w http.ResponseWriter, r *http.Request) {
	cfg, ok := e.decodeConfig(w, r)
	if !ok {
		return
	}

	e.mu.Lock()
	e.backtestRequests = append(e.backtestRequests, cfg.Clone())
	now := e.clock()
	e.mu.Unlock()

	runs := simulateRun(cfg, now)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, run := range runs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, run.Timeframe)
		body, _ := json.Marshal(struct {
			Trades []wireTrade `json:"trades"`
			Profit float64     `json:"profit"`
		}{run.Trades, run.Profit})
		buf.Write(body)
	}
	buf.WriteByte('}')

	e.logger.Info("[MOCK] Backtest completed",
		"symbol", cfg.Symbol,
		"timeframes", len(runs),
	)
	e.sendRaw(w, http.StatusOK, buf.Bytes())
}

func (e *Engine) handleTrades(w http.ResponseWriter, r *http.Request) {
	e.mu.RLock()
	runs := e.runs
	flat := e.flatTrades
	e.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteString(`{"trades":`)
	if flat {
		all := []wireTrade{}
		for _, run := range runs {
			all = append(all, run.Trades...)
		}
		body, _ := json.Marshal(all)
		buf.Write(body)
	} else {
		buf.WriteByte('{')
		for i, run := range runs {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, run.Timeframe)
			body, _ := json.Marshal(run.Trades)
			buf.Write(body)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')

	e.sendRaw(w, http.StatusOK, buf.Bytes())
}

func (e *Engine) handleProfit(w http.ResponseWriter, r *http.Request) {
	e.mu.RLock()
	profits := make([]float64, 0, len(e.runs))
	for _, run := range e.runs {
		profits = append(profits, run.Profit)
	}
	e.mu.RUnlock()

	e.sendJSON(w, http.StatusOK, map[string][]float64{"profits": profits})
}

// decodeConfig reads a bot config, filling omitted fields with engine defaults
func (e *Engine) decodeConfig(w http.ResponseWriter, r *http.Request) (types.BotConfig, bool) {
	cfg := e.defaults.Clone()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		e.sendError(w, http.StatusInternalServerError, "Invalid JSON: "+err.Error())
		return types.BotConfig{}, false
	}
	return cfg, true
}

// StartRequests returns the configs received on start_bot (for testing)
func (e *Engine) StartRequests() []types.BotConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.BotConfig, len(e.startRequests))
	copy(out, e.startRequests)
	return out
}

// BacktestRequests returns the configs received on backtest (for testing)
func (e *Engine) BacktestRequests() []types.BotConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.BotConfig, len(e.backtestRequests))
	copy(out, e.backtestRequests)
	return out
}

// Running reports the mock lifecycle state
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// SetRunning changes the lifecycle state behind the client's back (for testing)
func (e *Engine) SetRunning(running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = running
}

// SetFailure injects or, with status 0, clears a failure for endpoint
func (e *Engine) SetFailure(endpoint string, status int, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if status == 0 {
		delete(e.failures, endpoint)
		return
	}
	e.failures[endpoint] = failure{status: status, message: message}
}

func writeKey(buf *bytes.Buffer, key string) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}

// sendMessage answers with {"message": ...}
func (e *Engine) sendMessage(w http.ResponseWriter, status int, message string) {
	e.sendJSON(w, status, map[string]string{"message": message})
}

// sendError answers with {"error": ...}
func (e *Engine) sendError(w http.ResponseWriter, status int, message string) {
	e.sendJSON(w, status, map[string]string{"error": message})
}

func (e *Engine) sendJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	e.sendRaw(w, status, body)
}

func (e *Engine) sendRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
