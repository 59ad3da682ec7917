package store

import (
	"errors"
	"sync"

	"tradedash/internal/types"
)

// ErrActionInFlight is returned when a lifecycle action is already pending
var ErrActionInFlight = errors.New("another bot action is in flight")

// Snapshot is an immutable copy of the dashboard state
type Snapshot struct {
	Version        uint64                  `json:"version"`
	Running        bool                    `json:"running"`
	Pending        string                  `json:"pending,omitempty"`
	CanStart       bool                    `json:"can_start"`
	CanStop        bool                    `json:"can_stop"`
	Backtest       types.BacktestResultSet `json:"backtest_results"`
	BacktestSeries types.ProfitSeries      `json:"backtest_series"`
	Trades         []types.Trade           `json:"trades"`
	ProfitSeries   types.ProfitSeries      `json:"profit_series"`
	Error          *types.UiError          `json:"error"`
	Notice         *types.Notice           `json:"notice"`
}

// Store holds the dashboard state. Each field has exactly one writing component,
// noted on its setter; readers get deep copies through Snapshot.
type Store struct {
	mu sync.RWMutex

	version        uint64
	running        bool
	pending        string
	backtest       types.BacktestResultSet
	backtestSeries types.ProfitSeries
	trades         []types.Trade
	profitSeries   types.ProfitSeries
	uiErr          *types.UiError
	notice         *types.Notice

	hub *hub[Snapshot]
}

// New creates an empty store with the bot assumed stopped
func New() *Store {
	return &Store{
		trades: []types.Trade{},
		hub:    newHub[Snapshot](),
	}
}

// Running returns the last known lifecycle state
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Pending returns the lifecycle action in flight, or ""
func (s *Store) Pending() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// SetRunning is written by the lifecycle controller only
func (s *Store) SetRunning(running bool) {
	s.update(func() {
		s.running = running
	})
}

// BeginAction marks a lifecycle action as in flight. Written by the lifecycle
// controller only.
func (s *Store) BeginAction(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != "" {
		return ErrActionInFlight
	}
	s.pending = action
	s.publishLocked()
	return nil
}

// EndAction clears the in-flight marker
func (s *Store) EndAction() {
	s.update(func() {
		s.pending = ""
	})
}

// SetBacktest is written by the backtest orchestrator only. Results and their
// derived series are replaced together.
func (s *Store) SetBacktest(results types.BacktestResultSet, series types.ProfitSeries) {
	results = results.Clone()
	series = series.Clone()
	s.update(func() {
		s.backtest = results
		s.backtestSeries = series
	})
}

// SetTrades is written by the results aggregator only
func (s *Store) SetTrades(trades []types.Trade) {
	trades = types.CloneTrades(trades)
	if trades == nil {
		trades = []types.Trade{}
	}
	s.update(func() {
		s.trades = trades
	})
}

// SetProfitSeries is written by the results aggregator only
func (s *Store) SetProfitSeries(series types.ProfitSeries) {
	series = series.Clone()
	s.update(func() {
		s.profitSeries = series
	})
}

// SetError is written by the error channel only. nil clears the error.
func (s *Store) SetError(e *types.UiError) {
	if e != nil {
		cp := *e
		e = &cp
	}
	s.update(func() {
		s.uiErr = e
	})
}

// Error returns the current error, or nil
func (s *Store) Error() *types.UiError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.uiErr == nil {
		return nil
	}
	cp := *s.uiErr
	return &cp
}

// SetNotice is written by the store notifier only
func (s *Store) SetNotice(n types.Notice) {
	s.update(func() {
		s.notice = &n
	})
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers for a snapshot after every state change
func (s *Store) Subscribe(buffer int) *Subscription[Snapshot] {
	return s.hub.subscribe(buffer)
}

// Unsubscribe stops delivery and closes the subscription channel
func (s *Store) Unsubscribe(sub *Subscription[Snapshot]) {
	s.hub.unsubscribe(sub)
}

// Subscribers returns the number of active subscriptions
func (s *Store) Subscribers() int {
	return s.hub.len()
}

func (s *Store) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	s.publishLocked()
}

// publishLocked bumps the version and broadcasts while the write lock is held,
// so subscribers observe snapshots in version order.
func (s *Store) publishLocked() {
	s.version++
	s.hub.broadcast(s.snapshotLocked())
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:        s.version,
		Running:        s.running,
		Pending:        s.pending,
		CanStart:       !s.running && s.pending == "",
		CanStop:        s.running && s.pending == "",
		Backtest:       s.backtest.Clone(),
		BacktestSeries: s.backtestSeries.Clone(),
		Trades:         types.CloneTrades(s.trades),
		ProfitSeries:   s.profitSeries.Clone(),
	}
	if snap.Trades == nil {
		snap.Trades = []types.Trade{}
	}
	if s.uiErr != nil {
		e := *s.uiErr
		snap.Error = &e
	}
	if s.notice != nil {
		n := *s.notice
		snap.Notice = &n
	}
	return snap
}
