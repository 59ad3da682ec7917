package backtest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tradedash/internal/notify"
	"tradedash/internal/types"
)

const (
	FallbackBacktest = "Error running backtest."
	SuccessMessage   = "Backtest completed successfully."
)

// ErrSuperseded is returned for a response that arrived after a newer submission
var ErrSuperseded = errors.New("backtest superseded by a newer submission")

// Runner submits backtests to the remote engine
type Runner interface {
	RunBacktest(ctx context.Context, cfg types.BotConfig) (types.BacktestResultSet, error)
}

// Sink stores the latest results with their derived series
type Sink interface {
	SetBacktest(results types.BacktestResultSet, series types.ProfitSeries)
}

// Reporter receives failures
type Reporter interface {
	Report(ctx context.Context, err error, fallback string) types.UiError
	Clear()
}

// Orchestrator runs backtests and publishes their results. Only the response to
// the most recent submission is ever applied.
type Orchestrator struct {
	runner   Runner
	sink     Sink
	errs     Reporter
	notifier notify.Notifier
	logger   *slog.Logger

	seq     atomic.Uint64
	applyMu sync.Mutex
}

// NewOrchestrator creates a backtest orchestrator
func NewOrchestrator(runner Runner, sink Sink, errs Reporter, notifier notify.Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		sink:     sink,
		errs:     errs,
		notifier: notifier,
		logger:   logger,
	}
}

// Run submits cfg and waits for the result. On success the stored results are
// replaced wholesale; on failure they are left untouched.
func (o *Orchestrator) Run(ctx context.Context, cfg types.BotConfig) (types.BacktestResultSet, error) {
	if err := cfg.Validate(); err != nil {
		o.errs.Report(ctx, err, FallbackBacktest)
		return types.BacktestResultSet{}, err
	}

	id := o.seq.Add(1)
	start := time.Now()

	o.logger.Info("[BACKTEST] Submitting backtest",
		"seq", id,
		"symbol", cfg.Symbol,
		"historical_days", cfg.HistoricalDays,
		"timeframes", cfg.Timeframes,
		"initial_capital", cfg.InitialCapital,
	)

	results, err := o.runner.RunBacktest(ctx, cfg)

	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	if latest := o.seq.Load(); id != latest {
		o.logger.Info("[BACKTEST] Dropping stale response",
			"seq", id,
			"latest", latest,
			"failed", err != nil,
		)
		return types.BacktestResultSet{}, ErrSuperseded
	}

	if err != nil {
		o.errs.Report(ctx, err, FallbackBacktest)
		return types.BacktestResultSet{}, err
	}

	series := DeriveProfitSeries(results)
	o.sink.SetBacktest(results, series)
	o.errs.Clear()
	if o.notifier != nil {
		o.notifier.Notify(ctx, types.NewNotice(types.NoticeSuccess, SuccessMessage))
	}

	o.logger.Info("[BACKTEST] Backtest completed",
		"seq", id,
		"timeframes", results.Len(),
		"duration", time.Since(start),
	)

	return results, nil
}

// DeriveProfitSeries yields one point per timeframe in response order
func DeriveProfitSeries(results types.BacktestResultSet) types.ProfitSeries {
	series := types.ProfitSeries{
		Labels: make([]string, 0, results.Len()),
		Values: make([]float64, 0, results.Len()),
	}
	for _, tf := range results.Timeframes {
		series.Labels = append(series.Labels, tf.Timeframe)
		series.Values = append(series.Values, tf.Profit)
	}
	return series
}
