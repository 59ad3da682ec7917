package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tradedash/internal/notify"
	"tradedash/internal/types"
)

const (
	FallbackResults = "Error fetching results."
	SuccessMessage  = "Results fetched successfully."
)

// ErrSuperseded marks a half whose response arrived after a newer fetch started
var ErrSuperseded = errors.New("results superseded by a newer fetch")

// Source provides trade and profit history
type Source interface {
	GetTrades(ctx context.Context) (types.TradeResponse, error)
	GetProfit(ctx context.Context) (types.ProfitResponse, error)
}

// Sink stores the two halves. Each half is written independently.
type Sink interface {
	SetTrades(trades []types.Trade)
	SetProfitSeries(series types.ProfitSeries)
}

// Reporter receives failures
type Reporter interface {
	Report(ctx context.Context, err error, fallback string) types.UiError
	Clear()
}

// Outcome records how each half of a fetch settled
type Outcome struct {
	Trades    []types.Trade
	TradesErr error
	Profit    types.ProfitSeries
	ProfitErr error
}

// OK reports whether both halves succeeded
func (o Outcome) OK() bool {
	return o.TradesErr == nil && o.ProfitErr == nil
}

// Err joins the errors of both halves
func (o Outcome) Err() error {
	return errors.Join(o.TradesErr, o.ProfitErr)
}

// Aggregator fetches trades and profit concurrently and merges them into state.
// A failure of one half never discards the other half's data.
type Aggregator struct {
	source   Source
	sink     Sink
	errs     Reporter
	notifier notify.Notifier
	logger   *slog.Logger

	tradesGen atomic.Uint64
	profitGen atomic.Uint64
	applyMu   sync.Mutex
}

// NewAggregator creates a results aggregator
func NewAggregator(source Source, sink Sink, errs Reporter, notifier notify.Notifier, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		source:   source,
		sink:     sink,
		errs:     errs,
		notifier: notifier,
		logger:   logger,
	}
}

// Fetch issues both requests, waits for both to settle, then applies each
// successful half to its own field and reports each failed half.
func (a *Aggregator) Fetch(ctx context.Context) Outcome {
	tradesID := a.tradesGen.Add(1)
	profitID := a.profitGen.Add(1)
	start := time.Now()

	var (
		out Outcome
		wg  sync.WaitGroup
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		resp, err := a.source.GetTrades(ctx)
		if err != nil {
			out.TradesErr = err
			return
		}
		out.Trades = resp.Normalize()
	}()

	go func() {
		defer wg.Done()
		resp, err := a.source.GetProfit(ctx)
		if err != nil {
			out.ProfitErr = err
			return
		}
		out.Profit = SeriesFromResponse(resp)
	}()

	wg.Wait()

	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	if tradesID != a.tradesGen.Load() {
		out.TradesErr = ErrSuperseded
	}
	if profitID != a.profitGen.Load() {
		out.ProfitErr = ErrSuperseded
	}

	a.settle(ctx, "trades", out.TradesErr, func() {
		a.sink.SetTrades(out.Trades)
	})
	a.settle(ctx, "profit", out.ProfitErr, func() {
		a.sink.SetProfitSeries(out.Profit)
	})

	if out.OK() {
		a.errs.Clear()
		if a.notifier != nil {
			a.notifier.Notify(ctx, types.NewNotice(types.NoticeSuccess, SuccessMessage))
		}
	}

	a.logger.Info("[RESULTS] Fetch settled",
		"trades", len(out.Trades),
		"profit_points", out.Profit.Len(),
		"trades_ok", out.TradesErr == nil,
		"profit_ok", out.ProfitErr == nil,
		"duration", time.Since(start),
	)

	return out
}

func (a *Aggregator) settle(ctx context.Context, half string, err error, apply func()) {
	switch {
	case err == nil:
		apply()
	case errors.Is(err, ErrSuperseded):
		a.logger.Info("[RESULTS] Dropping stale response", "half", half)
	default:
		a.errs.Report(ctx, err, FallbackResults)
	}
}

// SeriesFromResponse pairs profits with the engine's labels when it keyed them by
// timeframe, else with positional labels "Timeframe 1", "Timeframe 2", ...
func SeriesFromResponse(resp types.ProfitResponse) types.ProfitSeries {
	labels := resp.Labels
	if labels == nil || len(labels) != len(resp.Profits) {
		labels = PositionalLabels(len(resp.Profits))
	}
	series, err := types.NewProfitSeries(labels, resp.Profits)
	if err != nil {
		// lengths are equal by construction
		return types.ProfitSeries{Labels: []string{}, Values: []float64{}}
	}
	return series
}

// PositionalLabels returns n one-based timeframe labels
func PositionalLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("Timeframe %d", i+1)
	}
	return labels
}
