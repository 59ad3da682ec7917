package results

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"tradedash/internal/errchan"
	"tradedash/internal/notify"
	"tradedash/internal/remote"
	"tradedash/internal/store"
	"tradedash/internal/types"
)

type fakeSource struct {
	trades func(ctx context.Context) (types.TradeResponse, error)
	profit func(ctx context.Context) (types.ProfitResponse, error)
}

func (f *fakeSource) GetTrades(ctx context.Context) (types.TradeResponse, error) {
	return f.trades(ctx)
}

func (f *fakeSource) GetProfit(ctx context.Context) (types.ProfitResponse, error) {
	return f.profit(ctx)
}

func newTestAggregator(src Source) (*Aggregator, *store.Store, *[]types.Notice) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.New()
	var mu sync.Mutex
	notices := &[]types.Notice{}
	n := notify.NotifierFunc(func(ctx context.Context, notice types.Notice) {
		mu.Lock()
		*notices = append(*notices, notice)
		mu.Unlock()
	})
	errs := errchan.New(s, n, logger)
	return NewAggregator(src, s, errs, n, logger), s, notices
}

func trade(side types.TradeSide, price float64) types.Trade {
	return types.Trade{Type: side, Price: price}
}

func TestAggregator_BothSucceed(t *testing.T) {
	src := &fakeSource{
		trades: func(ctx context.Context) (types.TradeResponse, error) {
			return types.TradesByTimeframe(
				types.TimeframeTrades{Timeframe: "5m", Trades: []types.Trade{trade(types.SideBuy, 1), trade(types.SideSell, 2)}},
				types.TimeframeTrades{Timeframe: "1h", Trades: []types.Trade{trade(types.SideBuy, 3)}},
			), nil
		},
		profit: func(ctx context.Context) (types.ProfitResponse, error) {
			return types.ProfitResponse{Profits: []float64{100, 50}}, nil
		},
	}
	a, s, notices := newTestAggregator(src)
	s.SetError(&types.UiError{Message: "old", Kind: types.ErrorKindNetwork})

	out := a.Fetch(context.Background())
	if !out.OK() {
		t.Fatalf("Unexpected errors: %v", out.Err())
	}

	snap := s.Snapshot()
	if len(snap.Trades) != 3 || snap.Trades[0].Price != 1 || snap.Trades[2].Price != 3 {
		t.Errorf("Expected 3 trades in response order, got %+v", snap.Trades)
	}
	if strings.Join(snap.ProfitSeries.Labels, ",") != "Timeframe 1,Timeframe 2" {
		t.Errorf("Expected positional labels, got %v", snap.ProfitSeries.Labels)
	}
	if snap.Error != nil {
		t.Errorf("Expected error cleared, got %+v", snap.Error)
	}
	if len(*notices) != 1 || (*notices)[0].Message != SuccessMessage {
		t.Errorf("Expected one success notice, got %+v", *notices)
	}
}

func TestAggregator_RequestsRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	gate := make(chan struct{})
	go func() {
		started.Wait()
		close(gate)
	}()

	wait := func(ctx context.Context) error {
		started.Done()
		select {
		case <-gate:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("other request never started")
		}
	}

	src := &fakeSource{
		trades: func(ctx context.Context) (types.TradeResponse, error) {
			return types.FlatTrades(nil), wait(ctx)
		},
		profit: func(ctx context.Context) (types.ProfitResponse, error) {
			return types.ProfitResponse{Profits: []float64{}}, wait(ctx)
		},
	}
	a, _, _ := newTestAggregator(src)

	if out := a.Fetch(context.Background()); !out.OK() {
		t.Fatalf("Expected both requests in flight together, got %v", out.Err())
	}
}

func TestAggregator_TradesFailProfitApplied(t *testing.T) {
	src := &fakeSource{
		trades: func(ctx context.Context) (types.TradeResponse, error) {
			return types.TradeResponse{}, &remote.NetworkError{Op: remote.OpTrades, Err: errors.New("refused")}
		},
		profit: func(ctx context.Context) (types.ProfitResponse, error) {
			return types.ProfitResponse{Profits: []float64{7}}, nil
		},
	}
	a, s, notices := newTestAggregator(src)
	s.SetTrades([]types.Trade{trade(types.SideBuy, 9)})

	out := a.Fetch(context.Background())
	if out.TradesErr == nil || out.ProfitErr != nil {
		t.Fatalf("Unexpected outcome: %+v", out)
	}

	snap := s.Snapshot()
	if snap.ProfitSeries.Len() != 1 || snap.ProfitSeries.Values[0] != 7 {
		t.Errorf("Expected profit applied despite trades failure, got %+v", snap.ProfitSeries)
	}
	if len(snap.Trades) != 1 || snap.Trades[0].Price != 9 {
		t.Errorf("Expected previous trades kept, got %+v", snap.Trades)
	}
	if snap.Error == nil || snap.Error.Message != FallbackResults || snap.Error.Kind != types.ErrorKindNetwork {
		t.Errorf("Expected network error with fallback, got %+v", snap.Error)
	}
	for _, n := range *notices {
		if n.Message == SuccessMessage {
			t.Error("Success notice must not be emitted on partial failure")
		}
	}
}

func TestAggregator_ProfitFailTradesApplied(t *testing.T) {
	src := &fakeSource{
		trades: func(ctx context.Context) (types.TradeResponse, error) {
			return types.FlatTrades([]types.Trade{trade(types.SideSell, 4)}), nil
		},
		profit: func(ctx context.Context) (types.ProfitResponse, error) {
			return types.ProfitResponse{}, &remote.ServerError{Op: remote.OpProfit, Status: 500, Message: "db locked"}
		},
	}
	a, s, _ := newTestAggregator(src)

	a.Fetch(context.Background())

	snap := s.Snapshot()
	if len(snap.Trades) != 1 || snap.Trades[0].Price != 4 {
		t.Errorf("Expected trades applied, got %+v", snap.Trades)
	}
	if snap.Error == nil || snap.Error.Message != "db locked" {
		t.Errorf("Expected server message, got %+v", snap.Error)
	}
}

func TestAggregator_EmptyResults(t *testing.T) {
	src := &fakeSource{
		trades: func(ctx context.Context) (types.TradeResponse, error) {
			return types.FlatTrades(nil), nil
		},
		profit: func(ctx context.Context) (types.ProfitResponse, error) {
			return types.ProfitResponse{Profits: []float64{}}, nil
		},
	}
	a, s, _ := newTestAggregator(src)

	if out := a.Fetch(context.Background()); !out.OK() {
		t.Fatalf("Unexpected errors: %v", out.Err())
	}
	snap := s.Snapshot()
	if snap.Trades == nil || len(snap.Trades) != 0 || snap.ProfitSeries.Len() != 0 {
		t.Errorf("Expected empty results, got %+v", snap)
	}
}

func TestAggregator_StaleFetchDropped(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	src := &fakeSource{
		trades: func(ctx context.Context) (types.TradeResponse, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				<-release
				return types.FlatTrades([]types.Trade{trade(types.SideBuy, 1)}), nil
			}
			return types.FlatTrades([]types.Trade{trade(types.SideBuy, 2)}), nil
		},
		profit: func(ctx context.Context) (types.ProfitResponse, error) {
			return types.ProfitResponse{Profits: []float64{1}}, nil
		},
	}
	a, s, _ := newTestAggregator(src)

	done := make(chan Outcome, 1)
	go func() { done <- a.Fetch(context.Background()) }()

	// wait until the first trades request is in flight
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	a.Fetch(context.Background())
	close(release)

	old := <-done
	if !errors.Is(old.TradesErr, ErrSuperseded) {
		t.Errorf("Expected stale trades to be superseded, got %v", old.TradesErr)
	}
	if snap := s.Snapshot(); len(snap.Trades) != 1 || snap.Trades[0].Price != 2 {
		t.Errorf("Expected newer trades to remain, got %+v", snap.Trades)
	}
}

func TestSeriesFromResponse(t *testing.T) {
	keyed := SeriesFromResponse(types.ProfitResponse{Profits: []float64{1, 2}, Labels: []string{"5m", "1h"}})
	if strings.Join(keyed.Labels, ",") != "5m,1h" {
		t.Errorf("Expected engine labels, got %v", keyed.Labels)
	}

	positional := SeriesFromResponse(types.ProfitResponse{Profits: []float64{1, 2, 3}})
	if strings.Join(positional.Labels, ",") != "Timeframe 1,Timeframe 2,Timeframe 3" {
		t.Errorf("Expected positional labels, got %v", positional.Labels)
	}
	if len(positional.Labels) != len(positional.Values) {
		t.Error("Labels and values must align")
	}
}
