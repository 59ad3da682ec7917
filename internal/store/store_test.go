package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tradedash/internal/types"
)

func TestStore_StartStopNeverBothEnabled(t *testing.T) {
	s := New()

	check := func(stage string) {
		snap := s.Snapshot()
		if snap.CanStart && snap.CanStop {
			t.Errorf("%s: start and stop both enabled", stage)
		}
	}

	snap := s.Snapshot()
	if !snap.CanStart || snap.CanStop {
		t.Errorf("Expected only start enabled initially, got %+v", snap)
	}

	if err := s.BeginAction("start"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	snap = s.Snapshot()
	if snap.CanStart || snap.CanStop {
		t.Errorf("Expected both disabled while pending, got start=%v stop=%v", snap.CanStart, snap.CanStop)
	}
	if err := s.BeginAction("stop"); !errors.Is(err, ErrActionInFlight) {
		t.Errorf("Expected ErrActionInFlight, got %v", err)
	}

	s.SetRunning(true)
	check("running while pending")
	s.EndAction()
	snap = s.Snapshot()
	if snap.CanStart || !snap.CanStop {
		t.Errorf("Expected only stop enabled when running, got %+v", snap)
	}
	check("running")
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := New()
	p := 5.0
	s.SetTrades([]types.Trade{{Type: types.SideBuy, Price: 1, Profit: &p}})

	snap := s.Snapshot()
	*snap.Trades[0].Profit = 100
	snap.Trades[0].Price = 100

	again := s.Snapshot()
	if again.Trades[0].Price != 1 || *again.Trades[0].Profit != 5 {
		t.Errorf("Snapshot mutation leaked into store: %+v", again.Trades[0])
	}
}

func TestStore_ErrorCopy(t *testing.T) {
	s := New()
	if s.Error() != nil {
		t.Fatal("Expected no error initially")
	}

	e := &types.UiError{Message: "Error starting bot.", Kind: types.ErrorKindUnknown}
	s.SetError(e)
	e.Message = "mutated"

	if got := s.Error(); got == nil || got.Message != "Error starting bot." {
		t.Errorf("Expected stored error to be a copy, got %+v", got)
	}

	s.SetError(nil)
	if s.Error() != nil {
		t.Error("Expected error cleared")
	}
}

func TestStore_SubscribeReceivesOrderedSnapshots(t *testing.T) {
	s := New()
	sub := s.Subscribe(8)
	defer s.Unsubscribe(sub)

	s.SetRunning(true)
	s.SetNotice(types.NewNotice(types.NoticeSuccess, "Bot started"))

	var last uint64
	for i := 0; i < 2; i++ {
		select {
		case snap := <-sub.C():
			if snap.Version <= last {
				t.Errorf("Expected increasing versions, got %d after %d", snap.Version, last)
			}
			last = snap.Version
		case <-time.After(time.Second):
			t.Fatal("Timeout waiting for snapshot")
		}
	}
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	sub := s.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.SetRunning(i%2 == 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Writers blocked on a slow subscriber")
	}

	s.Unsubscribe(sub)
	s.Unsubscribe(sub)
	if _, ok := <-sub.C(); ok {
		// buffered value may remain; drain it and expect close next
		if _, ok := <-sub.C(); ok {
			t.Error("Expected channel closed after unsubscribe")
		}
	}
	if s.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", s.Subscribers())
	}
}

func TestSnapshot_JSON(t *testing.T) {
	s := New()
	s.SetBacktest(types.BacktestResultSet{Timeframes: []types.TimeframeResult{
		{Timeframe: "5m", Profit: 10},
		{Timeframe: "1h", Profit: -5},
	}}, types.ProfitSeries{Labels: []string{"5m", "1h"}, Values: []float64{10, -5}})

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot JSON: %v", err)
	}
	want := `{"5m":{"profit":10,"trades":[]},"1h":{"profit":-5,"trades":[]}}`
	if string(decoded["backtest_results"]) != want {
		t.Errorf("Expected %s, got %s", want, decoded["backtest_results"])
	}
	if string(decoded["trades"]) != "[]" {
		t.Errorf("Expected empty trades array, got %s", decoded["trades"])
	}
	if string(decoded["error"]) != "null" {
		t.Errorf("Expected null error, got %s", decoded["error"])
	}
}
