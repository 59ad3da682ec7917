package errchan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"tradedash/internal/notify"
	"tradedash/internal/remote"
	"tradedash/internal/store"
	"tradedash/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"network", &remote.NetworkError{Op: "status", Err: errors.New("connection refused")}, types.ErrorKindNetwork},
		{"wrapped network", fmt.Errorf("refresh: %w", &remote.NetworkError{Op: "trades", Err: context.DeadlineExceeded}), types.ErrorKindNetwork},
		{"conflict", &remote.ServerError{Op: "start", Status: 400, Message: remote.MessageAlreadyRunning}, types.ErrorKindConflict},
		{"conflict code", &remote.ServerError{Op: "start", Status: 409, Code: remote.CodeAlreadyRunning}, types.ErrorKindConflict},
		{"bad request", &remote.ServerError{Op: "stop", Status: 400, Message: "Bot is not running."}, types.ErrorKindValidation},
		{"server fault", &remote.ServerError{Op: "backtest", Status: 500}, types.ErrorKindUnknown},
		{"decode", &remote.DecodeError{Op: "status", Err: errors.New("missing bot_running")}, types.ErrorKindUnknown},
		{"local validation", &types.ValidationError{Field: "symbol", Reason: "is required"}, types.ErrorKindValidation},
		{"other", errors.New("boom"), types.ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	srvErr := &remote.ServerError{Op: "backtest", Status: 500, Message: "Exchange unavailable"}
	if got := Message(srvErr, "Error running backtest."); got != "Exchange unavailable" {
		t.Errorf("Expected server message, got %q", got)
	}

	bare := &remote.ServerError{Op: "backtest", Status: 500}
	if got := Message(bare, "Error running backtest."); got != "Error running backtest." {
		t.Errorf("Expected fallback, got %q", got)
	}

	netErr := &remote.NetworkError{Op: "start", Err: errors.New("refused")}
	if got := Message(netErr, "Error starting bot."); got != "Error starting bot." {
		t.Errorf("Expected fallback for network error, got %q", got)
	}
}

func TestChannel_ReportAndClear(t *testing.T) {
	s := store.New()
	var notices []types.Notice
	n := notify.NotifierFunc(func(ctx context.Context, notice types.Notice) {
		notices = append(notices, notice)
	})
	ch := New(s, n, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, ok := ch.Current(); ok {
		t.Fatal("Expected no current error")
	}

	ch.Report(context.Background(), &remote.NetworkError{Op: "start", Err: errors.New("refused")}, "Error starting bot.")
	ch.Report(context.Background(), &remote.ServerError{Op: "stop", Status: 400, Message: "Bot is not running."}, "Error stopping bot.")

	cur, ok := ch.Current()
	if !ok {
		t.Fatal("Expected current error")
	}
	if cur.Message != "Bot is not running." || cur.Kind != types.ErrorKindValidation {
		t.Errorf("Expected last report to win, got %+v", cur)
	}
	if len(notices) != 2 || notices[1].Level != types.NoticeError {
		t.Errorf("Expected two error notices, got %+v", notices)
	}

	ch.Clear()
	if _, ok := ch.Current(); ok {
		t.Error("Expected error cleared")
	}
	if s.Snapshot().Error != nil {
		t.Error("Expected snapshot error cleared")
	}
}
