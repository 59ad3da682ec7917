package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradedash/internal/types"
)

type noticeRecorder struct {
	notices []types.Notice
}

func (r *noticeRecorder) SetNotice(n types.Notice) {
	r.notices = append(r.notices, n)
}

func TestMulti_FansOut(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := &noticeRecorder{}

	var called int
	m := Multi{
		NewLogNotifier(logger),
		NewStoreNotifier(rec),
		nil,
		NotifierFunc(func(ctx context.Context, n types.Notice) { called++ }),
	}

	m.Notify(context.Background(), types.NewNotice(types.NoticeSuccess, "Backtest completed successfully."))

	if len(rec.notices) != 1 || rec.notices[0].Message != "Backtest completed successfully." {
		t.Errorf("Expected notice in store, got %+v", rec.notices)
	}
	if called != 1 {
		t.Errorf("Expected func notifier called once, got %d", called)
	}
	if !strings.Contains(logs.String(), "[NOTICE] Backtest completed successfully.") {
		t.Errorf("Expected notice logged, got %s", logs.String())
	}
}

func TestFormatNotice(t *testing.T) {
	got := FormatNotice(types.Notice{Level: types.NoticeInfo, Message: "Bot is already running."})
	if got != "[INFO] Bot is already running." {
		t.Errorf("Unexpected format: %s", got)
	}
}

func TestTelegramNotifier_SendsMessage(t *testing.T) {
	sent := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"dash","username":"dash_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			r.ParseForm()
			if r.FormValue("chat_id") != "42" {
				t.Errorf("Expected chat_id 42, got %s", r.FormValue("chat_id"))
			}
			sent <- r.FormValue("text")
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			t.Errorf("Unexpected telegram call %s", r.URL.Path)
			w.Write([]byte(`{"ok":false,"description":"unexpected"}`))
		}
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tn, err := NewTelegramNotifier("TOKEN", 42, logger, WithTelegramEndpoint(server.URL+"/bot%s/%s", server.Client()))
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tn.Run(ctx)

	tn.Notify(ctx, types.NewNotice(types.NoticeError, "Error starting bot."))

	select {
	case text := <-sent:
		if text != "[ERROR] Error starting bot." {
			t.Errorf("Unexpected message text: %s", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for sendMessage")
	}
}
