package notify

import (
	"context"
	"log/slog"

	"tradedash/internal/types"
)

// Notifier delivers operator notices. Implementations never fail the caller;
// delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, n types.Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n types.Notice)

func (f NotifierFunc) Notify(ctx context.Context, n types.Notice) {
	f(ctx, n)
}

// Multi fans a notice out to every notifier in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n types.Notice) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notices to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n types.Notice) {
	level := slog.LevelInfo
	if n.Level == types.NoticeError {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "[NOTICE] "+n.Message, "level", n.Level)
}

// NoticeSink stores the latest notice
type NoticeSink interface {
	SetNotice(n types.Notice)
}

// StoreNotifier records the latest notice so dashboard clients can render it
type StoreNotifier struct {
	sink NoticeSink
}

// NewStoreNotifier creates a notifier writing into sink
func NewStoreNotifier(sink NoticeSink) *StoreNotifier {
	return &StoreNotifier{sink: sink}
}

func (s *StoreNotifier) Notify(_ context.Context, n types.Notice) {
	s.sink.SetNotice(n)
}
