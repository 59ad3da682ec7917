package errchan

import (
	"context"
	"errors"
	"log/slog"

	"tradedash/internal/notify"
	"tradedash/internal/remote"
	"tradedash/internal/types"
)

// Sink holds the single current error
type Sink interface {
	SetError(e *types.UiError)
	Error() *types.UiError
}

// Channel turns failures into the operator-visible error. The last report wins.
type Channel struct {
	sink     Sink
	notifier notify.Notifier
	logger   *slog.Logger
}

// New creates an error channel writing into sink. notifier may be nil.
func New(sink Sink, notifier notify.Notifier, logger *slog.Logger) *Channel {
	return &Channel{
		sink:     sink,
		notifier: notifier,
		logger:   logger,
	}
}

// Classify maps an error onto the error taxonomy
func Classify(err error) types.ErrorKind {
	var (
		netErr *remote.NetworkError
		srvErr *remote.ServerError
		decErr *remote.DecodeError
		valErr *types.ValidationError
	)

	switch {
	case err == nil:
		return types.ErrorKindUnknown
	case errors.As(err, &valErr):
		return types.ErrorKindValidation
	case errors.As(err, &netErr):
		return types.ErrorKindNetwork
	case errors.As(err, &srvErr):
		if remote.IsAlreadyRunning(err) {
			return types.ErrorKindConflict
		}
		if srvErr.ClientError() {
			return types.ErrorKindValidation
		}
		return types.ErrorKindUnknown
	case errors.As(err, &decErr):
		return types.ErrorKindUnknown
	default:
		return types.ErrorKindUnknown
	}
}

// Message picks the text shown to the operator: the engine's own message when
// it sent one, the validation reason for rejected input, else fallback.
func Message(err error, fallback string) string {
	if msg := remote.ServerMessage(err); msg != "" {
		return msg
	}
	var valErr *types.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Error()
	}
	return fallback
}

// Report classifies err, makes it the current error and emits an error notice
func (c *Channel) Report(ctx context.Context, err error, fallback string) types.UiError {
	uiErr := types.UiError{
		Message: Message(err, fallback),
		Kind:    Classify(err),
	}

	c.sink.SetError(&uiErr)

	c.logger.Warn("[ERRCHAN] Operation failed",
		"kind", uiErr.Kind,
		"message", uiErr.Message,
		"error", err,
	)

	if c.notifier != nil {
		c.notifier.Notify(ctx, types.NewNotice(types.NoticeError, uiErr.Message))
	}

	return uiErr
}

// Clear removes the current error after a full success
func (c *Channel) Clear() {
	c.sink.SetError(nil)
}

// Current returns the current error, if any
func (c *Channel) Current() (types.UiError, bool) {
	e := c.sink.Error()
	if e == nil {
		return types.UiError{}, false
	}
	return *e, true
}
