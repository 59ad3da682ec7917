package lifecycle

import (
	"context"
	"log/slog"

	"tradedash/internal/notify"
	"tradedash/internal/remote"
	"tradedash/internal/types"
)

// Fallback messages shown when the engine gives no message of its own
const (
	FallbackStatus = "Error fetching bot status."
	FallbackStart  = "Error starting bot."
	FallbackStop   = "Error stopping bot."

	defaultStartedMessage = "Bot started successfully."
	defaultStoppedMessage = "Bot stopped successfully."
)

// Action names recorded while a lifecycle call is in flight
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Engine is the subset of the remote engine the controller drives
type Engine interface {
	GetStatus(ctx context.Context) (types.BotStatus, error)
	Start(ctx context.Context, cfg types.BotConfig) (string, error)
	Stop(ctx context.Context) (string, error)
}

// State is where the controller keeps the running flag. The controller is its
// only writer.
type State interface {
	Running() bool
	Pending() string
	SetRunning(running bool)
	BeginAction(action string) error
	EndAction()
}

// Reporter receives failures
type Reporter interface {
	Report(ctx context.Context, err error, fallback string) types.UiError
	Clear()
}

// Controller mirrors the remote bot's lifecycle. The engine owns the truth; the
// local flag only changes on a successful status fetch or action response.
type Controller struct {
	engine   Engine
	state    State
	errs     Reporter
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewController creates a lifecycle controller
func NewController(engine Engine, state State, errs Reporter, notifier notify.Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		engine:   engine,
		state:    state,
		errs:     errs,
		notifier: notifier,
		logger:   logger,
	}
}

// Reconcile loads the engine's status once. The local flag is left alone on failure.
func (c *Controller) Reconcile(ctx context.Context) error {
	status, err := c.engine.GetStatus(ctx)
	if err != nil {
		c.errs.Report(ctx, err, FallbackStatus)
		return err
	}

	c.state.SetRunning(status.Running)
	c.logger.Info("[LIFECYCLE] Status reconciled", "running", status.Running)
	return nil
}

// Start asks the engine to start the bot. A duplicate-start conflict is not a
// failure: the engine is authoritative, so the bot is marked running and nil is
// returned.
func (c *Controller) Start(ctx context.Context, cfg types.BotConfig) error {
	if err := cfg.Validate(); err != nil {
		c.errs.Report(ctx, err, FallbackStart)
		return err
	}

	if err := c.state.BeginAction(ActionStart); err != nil {
		return err
	}
	defer c.state.EndAction()

	c.logger.Info("[LIFECYCLE] Starting bot",
		"symbol", cfg.Symbol,
		"timeframes", cfg.Timeframes,
	)

	msg, err := c.engine.Start(ctx, cfg)
	switch {
	case err == nil:
		c.state.SetRunning(true)
		c.errs.Clear()
		c.notify(ctx, types.NoticeSuccess, msg, defaultStartedMessage)
		c.logger.Info("[LIFECYCLE] Bot started", "message", msg)
		return nil

	case remote.IsAlreadyRunning(err):
		c.state.SetRunning(true)
		c.errs.Clear()
		c.notify(ctx, types.NoticeInfo, remote.ServerMessage(err), remote.MessageAlreadyRunning)
		c.logger.Info("[LIFECYCLE] Bot already running, state reconciled")
		return nil

	default:
		c.errs.Report(ctx, err, FallbackStart)
		return err
	}
}

// Stop asks the engine to stop the bot. On failure the running flag is unchanged.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.state.BeginAction(ActionStop); err != nil {
		return err
	}
	defer c.state.EndAction()

	c.logger.Info("[LIFECYCLE] Stopping bot")

	msg, err := c.engine.Stop(ctx)
	if err != nil {
		c.errs.Report(ctx, err, FallbackStop)
		return err
	}

	c.state.SetRunning(false)
	c.errs.Clear()
	c.notify(ctx, types.NoticeSuccess, msg, defaultStoppedMessage)
	c.logger.Info("[LIFECYCLE] Bot stopped", "message", msg)
	return nil
}

// Running returns the last known state
func (c *Controller) Running() bool {
	return c.state.Running()
}

// CanStart reports whether a start may be issued now
func (c *Controller) CanStart() bool {
	return !c.state.Running() && c.state.Pending() == ""
}

// CanStop reports whether a stop may be issued now
func (c *Controller) CanStop() bool {
	return c.state.Running() && c.state.Pending() == ""
}

func (c *Controller) notify(ctx context.Context, level types.NoticeLevel, msg, fallback string) {
	if c.notifier == nil {
		return
	}
	if msg == "" {
		msg = fallback
	}
	c.notifier.Notify(ctx, types.NewNotice(level, msg))
}
