package remote

import (
	"context"

	"tradedash/internal/types"
)

// Engine is the contract of the remote trading-bot engine
type Engine interface {
	// GetStatus reports whether the bot is running
	GetStatus(ctx context.Context) (types.BotStatus, error)

	// Start starts the bot and returns the engine's confirmation message
	Start(ctx context.Context, cfg types.BotConfig) (string, error)

	// Stop stops the bot and returns the engine's confirmation message
	Stop(ctx context.Context) (string, error)

	// RunBacktest runs a backtest and returns per-timeframe results
	RunBacktest(ctx context.Context, cfg types.BotConfig) (types.BacktestResultSet, error)

	// GetTrades returns the stored trade history in whatever shape the engine uses
	GetTrades(ctx context.Context) (types.TradeResponse, error)

	// GetProfit returns the stored profit history
	GetProfit(ctx context.Context) (types.ProfitResponse, error)
}

// Endpoint paths relative to the base URL
const (
	DefaultBaseURL    = "http://localhost:5000/api"
	DefaultStatusPath = "bot_status"

	pathStartBot = "start_bot"
	pathStopBot  = "stop_bot"
	pathBacktest = "backtest"
	pathTrades   = "get_trades"
	pathProfit   = "get_profit"
)

// Operation names used in errors and logs
const (
	OpStatus   = "status"
	OpStart    = "start"
	OpStop     = "stop"
	OpBacktest = "backtest"
	OpTrades   = "trades"
	OpProfit   = "profit"
)
