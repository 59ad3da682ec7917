package mockengine

import (
	"math"
	"time"

	"tradedash/internal/types"
)

// engineDateLayout is how the engine formats trade dates
const engineDateLayout = "2006-01-02 15:04:05"

// wireTrade mirrors the engine's trade records, capitalized keys included
type wireTrade struct {
	Type   string   `json:"Type"`
	Price  float64  `json:"Price"`
	Date   string   `json:"Date"`
	Profit *float64 `json:"Profit,omitempty"`
	Reason string   `json:"Reason"`
}

// timeframeRun is the canned outcome for one timeframe
type timeframeRun struct {
	Timeframe string      `json:"timeframe"`
	Trades    []wireTrade `json:"trades"`
	Profit    float64     `json:"profit"`
}

// simulateRun produces deterministic trades for cfg. There is no strategy:
// prices and exits follow a fixed pattern derived from the timeframe index.
func simulateRun(cfg types.BotConfig, now time.Time) []timeframeRun {
	base := basePrice(cfg.Symbol)
	from := now.Add(-time.Duration(cfg.HistoricalDays) * 24 * time.Hour)

	runs := make([]timeframeRun, 0, len(cfg.Timeframes))
	for i, tf := range cfg.Timeframes {
		interval := intervalDuration(tf)
		roundTrips := 2 + i%2

		run := timeframeRun{Timeframe: tf, Trades: []wireTrade{}}
		for k := 0; k < roundTrips; k++ {
			entryAt := from.Add(time.Duration(k+1) * 12 * interval)
			exitAt := entryAt.Add(6 * interval)

			buy := round2(base * (1 + 0.002*float64((k*7+i*3)%10-5)))
			pct := 0.01 * float64((k+i)%4-1)
			sell := round2(buy * (1 + pct))

			qty := cfg.InitialCapital / buy
			profit := round2(qty * (sell - buy))

			reason := "Signal"
			switch {
			case k == roundTrips-1:
				reason = "End"
			case pct > 0:
				reason = "Take-Profit"
			case pct < 0:
				reason = "Stop-Loss"
			}

			run.Trades = append(run.Trades,
				wireTrade{Type: "Buy", Price: buy, Date: entryAt.Format(engineDateLayout), Reason: "Signal"},
				wireTrade{Type: "Sell", Price: sell, Date: exitAt.Format(engineDateLayout), Profit: &profit, Reason: reason},
			)
			run.Profit += profit
		}
		run.Profit = round2(run.Profit)
		runs = append(runs, run)
	}
	return runs
}

// basePrice picks a plausible starting price for common pairs
func basePrice(symbol string) float64 {
	base, _ := parseSymbol(symbol)
	switch base {
	case "BTC":
		return 65000.0
	case "ETH":
		return 3500.0
	case "BNB":
		return 580.0
	default:
		return 100.0
	}
}

// parseSymbol extracts base and quote assets from a trading pair
func parseSymbol(symbol string) (base, quote string) {
	quotes := []string{"USDT", "BUSD", "USDC", "USD", "BTC", "ETH"}

	for _, q := range quotes {
		if len(symbol) > len(q) && symbol[len(symbol)-len(q):] == q {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, "USDT"
}

// intervalDuration maps a kline interval to its duration, defaulting to 15m
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
