package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ReservedTradesKey is never treated as a timeframe in a backtest response
const ReservedTradesKey = "trades"

// TimeframeResult is the outcome of a backtest for a single timeframe
type TimeframeResult struct {
	Timeframe string  `json:"timeframe"`
	Profit    float64 `json:"profit"`
	Trades    []Trade `json:"trades"`
}

// BacktestResultSet holds per-timeframe backtest results in response order
type BacktestResultSet struct {
	Timeframes []TimeframeResult
}

type timeframeBody struct {
	Profit *float64 `json:"profit"`
	Trades []Trade  `json:"trades"`
}

func (r *BacktestResultSet) UnmarshalJSON(b []byte) error {
	if firstByte(b) != '{' {
		return fmt.Errorf("backtest result must be an object, got %s", truncate(b, 32))
	}

	var results []TimeframeResult
	err := eachObjectField(b, func(key string, raw json.RawMessage) error {
		if key == ReservedTradesKey {
			return nil
		}

		var body timeframeBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("decode timeframe %q: %w", key, err)
		}
		if body.Profit == nil {
			return fmt.Errorf("timeframe %q: missing profit", key)
		}
		results = append(results, TimeframeResult{
			Timeframe: key,
			Profit:    *body.Profit,
			Trades:    body.Trades,
		})
		return nil
	})
	if err != nil {
		return err
	}

	r.Timeframes = results
	return nil
}

// MarshalJSON writes the set back as an object keyed by timeframe, keeping order
func (r BacktestResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tf := range r.Timeframes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tf.Timeframe)
		if err != nil {
			return nil, err
		}
		trades := tf.Trades
		if trades == nil {
			trades = []Trade{}
		}
		value, err := json.Marshal(struct {
			Profit float64 `json:"profit"`
			Trades []Trade `json:"trades"`
		}{tf.Profit, trades})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Len returns the number of timeframes
func (r BacktestResultSet) Len() int {
	return len(r.Timeframes)
}

// Get looks up a timeframe by key
func (r BacktestResultSet) Get(timeframe string) (TimeframeResult, bool) {
	for _, tf := range r.Timeframes {
		if tf.Timeframe == timeframe {
			return tf, true
		}
	}
	return TimeframeResult{}, false
}

// Clone deep-copies the set
func (r BacktestResultSet) Clone() BacktestResultSet {
	if r.Timeframes == nil {
		return BacktestResultSet{}
	}
	out := make([]TimeframeResult, len(r.Timeframes))
	for i, tf := range r.Timeframes {
		out[i] = TimeframeResult{
			Timeframe: tf.Timeframe,
			Profit:    tf.Profit,
			Trades:    CloneTrades(tf.Trades),
		}
	}
	return BacktestResultSet{Timeframes: out}
}

// CloneTrades copies a trade list including the optional profit pointers
func CloneTrades(trades []Trade) []Trade {
	if trades == nil {
		return nil
	}
	out := make([]Trade, len(trades))
	for i, t := range trades {
		if t.Profit != nil {
			p := *t.Profit
			t.Profit = &p
		}
		out[i] = t
	}
	return out
}

// ProfitSeries is a chart-ready label/value pairing
type ProfitSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// NewProfitSeries pairs labels with values; both must have the same length
func NewProfitSeries(labels []string, values []float64) (ProfitSeries, error) {
	if len(labels) != len(values) {
		return ProfitSeries{}, fmt.Errorf("profit series: %d labels for %d values", len(labels), len(values))
	}
	return ProfitSeries{
		Labels: append([]string{}, labels...),
		Values: append([]float64{}, values...),
	}, nil
}

// Len returns the number of points
func (s ProfitSeries) Len() int {
	return len(s.Values)
}

// Clone deep-copies the series
func (s ProfitSeries) Clone() ProfitSeries {
	return ProfitSeries{
		Labels: append([]string{}, s.Labels...),
		Values: append([]float64{}, s.Values...),
	}
}

// ProfitResponse is the decoded profit history. Labels is set only when the
// engine keyed profits by timeframe.
type ProfitResponse struct {
	Profits []float64
	Labels  []string
}

func (r *ProfitResponse) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Profits json.RawMessage `json:"profits"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return fmt.Errorf("decode profit response: %w", err)
	}

	switch firstByte(envelope.Profits) {
	case 0, 'n':
		*r = ProfitResponse{Profits: []float64{}}
		return nil
	case '[':
		var profits []float64
		if err := json.Unmarshal(envelope.Profits, &profits); err != nil {
			return fmt.Errorf("decode profit list: %w", err)
		}
		if profits == nil {
			profits = []float64{}
		}
		*r = ProfitResponse{Profits: profits}
		return nil
	case '{':
		out := ProfitResponse{Profits: []float64{}, Labels: []string{}}
		err := eachObjectField(envelope.Profits, func(key string, raw json.RawMessage) error {
			var v float64
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode profit for %q: %w", key, err)
			}
			out.Labels = append(out.Labels, key)
			out.Profits = append(out.Profits, v)
			return nil
		})
		if err != nil {
			return err
		}
		*r = out
		return nil
	default:
		return fmt.Errorf("profits must be an array or an object, got %s", truncate(envelope.Profits, 32))
	}
}
