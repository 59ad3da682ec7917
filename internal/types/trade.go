package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TradeSide is the trade direction. The engine sends "Buy"/"Sell"; values are
// normalized to upper case and unknown sides are kept as-is.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// ParseTradeSide normalizes a side string from the engine
func ParseTradeSide(s string) TradeSide {
	return TradeSide(strings.ToUpper(strings.TrimSpace(s)))
}

func (s *TradeSide) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("invalid trade side %s: %w", b, err)
	}
	*s = ParseTradeSide(raw)
	return nil
}

// Trade is a single executed trade produced by the remote engine. Field names
// are matched case-insensitively, so both "price" and "Price" decode.
type Trade struct {
	Type   TradeSide `json:"type"`
	Price  float64   `json:"price"`
	Date   Timestamp `json:"date"`
	Profit *float64  `json:"profit,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Timestamp accepts the date formats the engine is known to emit
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	http.TimeFormat,
	time.RFC1123,
	time.RFC1123Z,
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}

	// Epoch milliseconds
	if b[0] != '"' {
		var ms float64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", b, err)
		}
		t.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp format: %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// TradeShape tags which form a trade-history response arrived in
type TradeShape int

const (
	TradeShapeFlat TradeShape = iota
	TradeShapeByTimeframe
)

// TimeframeTrades is one entry of a per-timeframe trade mapping
type TimeframeTrades struct {
	Timeframe string
	Trades    []Trade
}

// TradeResponse is the tagged variant Flat([]Trade) | ByTimeframe([]TimeframeTrades).
// ByTimeframe keeps the key order of the response.
type TradeResponse struct {
	Shape       TradeShape
	Flat        []Trade
	ByTimeframe []TimeframeTrades
}

// FlatTrades builds a flat trade response
func FlatTrades(trades []Trade) TradeResponse {
	return TradeResponse{Shape: TradeShapeFlat, Flat: trades}
}

// TradesByTimeframe builds a per-timeframe trade response
func TradesByTimeframe(groups ...TimeframeTrades) TradeResponse {
	return TradeResponse{Shape: TradeShapeByTimeframe, ByTimeframe: groups}
}

// UnmarshalJSON decodes the value of the "trades" field, which is either an array
// or an object keyed by timeframe.
func (r *TradeResponse) UnmarshalJSON(b []byte) error {
	switch firstByte(b) {
	case 'n', 0:
		*r = FlatTrades(nil)
		return nil
	case '[':
		var trades []Trade
		if err := json.Unmarshal(b, &trades); err != nil {
			return fmt.Errorf("decode trade list: %w", err)
		}
		*r = FlatTrades(trades)
		return nil
	case '{':
		var groups []TimeframeTrades
		err := eachObjectField(b, func(key string, raw json.RawMessage) error {
			var trades []Trade
			if err := json.Unmarshal(raw, &trades); err != nil {
				return fmt.Errorf("decode trades for %q: %w", key, err)
			}
			groups = append(groups, TimeframeTrades{Timeframe: key, Trades: trades})
			return nil
		})
		if err != nil {
			return err
		}
		*r = TradesByTimeframe(groups...)
		return nil
	default:
		return fmt.Errorf("trades must be an array or an object, got %s", truncate(b, 32))
	}
}

// Normalize flattens either shape into one ordered list. Groups are concatenated
// in response order and trades are never re-sorted.
func (r TradeResponse) Normalize() []Trade {
	if r.Shape == TradeShapeFlat {
		return append([]Trade{}, r.Flat...)
	}

	out := []Trade{}
	for _, g := range r.ByTimeframe {
		out = append(out, g.Trades...)
	}
	return out
}
