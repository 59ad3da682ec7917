package types

import (
	"fmt"
	"strings"
	"time"
)

// BotConfig is the operator-supplied configuration sent on start and on backtest
// submission. The same value serializes identically for both requests.
type BotConfig struct {
	Symbol         string   `json:"symbol"`
	HistoricalDays int      `json:"historical_days"`
	Timeframes     []string `json:"timeframes"`
	InitialCapital float64  `json:"initial_capital"`
}

// ValidationError reports an operator input that never reaches the remote engine
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bot config: %s %s", e.Field, e.Reason)
}

// Validate checks the config before it is sent anywhere
func (c BotConfig) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "is required"}
	}
	if c.HistoricalDays <= 0 {
		return &ValidationError{Field: "historical_days", Reason: "must be positive"}
	}
	if len(c.Timeframes) == 0 {
		return &ValidationError{Field: "timeframes", Reason: "must not be empty"}
	}
	for i, tf := range c.Timeframes {
		if strings.TrimSpace(tf) == "" {
			return &ValidationError{Field: "timeframes", Reason: fmt.Sprintf("entry %d is blank", i)}
		}
	}
	if c.InitialCapital <= 0 {
		return &ValidationError{Field: "initial_capital", Reason: "must be positive"}
	}
	return nil
}

// Clone returns a copy that shares no slices with c
func (c BotConfig) Clone() BotConfig {
	c.Timeframes = append([]string(nil), c.Timeframes...)
	return c
}

// ParseTimeframes splits a comma separated list such as "5m, 1h"
func ParseTimeframes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if tf := strings.TrimSpace(part); tf != "" {
			out = append(out, tf)
		}
	}
	return out
}

// BotStatus is the lifecycle state as reported by the remote engine
type BotStatus struct {
	Running bool `json:"bot_running"`
}

// ErrorKind is the small taxonomy every failure is classified into
type ErrorKind string

const (
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// UiError is the single current error shown to the operator
type UiError struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

// NoticeLevel mirrors the toast levels of the dashboard
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient operator message emitted after an action
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}

// NewNotice stamps a notice with the current time
func NewNotice(level NoticeLevel, message string) Notice {
	return Notice{
		Level:   level,
		Message: message,
		Time:    time.Now().UTC(),
	}
}
