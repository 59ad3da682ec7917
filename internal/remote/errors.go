package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	// CodeAlreadyRunning is the structured conflict code for a duplicate start
	CodeAlreadyRunning = "BOT_ALREADY_RUNNING"

	// MessageAlreadyRunning is the conflict text the engine sends with a 400
	MessageAlreadyRunning = "Bot is already running."
)

// NetworkError means the engine was not reached or the exchange did not complete:
// connection refused, DNS, timeout or a cancelled context.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response. Message and Code are filled from the JSON
// body when present.
type ServerError struct {
	Op      string
	Status  int
	Body    string
	Message string
	Code    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s: status %d", e.Op, e.Status)
}

// ClientError reports a 4xx status
func (e *ServerError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// DecodeError is a 2xx response whose payload could not be understood
type DecodeError struct {
	Op   string
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("remote %s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsAlreadyRunning recognizes the duplicate-start conflict. The structured code
// wins; the legacy 400 + message pairing is accepted as a fallback.
func IsAlreadyRunning(err error) bool {
	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		return false
	}
	if srvErr.Code != "" {
		return srvErr.Code == CodeAlreadyRunning
	}
	return srvErr.Status == http.StatusBadRequest && srvErr.Message == MessageAlreadyRunning
}

// ServerMessage returns the engine-supplied message carried by err, if any
func ServerMessage(err error) string {
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Message
	}
	return ""
}

// newServerError builds a ServerError from a raw error response. Flask answers
// with either {"message": ...} or {"error": ...}.
func newServerError(op string, status int, body []byte) *ServerError {
	srvErr := &ServerError{
		Op:     op,
		Status: status,
		Body:   string(body),
	}

	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
		Code    any `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return srvErr
	}

	if s, ok := payload.Message.(string); ok && s != "" {
		srvErr.Message = s
	} else if s, ok := payload.Error.(string); ok && s != "" {
		srvErr.Message = s
	}
	if s, ok := payload.Code.(string); ok {
		srvErr.Code = s
	}
	return srvErr
}
