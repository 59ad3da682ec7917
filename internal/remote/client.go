package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tradedash/internal/httpmw"
	"tradedash/internal/types"
)

// Client talks to the remote engine over HTTP. It keeps no state besides its
// configuration and never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	statusPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the default middleware-wrapped client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStatusPath overrides the status endpoint path
func WithStatusPath(path string) Option {
	return func(c *Client) {
		if path = strings.Trim(path, "/"); path != "" {
			c.statusPath = path
		}
	}
}

// WithTimeout sets an overall per-request timeout. Zero keeps transport defaults.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client for the engine at baseURL
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		statusPath: DefaultStatusPath,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: httpmw.Wrap(
				httpmw.DefaultTransport(),
				httpmw.BufferBody,
				httpmw.RequestID,
				httpmw.JSONHeaders,
				httpmw.Logger(logger, 2048),
			),
		}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	return c
}

// BaseURL returns the configured engine base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetStatus fetches the bot lifecycle state
func (c *Client) GetStatus(ctx context.Context) (types.BotStatus, error) {
	body, err := c.do(ctx, OpStatus, http.MethodGet, c.statusPath, nil)
	if err != nil {
		return types.BotStatus{}, err
	}

	var payload struct {
		Running *bool `json:"bot_running"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.BotStatus{}, c.decodeError(OpStatus, body, err)
	}
	if payload.Running == nil {
		return types.BotStatus{}, c.decodeError(OpStatus, body, errors.New("missing bot_running"))
	}

	return types.BotStatus{Running: *payload.Running}, nil
}

// Start asks the engine to start the bot with cfg
func (c *Client) Start(ctx context.Context, cfg types.BotConfig) (string, error) {
	return c.action(ctx, OpStart, pathStartBot, cfg)
}

// Stop asks the engine to stop the bot
func (c *Client) Stop(ctx context.Context) (string, error) {
	return c.action(ctx, OpStop, pathStopBot, struct{}{})
}

// RunBacktest submits a backtest and waits for the full result
func (c *Client) RunBacktest(ctx context.Context, cfg types.BotConfig) (types.BacktestResultSet, error) {
	body, err := c.do(ctx, OpBacktest, http.MethodPost, pathBacktest, cfg)
	if err != nil {
		return types.BacktestResultSet{}, err
	}

	var results types.BacktestResultSet
	if err := json.Unmarshal(body, &results); err != nil {
		return types.BacktestResultSet{}, c.decodeError(OpBacktest, body, err)
	}
	return results, nil
}

// GetTrades fetches the trade history
func (c *Client) GetTrades(ctx context.Context) (types.TradeResponse, error) {
	body, err := c.do(ctx, OpTrades, http.MethodGet, pathTrades, nil)
	if err != nil {
		return types.TradeResponse{}, err
	}

	var payload struct {
		Trades types.TradeResponse `json:"trades"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.TradeResponse{}, c.decodeError(OpTrades, body, err)
	}
	return payload.Trades, nil
}

// GetProfit fetches the profit history
func (c *Client) GetProfit(ctx context.Context) (types.ProfitResponse, error) {
	body, err := c.do(ctx, OpProfit, http.MethodGet, pathProfit, nil)
	if err != nil {
		return types.ProfitResponse{}, err
	}

	var profit types.ProfitResponse
	if err := json.Unmarshal(body, &profit); err != nil {
		return types.ProfitResponse{}, c.decodeError(OpProfit, body, err)
	}
	return profit, nil
}

// action performs a POST whose success body is {"message": "..."}
func (c *Client) action(ctx context.Context, op, path string, payload any) (string, error) {
	body, err := c.do(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", c.decodeError(op, body, err)
	}
	return resp.Message, nil
}

// do performs one round trip and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("remote %s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("[REMOTE] Request failed",
			"op", op,
			"url", url,
			"error", err,
		)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		srvErr := newServerError(op, resp.StatusCode, body)
		c.logger.Warn("[REMOTE] Engine returned error",
			"op", op,
			"status", resp.StatusCode,
			"message", srvErr.Message,
			"code", srvErr.Code,
		)
		return nil, srvErr
	}

	return body, nil
}

func (c *Client) decodeError(op string, body []byte, err error) error {
	c.logger.Warn("[REMOTE] Malformed response",
		"op", op,
		"error", err,
	)
	return &DecodeError{Op: op, Body: string(body), Err: err}
}

var _ Engine = (*Client)(nil)
