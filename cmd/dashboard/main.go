package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"tradedash/internal/backtest"
	"tradedash/internal/dashboard"
	"tradedash/internal/errchan"
	"tradedash/internal/lifecycle"
	"tradedash/internal/mockengine"
	"tradedash/internal/notify"
	"tradedash/internal/remote"
	"tradedash/internal/results"
	"tradedash/internal/secrets"
	"tradedash/internal/store"
	"tradedash/internal/types"
)

// Config holds the application configuration
type Config struct {
	Port             int
	EngineURL        string
	EngineStatusPath string
	EngineTimeout    time.Duration
	MockMode         bool
	MockEnginePort   int
	MockStateFile    string
	LogLevel         string
	LogFormat        string
	CORSOrigin       string
	TelegramToken    string
	TelegramChatID   int64
	Defaults         types.BotConfig
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := loadConfig()
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Defaults.Validate(); err != nil {
		logger.Error("Invalid default bot config", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting TradeDash",
		"mock_mode", cfg.MockMode,
		"port", cfg.Port,
		"engine_url", cfg.EngineURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Optional in-process engine
	var mockServer *http.Server
	if cfg.MockMode {
		logger.Info("Running in MOCK MODE - using the in-process engine", "port", cfg.MockEnginePort)

		eng := mockengine.New(logger, mockengine.WithStateFile(cfg.MockStateFile, logger))
		ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(cfg.MockEnginePort))
		if err != nil {
			logger.Error("Failed to listen for mock engine", "error", err)
			os.Exit(1)
		}
		mockServer = &http.Server{
			Handler:           eng.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := mockServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		cfg.EngineURL = "http://" + ln.Addr().String() + "/api"
	}

	// State and notices
	st := store.New()
	notifiers := notify.Multi{notify.NewLogNotifier(logger), notify.NewStoreNotifier(st)}

	if err := loadTelegramConfig(&cfg, secrets.FromEnv()); err != nil {
		logger.Warn("Telegram notices disabled", "error", err)
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("Telegram notices disabled", "error", err)
		} else {
			notifiers = append(notifiers, tg)
			g.Go(func() error {
				return tg.Run(gctx)
			})
		}
	}

	errs := errchan.New(st, notifiers, logger)

	// Remote engine client
	clientOpts := []remote.Option{remote.WithStatusPath(cfg.EngineStatusPath)}
	if cfg.EngineTimeout > 0 {
		clientOpts = append(clientOpts, remote.WithTimeout(cfg.EngineTimeout))
	}
	client := remote.NewClient(cfg.EngineURL, logger, clientOpts...)

	// Controllers
	bots := lifecycle.NewController(client, st, errs, notifiers, logger)
	backtests := backtest.NewOrchestrator(client, st, errs, notifiers, logger)
	aggregator := results.NewAggregator(client, st, errs, notifiers, logger)

	srv := dashboard.NewServer(dashboard.Config{
		Port:       cfg.Port,
		CORSOrigin: cfg.CORSOrigin,
		Defaults:   cfg.Defaults,
	}, bots, backtests, aggregator, st, logger)

	if err := srv.Start(gctx); err != nil {
		logger.Error("Failed to start dashboard", "error", err)
		os.Exit(1)
	}

	// Initial load: bot status, then stored results
	if err := bots.Reconcile(gctx); err != nil {
		logger.Warn("Initial status check failed", "error", err)
	}
	aggregator.Fetch(gctx)

	logger.Info("TradeDash is running",
		"http_endpoint", "http://127.0.0.1:"+strconv.Itoa(cfg.Port),
	)
	logger.Info("Press Ctrl+C to stop")

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping dashboard", "error", err)
		}
		if mockServer != nil {
			if err := mockServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error stopping mock engine", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("TradeDash stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("TradeDash stopped gracefully")
}

// loadConfig loads configuration from environment variables
func loadConfig() Config {
	port := envInt("PORT", 8090)

	engineURL := os.Getenv("ENGINE_URL")
	if engineURL == "" {
		engineURL = remote.DefaultBaseURL
	}

	statusPath := os.Getenv("ENGINE_STATUS_PATH")
	if statusPath == "" {
		statusPath = remote.DefaultStatusPath
	}

	var timeout time.Duration
	if t := os.Getenv("ENGINE_TIMEOUT"); t != "" {
		if parsed, err := time.ParseDuration(t); err == nil {
			timeout = parsed
		}
	}

	// Off by default: the dashboard normally drives a real engine
	mockMode := false
	if m := os.Getenv("MOCK_MODE"); m != "" {
		mockMode = m == "true" || m == "1" || m == "yes"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "pretty"
	}

	symbol := os.Getenv("DEFAULT_SYMBOL")
	if symbol == "" {
		symbol = "ETHUSDT"
	}

	timeframes := types.ParseTimeframes(os.Getenv("DEFAULT_TIMEFRAMES"))
	if len(timeframes) == 0 {
		timeframes = []string{"5m", "1h"}
	}

	capital := 10000.0
	if c := os.Getenv("DEFAULT_INITIAL_CAPITAL"); c != "" {
		if parsed, err := strconv.ParseFloat(c, 64); err == nil {
			capital = parsed
		}
	}

	return Config{
		Port:             port,
		EngineURL:        engineURL,
		EngineStatusPath: statusPath,
		EngineTimeout:    timeout,
		MockMode:         mockMode,
		MockEnginePort:   envInt("MOCK_ENGINE_PORT", 5055),
		MockStateFile:    os.Getenv("MOCK_STATE_FILE"),
		LogLevel:         logLevel,
		LogFormat:        logFormat,
		CORSOrigin:       os.Getenv("CORS_ORIGIN"),
		Defaults: types.BotConfig{
			Symbol:         strings.ToUpper(symbol),
			HistoricalDays: envInt("DEFAULT_HISTORICAL_DAYS", 60),
			Timeframes:     timeframes,
			InitialCapital: capital,
		},
	}
}

// loadTelegramConfig resolves the Telegram credentials, which may be sealed or
// mounted as secret files
func loadTelegramConfig(cfg *Config, r *secrets.Resolver) error {
	token, err := r.Lookup("TELEGRAM_BOT_TOKEN")
	if err != nil {
		return err
	}

	chat, err := r.Lookup("TELEGRAM_CHAT_ID")
	if err != nil {
		return err
	}

	var chatID int64
	if chat != "" {
		chatID, err = strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}

	cfg.TelegramToken = token
	cfg.TelegramChatID = chatID
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// setupLogger configures the structured logger
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	if format == "pretty" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		}))
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
