package main

import (
	"testing"
	"time"

	"tradedash/internal/remote"
	"tradedash/internal/secrets"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "MOCK_ENGINE_PORT", "ENGINE_URL", "ENGINE_STATUS_PATH", "ENGINE_TIMEOUT", "MOCK_MODE", "DEFAULT_SYMBOL", "DEFAULT_TIMEFRAMES", "DEFAULT_HISTORICAL_DAYS", "DEFAULT_INITIAL_CAPITAL"} {
		t.Setenv(key, "")
	}

	cfg := loadConfig()

	if cfg.Port != 8090 || cfg.MockEnginePort != 5055 {
		t.Errorf("Unexpected ports: %d %d", cfg.Port, cfg.MockEnginePort)
	}
	if cfg.EngineURL != remote.DefaultBaseURL || cfg.EngineStatusPath != remote.DefaultStatusPath {
		t.Errorf("Unexpected engine settings: %s %s", cfg.EngineURL, cfg.EngineStatusPath)
	}
	if cfg.MockMode {
		t.Error("Expected mock mode off by default")
	}
	if err := cfg.Defaults.Validate(); err != nil {
		t.Errorf("Default bot config should be valid: %v", err)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("ENGINE_TIMEOUT", "15s")
	t.Setenv("MOCK_MODE", "yes")
	t.Setenv("DEFAULT_SYMBOL", "btcusdt")
	t.Setenv("DEFAULT_TIMEFRAMES", "1m, 15m ,4h")
	t.Setenv("DEFAULT_INITIAL_CAPITAL", "2500.5")

	cfg := loadConfig()

	if cfg.Port != 9100 || cfg.EngineTimeout != 15*time.Second || !cfg.MockMode {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.Defaults.Symbol != "BTCUSDT" || cfg.Defaults.InitialCapital != 2500.5 {
		t.Errorf("Unexpected defaults: %+v", cfg.Defaults)
	}
	if len(cfg.Defaults.Timeframes) != 3 || cfg.Defaults.Timeframes[1] != "15m" {
		t.Errorf("Unexpected timeframes: %v", cfg.Defaults.Timeframes)
	}
}

func TestLoadTelegramConfig(t *testing.T) {
	vars := map[string]string{"TELEGRAM_BOT_TOKEN": "token", "TELEGRAM_CHAT_ID": "-1001"}
	r := secrets.NewResolver("", func(k string) string { return vars[k] })

	var cfg Config
	if err := loadTelegramConfig(&cfg, r); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.TelegramToken != "token" || cfg.TelegramChatID != -1001 {
		t.Errorf("Unexpected telegram config: %q %d", cfg.TelegramToken, cfg.TelegramChatID)
	}

	vars["TELEGRAM_CHAT_ID"] = "not-a-number"
	if err := loadTelegramConfig(&cfg, r); err == nil {
		t.Error("Expected error for invalid chat id")
	}
}
