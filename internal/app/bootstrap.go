package app

import (
	"fmt"
	"strings"
	"time"

	"trackcast/internal/config"
	"trackcast/internal/transport/telegram/router"
	logx "trackcast/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func pollTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
}

// validate rejects documents the running app could not apply. It runs on
// startup and before every hot reload is committed.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return fmt.Errorf("server.listen is required")
	}
	if _, err := pollTimeout(cfg); err != nil {
		return err
	}
	if cfg.Telegram.RatePerSec < 0 {
		return fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}
	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required when telegram.enabled is true")
	}
	if raw := strings.TrimSpace(cfg.Telegram.BroadcastChat); raw != "" {
		if _, err := router.ParseChatTarget(raw); err != nil {
			return fmt.Errorf("telegram.broadcast_chat: %w", err)
		}
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
