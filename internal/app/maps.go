package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observe"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapNotifierConfig returns the channel config and the per-attempt timeout.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, time.Duration, error) {
	n := cfg.Notifier
	dial, err := config.ParseDurationOrDefault("notifier.smtp.dial_timeout", n.SMTP.DialTimeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, 0, err
	}
	timeout, err := config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		return notifier.Config{}, 0, err
	}
	return notifier.Config{
		Channel:  cfg.EffectiveChannel(),
		Template: strings.TrimSpace(n.Template),
		SMTP: notifier.SMTPConfig{
			Host:        n.SMTP.Host,
			Port:        n.SMTP.Port,
			Username:    n.SMTP.Username,
			Password:    n.SMTP.Password,
			From:        n.SMTP.From,
			FromName:    n.SMTP.FromName,
			DialTimeout: dial,
		},
		Telegram: notifier.TelegramConfig{
			Token:      n.Telegram.Token,
			RatePerSec: n.Telegram.RatePerSec,
		},
	}, timeout, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapServerConfig(cfg *config.Config) observe.ServerConfig {
	return observe.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Token:   cfg.Metrics.Token,
		Pprof:   cfg.Metrics.Pprof,
	}
}

// validateReload rejects a hot-reloaded config before it is committed.
func validateReload(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := scheduler.ParseSchedule(cfg.Schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	return nil
}
