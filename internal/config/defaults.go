package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// Timezone names must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

const (
	DefaultTimezone    = "Europe/Istanbul"
	DefaultSchedule    = "0 9 * * *"
	DefaultStoragePath = "./data/remindbot"
	DefaultSMTPHost    = "smtp.gmail.com"
	DefaultSMTPPort    = 587
	DefaultSendTimeout = 30 * time.Second
	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultBackupDir   = "./backups"
)

// Default returns a config that runs with only environment secrets set.
func Default() *Config {
	cfg := &Config{}
	cfg.Logging.Console = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}

	n := &cfg.Notifier
	if strings.TrimSpace(n.Channel) == "" {
		n.Channel = "smtp"
	}
	n.Channel = strings.ToLower(strings.TrimSpace(n.Channel))
	if strings.TrimSpace(n.SMTP.Host) == "" {
		n.SMTP.Host = DefaultSMTPHost
	}
	if n.SMTP.Port <= 0 {
		n.SMTP.Port = DefaultSMTPPort
	}
	if strings.TrimSpace(n.SMTP.From) == "" {
		n.SMTP.From = n.SMTP.Username
	}
	if n.Telegram.RatePerSec <= 0 {
		n.Telegram.RatePerSec = 1
	}

	if strings.TrimSpace(cfg.Metrics.Addr) == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if strings.TrimSpace(cfg.Backup.Dir) == "" {
		cfg.Backup.Dir = DefaultBackupDir
	}
}

// EffectiveChannel is the channel a run will use, with test mode applied.
func (c *Config) EffectiveChannel() string {
	if c.Notifier.TestMode {
		return "log"
	}
	return c.Notifier.Channel
}

// Validate reports every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	switch cfg.Notifier.Channel {
	case "smtp", "telegram", "log":
	default:
		errs = append(errs, fmt.Errorf("notifier.channel: unknown channel %q", cfg.Notifier.Channel))
	}
	if !cfg.Notifier.TestMode {
		switch cfg.Notifier.Channel {
		case "smtp":
			if strings.TrimSpace(cfg.Notifier.SMTP.Username) == "" || cfg.Notifier.SMTP.Password == "" {
				errs = append(errs, errors.New("notifier.smtp: username and password are required (or SMTP_EMAIL/SMTP_PASSWORD)"))
			}
		case "telegram":
			if strings.TrimSpace(cfg.Notifier.Telegram.Token) == "" {
				errs = append(errs, errors.New("notifier.telegram.token is required (or TELEGRAM_TOKEN)"))
			}
		}
	}
	if _, err := ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.smtp.dial_timeout", cfg.Notifier.SMTP.DialTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	return errors.Join(errs...)
}
