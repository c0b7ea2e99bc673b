package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values.
const (
	EnvSMTPServer   = "SMTP_SERVER"
	EnvSMTPPort     = "SMTP_PORT"
	EnvSMTPEmail    = "SMTP_EMAIL"
	EnvSMTPPassword = "SMTP_PASSWORD"
	EnvTelegram     = "TELEGRAM_TOKEN"
	EnvTestMode     = "TEST_MODE"
	EnvTimezone     = "REMINDBOT_TIMEZONE"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overlays environment values onto cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvSMTPServer); ok {
		cfg.Notifier.SMTP.Host = v
	}
	if v, ok := get(EnvSMTPPort); ok {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvSMTPPort, v)
		}
		cfg.Notifier.SMTP.Port = p
	}
	if v, ok := get(EnvSMTPEmail); ok {
		cfg.Notifier.SMTP.Username = v
	}
	if v, ok := get(EnvSMTPPassword); ok {
		cfg.Notifier.SMTP.Password = v
	}
	if v, ok := get(EnvTelegram); ok {
		cfg.Notifier.Telegram.Token = v
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Timezone = v
	}
	if v, ok := get(EnvTestMode); ok {
		cfg.Notifier.TestMode = parseBool(v)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "y":
		return true
	default:
		return false
	}
}
