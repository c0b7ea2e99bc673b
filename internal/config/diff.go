package config

import (
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe log
// attrs describing the new values. Secrets are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Timezone != newCfg.Timezone {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}
	if strings.TrimSpace(oldCfg.Schedule) != strings.TrimSpace(newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs, logx.String("schedule", newCfg.Schedule))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	on, nn := oldCfg.Notifier, newCfg.Notifier
	if on.Channel != nn.Channel || on.TestMode != nn.TestMode || on.SendTimeout != nn.SendTimeout ||
		on.Probe != nn.Probe || on.Template != nn.Template || on.SMTP != nn.SMTP || on.Telegram != nn.Telegram {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.channel", nn.Channel),
			logx.Bool("notifier.test_mode", nn.TestMode),
			logx.String("notifier.smtp.host", nn.SMTP.Host),
			logx.Bool("notifier.smtp.password_set", nn.SMTP.Password != ""),
			logx.Bool("notifier.telegram.token_set", nn.Telegram.Token != ""),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
			logx.Bool("metrics.token_set", newCfg.Metrics.Token != ""),
		)
	}
	if oldCfg.Backup != newCfg.Backup {
		changed = append(changed, "backup")
		attrs = append(attrs, logx.Bool("backup.enabled", newCfg.Backup.Enabled))
	}
	return changed, attrs
}
