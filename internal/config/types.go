package config

// Config is the on-disk configuration (JSON or YAML).
//
// Secrets may be left empty in the file and supplied through the
// environment instead (see ApplyEnv).
type Config struct {
	// Timezone decides what "today" means for a run and where the daily
	// schedule fires. Default: Europe/Istanbul.
	Timezone string `json:"timezone,omitempty"`

	// Schedule is the serve-mode trigger: a cron expression (seconds
	// optional, descriptors like @daily accepted). Default: "0 9 * * *".
	Schedule string `json:"schedule,omitempty"`

	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Notifier NotifierConfig `json:"notifier"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
	Backup   BackupConfig   `json:"backup,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig selects and configures the delivery channel.
//
// Channel values: "smtp", "telegram", "log". TestMode forces "log".
type NotifierConfig struct {
	Channel string `json:"channel"`
	// SendTimeout bounds a single delivery attempt. "0s" disables it.
	SendTimeout string `json:"send_timeout,omitempty"`
	TestMode    bool   `json:"test_mode,omitempty"`
	// Probe checks connectivity before each run. Failures are logged only.
	Probe bool `json:"probe,omitempty"`
	// Template is an optional html/template file replacing the built-in
	// e-mail body.
	Template string `json:"template,omitempty"`

	SMTP     SMTPConfig     `json:"smtp,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	// From defaults to Username.
	From        string `json:"from,omitempty"`
	FromName    string `json:"from_name,omitempty"`
	DialTimeout string `json:"dial_timeout,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"` // do not log
	// RatePerSec caps outgoing messages. Default: 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// MetricsConfig controls the HTTP endpoint served by "serve": /metrics,
// /healthz and, when Pprof is set, /debug/pprof/.
//
// A non-loopback Addr requires Token.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:9464"
	Token   string `json:"token,omitempty"` // do not log
	Pprof   bool   `json:"pprof,omitempty"`
}

// BackupConfig controls the store snapshot taken before every run.
type BackupConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"` // default: "./backups"
}
