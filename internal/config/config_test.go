package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envOf(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAMLAndJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			body: "timezone: Europe/Berlin\nnotifier:\n  channel: telegram\n  telegram:\n    token: abc\nstorage:\n  driver: sqlite\n  path: ./x.db\n",
		},
		{
			name: "json",
			file: "config.json",
			body: `{"timezone":"Europe/Berlin","notifier":{"channel":"telegram","telegram":{"token":"abc"}},"storage":{"driver":"sqlite","path":"./x.db"}}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, tt.file, tt.body))
			m.SetLookup(envOf(nil))
			cfg, err := m.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Timezone != "Europe/Berlin" || cfg.Notifier.Channel != "telegram" || cfg.Storage.Driver != "sqlite" {
				t.Fatalf("cfg = %+v", cfg)
			}
			if cfg.Schedule != DefaultSchedule || cfg.Notifier.Telegram.RatePerSec != 1 {
				t.Fatalf("defaults not applied: %+v", cfg)
			}
			if m.Get() != cfg {
				t.Fatal("Load did not commit")
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", "notifer:\n  channel: smtp\n"))
	m.SetLookup(envOf(nil))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v, want unknown field", err)
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"timezone":"UTC"}{"timezone":"UTC"}`))
	m.SetLookup(envOf(nil))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestMissingFileUsesEnvironment(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("missing file should fail unless allowed")
	}

	m.AllowMissing(true)
	m.SetLookup(envOf(map[string]string{
		EnvSMTPServer:   "mail.example.com",
		EnvSMTPPort:     "2525",
		EnvSMTPEmail:    "bot@example.com",
		EnvSMTPPassword: "secret",
		EnvTimezone:     "UTC",
	}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Notifier.SMTP
	if s.Host != "mail.example.com" || s.Port != 2525 || s.Username != "bot@example.com" || s.Password != "secret" {
		t.Fatalf("smtp = %+v", s)
	}
	if s.From != "bot@example.com" {
		t.Fatalf("from should default to username, got %q", s.From)
	}
	if cfg.Timezone != "UTC" || !cfg.Logging.Console {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestApplyEnvTestModeAndBadPort(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if err := ApplyEnv(cfg, envOf(map[string]string{EnvTestMode: "True"})); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	ApplyDefaults(cfg)
	if !cfg.Notifier.TestMode || cfg.EffectiveChannel() != "log" {
		t.Fatalf("test mode not applied: %+v", cfg.Notifier)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("test mode should not need credentials: %v", err)
	}
	if err := ApplyEnv(&Config{}, envOf(map[string]string{EnvSMTPPort: "abc"})); err == nil {
		t.Fatal("expected error for bad port")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
		{name: "bad channel", mutate: func(c *Config) { c.Notifier.Channel = "fax" }, wantErr: "notifier.channel"},
		{name: "smtp creds", mutate: func(c *Config) { c.Notifier.SMTP.Password = "" }, wantErr: "notifier.smtp"},
		{name: "telegram token", mutate: func(c *Config) { c.Notifier.Channel = "telegram" }, wantErr: "telegram.token"},
		{name: "bad duration", mutate: func(c *Config) { c.Notifier.SendTimeout = "soon" }, wantErr: "send_timeout"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Notifier.SMTP.Username = "bot@example.com"
			cfg.Notifier.SMTP.Password = "pw"
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("parse = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Notifier.SMTP.Password = "hunter2"
	b.Schedule = "0 8 * * *"
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "schedule,notifier" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
}

func TestSubscribeKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.yaml")
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	b.Schedule = "@hourly"
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatalf("got %+v, want newest", got)
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", "timezone: UTC\nnotifier:\n  test_mode: true\n")
	m := NewConfigManager(path)
	m.SetLookup(envOf(nil))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("timezone: UTC\nschedule: \"@hourly\"\nnotifier:\n  test_mode: true\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.Schedule != "@hourly" {
			t.Fatalf("schedule = %q", cfg.Schedule)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	cancel()
	<-done
}
