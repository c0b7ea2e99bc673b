package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "engine"))
	log.Info("computed", Int("due", 3))

	out := buf.String()
	for _, want := range []string{`"comp":"engine"`, `"due":3`, `"message":"computed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled at warn level")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn entry missing: %q", buf.String())
	}
}

func TestLimitedDropsOverflow(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").Limited(2)
	for i := 0; i < 10; i++ {
		log.Warn("past due")
	}
	lines := strings.Count(buf.String(), "\n")
	if lines != 2 {
		t.Fatalf("expected 2 lines within burst, got %d", lines)
	}
	if log.Dropped() != 8 {
		t.Fatalf("Dropped() = %d, want 8", log.Dropped())
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	Nop().Info("still nothing")
}

func TestParseLevelDefaults(t *testing.T) {
	t.Parallel()
	if got := parseLevel("warning", LevelInfo); got != LevelWarn {
		t.Fatalf("parseLevel(warning) = %v", got)
	}
	if got := parseLevel("loud", LevelInfo); got != LevelInfo {
		t.Fatalf("parseLevel(loud) = %v, want default", got)
	}
}

func TestNewConsoleLevel(t *testing.T) {
	log := NewConsole("error")
	if log.IsZero() {
		t.Fatal("console logger should not be the zero logger")
	}
	if log.Enabled(LevelWarn) || !log.Enabled(LevelError) {
		t.Fatal("console logger ignores its level")
	}
}
