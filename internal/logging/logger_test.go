package logging

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestInitialize_FallsBackToEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	core := GetLogger().Core()
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
}

func TestDeviceHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogDeviceRequest("http://192.168.4.1:80", "GET", "/wifi/networks")
	LogDeviceResponse("http://192.168.4.1:80", "GET", "/wifi/networks", 200, 15*time.Millisecond)
	LogDeviceFailure("http://192.168.4.1:80", "POST", "/settings", errors.New("boom"))
	LogRawBytes("body", []byte("{}\x00"))

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	if entries[0].ContextMap()["path"] != "/wifi/networks" {
		t.Errorf("request path = %v", entries[0].ContextMap()["path"])
	}
	if entries[1].ContextMap()["status_code"] != int64(200) {
		t.Errorf("status_code = %v, want 200", entries[1].ContextMap()["status_code"])
	}
	if entries[2].Level != zapcore.WarnLevel {
		t.Errorf("failure level = %v, want warn", entries[2].Level)
	}
	if entries[3].ContextMap()["ascii"] != "{}." {
		t.Errorf("ascii dump = %v, want {}.", entries[3].ContextMap()["ascii"])
	}
}

func TestHexDumpTruncates(t *testing.T) {
	data := make([]byte, maxDumpBytes+10)
	got := hexDump(data)
	if len(got) != maxDumpBytes*2+3 {
		t.Errorf("hexDump length = %d, want %d", len(got), maxDumpBytes*2+3)
	}
}
