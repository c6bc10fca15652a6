package utilities

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	} {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWithFile(t *testing.T) {
	lg, err := Init(Config{Level: "debug", File: filepath.Join(t.TempDir(), "app.%Y%m%d.log"), MaxAge: 24 * time.Hour})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	lg.Sugar().Debugw("hello", "k", "v")
	_ = lg.Sync()
}

func TestIDs(t *testing.T) {
	if id := NewUUID(); !IsUUID(id) {
		t.Fatalf("NewUUID produced %q", id)
	}
	if IsUUID("not-a-uuid") {
		t.Fatalf("IsUUID accepted garbage")
	}
	if len(NewKSUID()) != 27 {
		t.Fatalf("unexpected KSUID length")
	}

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewSnowflakeIDWithNode(3)
		if seen[id] {
			t.Fatalf("duplicate snowflake id %s", id)
		}
		seen[id] = true
	}
	if id := NewSnowflakeIDWithNode(-1); len(id) != 27 {
		t.Fatalf("invalid node should fall back to a KSUID, got %q", id)
	}
}
