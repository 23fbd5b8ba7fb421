package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseLevel(""); ok {
		t.Fatalf("empty level must not parse")
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("unknown level must not parse")
	}
}

func TestNew_EnvOverridesConfiguredLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	l, err := New(ProfileDaemon, "error")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug to be enabled by %s", EnvLogLevel)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	cli, err := New(ProfileCLI, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cli.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("CLI logger should be quiet below warn")
	}
	if _, err := New(ProfileCLI, "chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	off, err := New(ProfileDaemon, "off")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if off.Core().Enabled(zapcore.FatalLevel) {
		t.Fatalf("off should disable everything")
	}
	Install(off)
}
