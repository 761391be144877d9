package config_test

import (
	"log/slog"
	"testing"

	"github.com/04116/avs-device-sdk/internal/config"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := tc.in.Level(); got != tc.want {
			t.Errorf("Level(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestASRProfile_IsValid(t *testing.T) {
	t.Parallel()
	for _, p := range []config.ASRProfile{config.ProfileCloseTalk, config.ProfileNearField, config.ProfileFarField} {
		if !p.IsValid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if config.ASRProfile("near_field").IsValid() {
		t.Error("lowercase profile should be invalid")
	}
}
