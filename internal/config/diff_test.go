package config_test

import (
	"testing"

	"github.com/04116/avs-device-sdk/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Focus: config.FocusConfig{Channels: []config.ChannelEntry{
			{Name: "Dialog", Priority: 10},
		}},
		Recognizer: config.RecognizerConfig{
			Channel:  "Dialog",
			Wakeword: "ALEXA",
		},
	}
}

func TestCompare_NoChange(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	d := config.Compare(old, new)
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestCompare_LogLevelChange(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Compare(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.WakewordChanged {
		t.Error("WakewordChanged should be false")
	}
}

func TestCompare_WakewordChange(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Recognizer.Wakeword = "COMPUTER"

	d := config.Compare(old, new)
	if !d.WakewordChanged {
		t.Fatal("WakewordChanged should be true")
	}
	if d.NewWakeword != "COMPUTER" {
		t.Errorf("NewWakeword: got %q, want %q", d.NewWakeword, "COMPUTER")
	}
	if d.Empty() {
		t.Error("diff with a wakeword change should not be empty")
	}
}

func TestCompare_RestartOnlyFieldsIgnored(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Focus.Channels = append(new.Focus.Channels, config.ChannelEntry{Name: "Content", Priority: 30})
	new.Endpoint.URL = "wss://other.example.com/v1/events"
	new.Capture.StreamCapacitySamples = 1 << 20

	d := config.Compare(old, new)
	if !d.Empty() {
		t.Errorf("restart-only fields should not appear in the diff, got %+v", d)
	}
}
