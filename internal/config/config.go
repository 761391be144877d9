// Package config provides the configuration schema, loader, and file watcher
// for the AVS client.
package config

import "log/slog"

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the corresponding [slog.Level].
// The empty string maps to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ASRProfile identifies the acoustic environment the microphone captures in.
// The value is sent verbatim in every Recognize event.
type ASRProfile string

const (
	ProfileCloseTalk ASRProfile = "CLOSE_TALK"
	ProfileNearField ASRProfile = "NEAR_FIELD"
	ProfileFarField  ASRProfile = "FAR_FIELD"
)

// IsValid reports whether p is a recognised ASR profile.
func (p ASRProfile) IsValid() bool {
	switch p {
	case ProfileCloseTalk, ProfileNearField, ProfileFarField:
		return true
	}
	return false
}

// Config is the root configuration structure for the AVS client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Endpoint   EndpointConfig   `yaml:"endpoint"`
	Focus      FocusConfig      `yaml:"focus"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Capture    CaptureConfig    `yaml:"capture"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus scrape endpoint listens
	// on (e.g., ":9464"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ServiceName overrides the service.name resource attribute reported to
	// the telemetry backend. Empty uses the built-in default.
	ServiceName string `yaml:"service_name"`
}

// EndpointConfig describes the cloud endpoint events are delivered to.
type EndpointConfig struct {
	// URL is the WebSocket endpoint address (e.g., "wss://avs.example.com/v1/events").
	URL string `yaml:"url"`

	// Token is the Bearer token sent in the Authorization header of the
	// WebSocket handshake. Empty connects without authentication.
	Token string `yaml:"token"`
}

// FocusConfig declares the set of audio channels the focus manager arbitrates.
type FocusConfig struct {
	Channels []ChannelEntry `yaml:"channels"`
}

// ChannelEntry describes a single focus channel.
type ChannelEntry struct {
	// Name is the channel's unique identifier (e.g., "Dialog", "Content").
	Name string `yaml:"name"`

	// Priority orders channels for foreground arbitration. Lower values win.
	// Must be positive and unique across channels.
	Priority int `yaml:"priority"`
}

// RecognizerConfig holds the speech recognizer's dialog settings.
type RecognizerConfig struct {
	// Channel names the focus channel captures are placed on. Must match one
	// of the entries in focus.channels.
	Channel string `yaml:"channel"`

	// Profile is the ASR profile reported in Recognize events.
	Profile ASRProfile `yaml:"profile"`

	// Wakeword is the keyword published as the recognizer's context state.
	// Empty means no wakeword support is advertised.
	Wakeword string `yaml:"wakeword"`

	// ExpectSpeechTimeoutMS bounds how long the recognizer waits for the user
	// to start speaking after an ExpectSpeech directive, in milliseconds,
	// when the directive itself carries no timeout. 0 uses the built-in default.
	ExpectSpeechTimeoutMS int64 `yaml:"expect_speech_timeout_ms"`
}

// CaptureConfig describes the default microphone audio provider.
type CaptureConfig struct {
	// StreamCapacitySamples sizes the shared capture ring buffer, in samples.
	// 0 uses the built-in default.
	StreamCapacitySamples int `yaml:"stream_capacity_samples"`

	// AlwaysReadable marks the microphone as continuously capturing, which
	// allows ExpectSpeech to start a recognize without an explicit trigger.
	AlwaysReadable bool `yaml:"always_readable"`

	// CanOverride allows triggers from this provider to interrupt an in-flight
	// capture from an overridable provider.
	CanOverride bool `yaml:"can_override"`

	// CanBeOverridden allows captures from this provider to be interrupted by
	// an overriding trigger.
	CanBeOverridden bool `yaml:"can_be_overridden"`
}
