package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// WellKnownChannels lists the channel names the interaction model defines.
// Used by [Validate] to warn about unrecognised channel names.
var WellKnownChannels = []string{"Dialog", "Communications", "Alerts", "Content", "Visual"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Endpoint
	if cfg.Endpoint.URL == "" {
		slog.Warn("endpoint.url is empty; recognize events will not be delivered anywhere")
	} else if !strings.HasPrefix(cfg.Endpoint.URL, "ws://") && !strings.HasPrefix(cfg.Endpoint.URL, "wss://") {
		errs = append(errs, fmt.Errorf("endpoint.url %q must use the ws:// or wss:// scheme", cfg.Endpoint.URL))
	}
	if cfg.Endpoint.URL != "" && cfg.Endpoint.Token == "" {
		slog.Warn("endpoint.token is empty; connecting without authentication")
	}

	// Focus channels
	if len(cfg.Focus.Channels) == 0 {
		errs = append(errs, errors.New("focus.channels must declare at least one channel"))
	}
	namesSeen := make(map[string]int, len(cfg.Focus.Channels))
	prioritiesSeen := make(map[int]int, len(cfg.Focus.Channels))
	for i, ch := range cfg.Focus.Channels {
		prefix := fmt.Sprintf("focus.channels[%d]", i)
		if ch.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[ch.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of focus.channels[%d]", prefix, ch.Name, prev))
			}
			namesSeen[ch.Name] = i
			validateChannelName(ch.Name)
		}
		if ch.Priority <= 0 {
			errs = append(errs, fmt.Errorf("%s.priority %d must be positive", prefix, ch.Priority))
		} else {
			if prev, ok := prioritiesSeen[ch.Priority]; ok {
				errs = append(errs, fmt.Errorf("%s.priority %d is a duplicate of focus.channels[%d]", prefix, ch.Priority, prev))
			}
			prioritiesSeen[ch.Priority] = i
		}
	}

	// Recognizer
	if cfg.Recognizer.Channel == "" {
		errs = append(errs, errors.New("recognizer.channel is required"))
	} else if _, ok := namesSeen[cfg.Recognizer.Channel]; !ok && len(cfg.Focus.Channels) > 0 {
		errs = append(errs, fmt.Errorf("recognizer.channel %q is not declared in focus.channels", cfg.Recognizer.Channel))
	}
	if cfg.Recognizer.Profile != "" && !cfg.Recognizer.Profile.IsValid() {
		errs = append(errs, fmt.Errorf("recognizer.profile %q is invalid; valid values: CLOSE_TALK, NEAR_FIELD, FAR_FIELD", cfg.Recognizer.Profile))
	}
	if cfg.Recognizer.ExpectSpeechTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("recognizer.expect_speech_timeout_ms %d must not be negative", cfg.Recognizer.ExpectSpeechTimeoutMS))
	}

	// Capture
	if cfg.Capture.StreamCapacitySamples < 0 {
		errs = append(errs, fmt.Errorf("capture.stream_capacity_samples %d must not be negative", cfg.Capture.StreamCapacitySamples))
	}
	if cfg.Capture.AlwaysReadable && cfg.Recognizer.Wakeword == "" {
		slog.Warn("capture.always_readable is set but recognizer.wakeword is empty; captures start only from explicit triggers and ExpectSpeech")
	}

	return errors.Join(errs...)
}

// validateChannelName logs a warning if name is not one of the channel names
// the interaction model defines.
func validateChannelName(name string) {
	if slices.Contains(WellKnownChannels, name) {
		return
	}
	slog.Warn("unknown focus channel name — may be a typo or a device-specific channel",
		"name", name,
		"known", WellKnownChannels,
	)
}
