package config

// Diff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (channels, endpoint, capture buffer) requires a restart.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	WakewordChanged bool
	NewWakeword     string
}

// Empty reports whether d records no reloadable change.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.WakewordChanged
}

// Compare returns what changed between old and new that is safe to apply
// without restarting the client.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Recognizer.Wakeword != new.Recognizer.Wakeword {
		d.WakewordChanged = true
		d.NewWakeword = new.Recognizer.Wakeword
	}

	return d
}
