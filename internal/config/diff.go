package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: the keyword list,
// the alert de-duplication tuning, and the log level. Provider, server, and
// credential changes require a restart and are deliberately not reported.
type ConfigDiff struct {
	KeywordsChanged bool
	NewKeywords     []string

	AlertsChanged bool
	NewAlerts     AlertsConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Empty reports whether the diff carries no hot-reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.KeywordsChanged && !d.AlertsChanged && !d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Compare the effective lists so that going from an explicit list back
	// to the built-in defaults is also picked up.
	oldKw := old.EffectiveKeywords()
	newKw := new.EffectiveKeywords()
	if !slices.Equal(oldKw, newKw) {
		d.KeywordsChanged = true
		d.NewKeywords = newKw
	}

	if old.Alerts != new.Alerts {
		d.AlertsChanged = true
		d.NewAlerts = new.Alerts
	}

	return d
}
