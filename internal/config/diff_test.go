package config

import (
	"slices"
	"testing"
	"time"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old := &Config{Keywords: []string{"нож"}}
	new := &Config{Keywords: []string{"нож"}}

	d := Diff(old, new)
	if !d.Empty() {
		t.Errorf("Diff() = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old := &Config{}
	new := &Config{}
	new.Server.LogLevel = LogError

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogError {
		t.Errorf("Diff() = %+v, want log level change to error", d)
	}
}

func TestDiff_Keywords(t *testing.T) {
	t.Parallel()

	old := &Config{Keywords: []string{"нож"}}
	new := &Config{Keywords: []string{"нож", "тревога"}}

	d := Diff(old, new)
	if !d.KeywordsChanged {
		t.Fatal("Diff() missed the keyword change")
	}
	if want := []string{"нож", "тревога"}; !slices.Equal(d.NewKeywords, want) {
		t.Errorf("NewKeywords = %v, want %v", d.NewKeywords, want)
	}
}

func TestDiff_KeywordsBackToDefaults(t *testing.T) {
	t.Parallel()

	old := &Config{Keywords: []string{"нож"}}
	new := &Config{}

	d := Diff(old, new)
	if !d.KeywordsChanged {
		t.Error("dropping the explicit list back to defaults must be reported")
	}
}

func TestDiff_Alerts(t *testing.T) {
	t.Parallel()

	old := &Config{}
	new := &Config{Alerts: AlertsConfig{DedupWindow: time.Minute, SimilarityThreshold: 0.9}}

	d := Diff(old, new)
	if !d.AlertsChanged {
		t.Fatal("Diff() missed the alerts change")
	}
	if d.NewAlerts.DedupWindow != time.Minute || d.NewAlerts.SimilarityThreshold != 0.9 {
		t.Errorf("NewAlerts = %+v", d.NewAlerts)
	}
}
