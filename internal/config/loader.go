package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/strazhlabs/strazh/internal/classify"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer": {"vosk", "mock"},
	"synth":      {"coqui", "mock"},
}

// Environment variables that override the Telegram credential fields.
// Keeping credentials out of the config file entirely is the recommended
// deployment shape.
const (
	EnvTelegramToken  = "STRAZH_TELEGRAM_TOKEN"
	EnvTelegramChatID = "STRAZH_TELEGRAM_CHAT_ID"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, injects credentials from the
// environment, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	injectCredentials(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// injectCredentials resolves the Telegram credentials: ${VAR} references in
// the YAML values are expanded, and the STRAZH_* environment variables, when
// set, take precedence over the file entirely.
func injectCredentials(cfg *Config) {
	cfg.Telegram.Token = os.ExpandEnv(cfg.Telegram.Token)
	cfg.Telegram.ChatID = os.ExpandEnv(cfg.Telegram.ChatID)

	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvTelegramChatID); v != "" {
		cfg.Telegram.ChatID = v
	}
}

// EffectiveKeywords returns the configured keyword list, falling back to the
// built-in Russian danger keywords when the config leaves it empty.
func (c *Config) EffectiveKeywords() []string {
	if len(c.Keywords) > 0 {
		return c.Keywords
	}
	return classify.DefaultKeywords
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	validateProviderName("recognizer", cfg.Providers.Recognizer.Name)
	validateProviderName("synth", cfg.Providers.Synth.Name)
	if cfg.Providers.Recognizer.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("providers.recognizer.sample_rate %d must not be negative", cfg.Providers.Recognizer.SampleRate))
	}

	for i, kw := range cfg.Keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("keywords[%d] is empty", i))
		}
	}
	if len(cfg.Keywords) == 0 {
		slog.Info("no keywords configured; using the built-in danger keyword list")
	}

	if cfg.Alerts.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("alerts.dedup_window %s must not be negative", cfg.Alerts.DedupWindow))
	}
	if t := cfg.Alerts.SimilarityThreshold; t != 0 && (t <= 0 || t > 1) {
		errs = append(errs, fmt.Errorf("alerts.similarity_threshold %.2f is out of range (0, 1]", t))
	}
	if cfg.Alerts.SimilarityThreshold != 0 && cfg.Alerts.DedupWindow == 0 {
		slog.Warn("alerts.similarity_threshold is set but alerts.dedup_window is zero; de-duplication stays disabled")
	}

	// Credentials are both-or-neither: a token without a destination (or the
	// reverse) is always a deployment mistake.
	if (cfg.Telegram.Token == "") != (cfg.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram: token and chat_id must be set together (or both left empty to disable notifications)"))
	}
	if !cfg.Telegram.Enabled() {
		slog.Warn("telegram credentials not configured; danger notifications will not be delivered")
	}
	if cfg.Telegram.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("telegram.queue_size %d must not be negative", cfg.Telegram.QueueSize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
