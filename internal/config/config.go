// Package config provides the configuration schema, loader, and provider
// registry for the Strazh danger-alert server.
package config

import "time"

// LogLevel controls log verbosity for the Strazh server.
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

// Config is the root configuration structure for Strazh.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Keywords  []string        `yaml:"keywords"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Model     ModelConfig     `yaml:"model"`
}

// ServerConfig holds network and logging settings for the status server.
type ServerConfig struct {
	// ListenAddr is the TCP address the status server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline boundary. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Recognizer ProviderEntry `yaml:"recognizer"`
	Synth      ProviderEntry `yaml:"synth"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "vosk", "coqui").
	Name string `yaml:"name"`

	// URL overrides the provider's default endpoint
	// (e.g., "ws://localhost:2700" for a Vosk server).
	URL string `yaml:"url"`

	// Language is the BCP-47 language tag the provider should operate in.
	// Leave empty for the provider's default ("ru").
	Language string `yaml:"language"`

	// SampleRate is the PCM sample rate in Hz for audio-facing providers.
	// Zero means the provider's default.
	SampleRate int `yaml:"sample_rate"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AlertsConfig tunes escalation behaviour for danger hypotheses.
type AlertsConfig struct {
	// DedupWindow suppresses re-triggering side effects for duplicate danger
	// texts arriving within the window. Zero disables de-duplication: every
	// danger final re-fires, which is the default behaviour.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// SimilarityThreshold relaxes the duplicate comparison from exact
	// equality to Jaro-Winkler similarity in (0, 1]. Zero means exact match
	// only. Ignored when DedupWindow is zero.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// TelegramConfig holds the Telegram Bot API delivery settings.
//
// Token and ChatID are credentials and must be injected — via this file, the
// STRAZH_TELEGRAM_TOKEN / STRAZH_TELEGRAM_CHAT_ID environment variables, or
// ${VAR} references expanded at load time. They are never compiled into the
// binary. When both are empty, notifications are disabled.
type TelegramConfig struct {
	// Token is the bot token issued by BotFather.
	Token string `yaml:"token"`

	// ChatID is the destination chat identifier.
	ChatID string `yaml:"chat_id"`

	// Endpoint overrides the Bot API base URL. Leave empty for the default.
	Endpoint string `yaml:"endpoint"`

	// QueueSize bounds the delivery queue. Zero means the default.
	QueueSize int `yaml:"queue_size"`
}

// ModelConfig locates the offline recognition model bundle.
type ModelConfig struct {
	// BundlePath is the packaged model (a zip archive or a plain directory)
	// staged into DataDir on startup. Empty when the recognizer provider does
	// not need a local model.
	BundlePath string `yaml:"bundle_path"`

	// DataDir is where the model is unpacked. Defaults to the user cache dir.
	DataDir string `yaml:"data_dir"`
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" || t.ChatID != ""
}
