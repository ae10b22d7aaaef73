// Command strazh is the main entry point for the Strazh danger-alert server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strazhlabs/strazh/internal/app"
	"github.com/strazhlabs/strazh/internal/config"
	"github.com/strazhlabs/strazh/internal/observe"
	"github.com/strazhlabs/strazh/pkg/modelpack"
	"github.com/strazhlabs/strazh/pkg/recognizer"
	recmock "github.com/strazhlabs/strazh/pkg/recognizer/mock"
	"github.com/strazhlabs/strazh/pkg/recognizer/vosk"
	"github.com/strazhlabs/strazh/pkg/synth"
	"github.com/strazhlabs/strazh/pkg/synth/coqui"
	synthmock "github.com/strazhlabs/strazh/pkg/synth/mock"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", `PCM audio source streamed into the recognizer ("-" for stdin)`)
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "strazh: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "strazh: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("strazh starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Model staging ─────────────────────────────────────────────────────────
	if cfg.Model.BundlePath != "" {
		dir, err := stageModel(cfg.Model)
		if err != nil {
			slog.Error("failed to stage recognition model", "err", err)
			return 1
		}
		slog.Info("recognition model ready", "dir", dir)
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audio source (optional) ───────────────────────────────────────────────
	var appOpts []app.Option
	if *audioPath != "" {
		src, closeSrc, err := openAudioSource(*audioPath)
		if err != nil {
			slog.Error("failed to open audio source", "err", err)
			return 1
		}
		defer closeSrc()
		appOpts = append(appOpts, app.WithAudioSource(src))
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers, appOpts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Hot reload: keyword and alert tuning changes apply without restart.
	watcher, err := config.NewWatcher(*configPath, application.ApplyReload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterRecognizer("vosk", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		var opts []vosk.Option
		if entry.SampleRate > 0 {
			opts = append(opts, vosk.WithSampleRate(entry.SampleRate))
		}
		if d := optDuration(entry.Options, "no_speech_timeout"); d > 0 {
			opts = append(opts, vosk.WithNoSpeechTimeout(d))
		}
		return vosk.New(entry.URL, opts...)
	})

	reg.RegisterRecognizer("mock", func(config.ProviderEntry) (recognizer.Provider, error) {
		return &recmock.Provider{}, nil
	})

	reg.RegisterSynth("coqui", func(entry config.ProviderEntry) (synth.Speaker, error) {
		var opts []coqui.Option
		if entry.Language != "" {
			opts = append(opts, coqui.WithLanguage(entry.Language))
		}
		if id := optString(entry.Options, "speaker_id"); id != "" {
			opts = append(opts, coqui.WithSpeakerID(id))
		}
		return coqui.New(entry.URL, opts...)
	})

	reg.RegisterSynth("mock", func(config.ProviderEntry) (synth.Speaker, error) {
		return &synthmock.Speaker{}, nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Recognizer.Name; name != "" {
		p, err := reg.CreateRecognizer(cfg.Providers.Recognizer)
		if err != nil {
			return nil, fmt.Errorf("create recognizer provider %q: %w", name, err)
		}
		ps.Recognizer = p
		slog.Info("provider created", "kind", "recognizer", "name", name)
	}

	if name := cfg.Providers.Synth.Name; name != "" {
		p, err := reg.CreateSynth(cfg.Providers.Synth)
		if err != nil {
			return nil, fmt.Errorf("create synth provider %q: %w", name, err)
		}
		ps.Synth = p
		slog.Info("provider created", "kind", "synth", "name", name)
	}

	return ps, nil
}

// stageModel unpacks the configured model bundle into the data directory.
func stageModel(mc config.ModelConfig) (string, error) {
	dataDir := mc.DataDir
	if dataDir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("resolve cache dir: %w", err)
		}
		dataDir = cache + string(os.PathSeparator) + "strazh"
	}
	return modelpack.Unpack(mc.BundlePath, dataDir)
}

// openAudioSource resolves the -audio flag to a reader.
func openAudioSource(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Strazh — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Recognizer", cfg.Providers.Recognizer.Name, cfg.Providers.Recognizer.URL)
	printProvider("Synth", cfg.Providers.Synth.Name, cfg.Providers.Synth.URL)
	if cfg.Telegram.Enabled() {
		fmt.Printf("║  Telegram        : %-19s ║\n", "configured")
	} else {
		fmt.Printf("║  Telegram        : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Keywords        : %-19d ║\n", len(cfg.EffectiveKeywords()))
	if cfg.Alerts.DedupWindow > 0 {
		fmt.Printf("║  De-dup window   : %-19s ║\n", cfg.Alerts.DedupWindow)
	} else {
		fmt.Printf("║  De-dup window   : %-19s ║\n", "(off)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, endpoint string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if endpoint != "" {
		value = name + " @ " + endpoint
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value, 19))
}

// truncate shortens value to at most max runes, cutting on a rune boundary so
// a multibyte endpoint is never split mid-character.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "…"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optDuration parses a duration string from a provider Options map.
// Returns 0 on absence or parse failure.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
