// Package app wires all Strazh subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the recognition loop and the status server, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSink, WithDispatcher, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strazhlabs/strazh/internal/alert"
	"github.com/strazhlabs/strazh/internal/classify"
	"github.com/strazhlabs/strazh/internal/config"
	"github.com/strazhlabs/strazh/internal/health"
	"github.com/strazhlabs/strazh/internal/notify"
	"github.com/strazhlabs/strazh/internal/notify/telegram"
	"github.com/strazhlabs/strazh/internal/observe"
	"github.com/strazhlabs/strazh/internal/present"
	"github.com/strazhlabs/strazh/internal/resilience"
	"github.com/strazhlabs/strazh/internal/server"
	"github.com/strazhlabs/strazh/pkg/recognizer"
	"github.com/strazhlabs/strazh/pkg/synth"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Recognizer recognizer.Provider
	Synth      synth.Speaker
}

// App owns all subsystem lifetimes and orchestrates the danger-alert pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	status      *server.StatusSink
	sink        present.Sink
	dispatcher  notify.Dispatcher
	coordinator *alert.Coordinator
	runner      *SessionRunner
	srv         *server.Server
	metrics     *observe.Metrics

	audioSource io.Reader

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSink adds an extra presentation sink alongside the status sink.
func WithSink(s present.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithDispatcher injects a notification dispatcher instead of building the
// Telegram notifier from config.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(a *App) { a.dispatcher = d }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithAudioSource streams PCM audio from r into each recognition session.
// When unset, sessions receive no audio from this process (the recognizer
// endpoint is expected to be fed out of band).
func WithAudioSource(r io.Reader) Option {
	return func(a *App) { a.audioSource = r }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Presentation ──────────────────────────────────────────────────
	a.status = server.NewStatusSink()
	if a.sink == nil {
		a.sink = present.Multi{a.status, present.NewConsole(os.Stdout)}
	} else {
		a.sink = present.Multi{a.status, a.sink}
	}

	// ── 2. Notification dispatcher ───────────────────────────────────────
	if err := a.initDispatcher(); err != nil {
		return nil, fmt.Errorf("app: init dispatcher: %w", err)
	}

	// ── 3. Speaker ───────────────────────────────────────────────────────
	speaker := a.providers.Synth
	if speaker == nil {
		speaker = noopSpeaker{}
	} else {
		speaker = synth.Detach(speaker)
	}

	// ── 4. Alert coordinator ─────────────────────────────────────────────
	a.coordinator = alert.New(
		classify.New(cfg.EffectiveKeywords()),
		a.sink,
		speaker,
		a.dispatcher,
		alert.WithDedupWindow(cfg.Alerts.DedupWindow),
		alert.WithSimilarityThreshold(effectiveThreshold(cfg.Alerts)),
		alert.WithMetrics(a.metrics),
	)

	// ── 5. Session runner ────────────────────────────────────────────────
	if a.providers.Recognizer == nil {
		return nil, fmt.Errorf("app: no recognizer provider configured")
	}
	a.runner = NewSessionRunner(
		a.providers.Recognizer,
		a.coordinator,
		sessionConfigFrom(cfg.Providers.Recognizer),
		WithRunnerMetrics(a.metrics),
		WithRunnerAudioSource(a.audioSource),
	)

	// ── 6. Status server ─────────────────────────────────────────────────
	a.srv = server.New(cfg.Server, a.status,
		health.Func("recognizer", a.runner.Healthy),
		health.Func("notifier", a.notifierCheck),
	)

	return a, nil
}

// initDispatcher builds the Telegram notifier from config, unless a
// dispatcher was injected. Missing credentials disable delivery.
func (a *App) initDispatcher() error {
	if a.dispatcher != nil {
		return nil
	}

	tg := a.cfg.Telegram
	if !tg.Enabled() {
		slog.Warn("app: telegram not configured; notifications disabled")
		a.dispatcher = notify.Discard{}
		return nil
	}

	var opts []telegram.Option
	if tg.Endpoint != "" {
		opts = append(opts, telegram.WithEndpoint(tg.Endpoint))
	}
	if tg.QueueSize > 0 {
		opts = append(opts, telegram.WithQueueSize(tg.QueueSize))
	}
	opts = append(opts, telegram.WithMetrics(a.metrics))
	opts = append(opts, telegram.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "telegram",
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
	})))

	n, err := telegram.New(tg.Token, tg.ChatID, opts...)
	if err != nil {
		return err
	}
	a.dispatcher = n
	a.closers = append(a.closers, func() error {
		n.Close()
		return nil
	})
	return nil
}

// notifierCheck reports readiness of the notification path: it fails only
// when Telegram was configured but the dispatcher could not be kept.
func (a *App) notifierCheck(context.Context) error {
	if _, ok := a.dispatcher.(notify.Discard); ok && a.cfg.Telegram.Enabled() {
		return fmt.Errorf("telegram configured but dispatcher inactive")
	}
	return nil
}

// Coordinator exposes the alert coordinator for config hot-reload wiring.
func (a *App) Coordinator() *alert.Coordinator { return a.coordinator }

// Run starts the recognition loop and the status server and blocks until ctx
// is cancelled or a subsystem fails fatally.
func (a *App) Run(ctx context.Context) error {
	a.sink.Present(alert.MsgWaiting, present.SeverityNormal)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.srv.Run(ctx) })
	g.Go(func() error { return a.runner.Run(ctx) })

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// ApplyReload applies a hot-reloadable config change produced by the config
// watcher. Not all changes can be applied live; those are logged and skipped.
func (a *App) ApplyReload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		slog.Info("config reloaded with no hot-applicable changes; restart to apply the rest")
		return
	}
	if d.KeywordsChanged {
		a.coordinator.ApplyKeywords(d.NewKeywords)
	}
	if d.AlertsChanged {
		a.coordinator.ApplyAlertTuning(d.NewAlerts.DedupWindow, effectiveThreshold(d.NewAlerts))
	}
	if d.LogLevelChanged {
		slog.Info("log level change requires restart", "new_level", d.NewLogLevel)
	}
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// effectiveThreshold maps the config's zero value onto the coordinator's
// exact-match default.
func effectiveThreshold(ac config.AlertsConfig) float64 {
	if ac.SimilarityThreshold == 0 {
		return 1.0
	}
	return ac.SimilarityThreshold
}

// sessionConfigFrom maps a provider entry onto a recognizer session config.
func sessionConfigFrom(entry config.ProviderEntry) recognizer.SessionConfig {
	cfg := recognizer.SessionConfig{
		SampleRate: entry.SampleRate,
		Language:   entry.Language,
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Language == "" {
		cfg.Language = "ru"
	}
	return cfg
}

// noopSpeaker is used when no synthesis provider is configured.
type noopSpeaker struct{}

func (noopSpeaker) Speak(context.Context, string) error { return nil }
