package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/strazhlabs/strazh/internal/alert"
	"github.com/strazhlabs/strazh/internal/observe"
	"github.com/strazhlabs/strazh/pkg/recognizer"
)

// restartDelay is the pause before a new recognition session is opened after
// the previous one ended.
const restartDelay = 3 * time.Second

// audioChunkSize is how much PCM is read from the audio source per send.
const audioChunkSize = 3200 // 100ms of 16kHz 16-bit mono

// SessionRunner owns the recognition session lifecycle: it opens a session,
// consumes its event stream strictly in order on a single goroutine, and
// reopens the session when the stream ends. Only one session is live at a
// time. All exported methods are safe for concurrent use.
type SessionRunner struct {
	provider    recognizer.Provider
	coordinator *alert.Coordinator
	sessionCfg  recognizer.SessionConfig
	metrics     *observe.Metrics
	audioSource io.Reader

	mu     sync.Mutex
	live   bool
	lastAt time.Time
}

// RunnerOption configures a [SessionRunner].
type RunnerOption func(*SessionRunner)

// WithRunnerMetrics injects the metrics instance.
func WithRunnerMetrics(m *observe.Metrics) RunnerOption {
	return func(r *SessionRunner) { r.metrics = m }
}

// WithRunnerAudioSource streams PCM from src into each session. Nil means no
// audio is sent from this process.
func WithRunnerAudioSource(src io.Reader) RunnerOption {
	return func(r *SessionRunner) { r.audioSource = src }
}

// NewSessionRunner creates a runner feeding coordinator from provider.
func NewSessionRunner(provider recognizer.Provider, coordinator *alert.Coordinator, cfg recognizer.SessionConfig, opts ...RunnerOption) *SessionRunner {
	r := &SessionRunner{
		provider:    provider,
		coordinator: coordinator,
		sessionCfg:  cfg,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Healthy reports readiness: a session must be live, or must have ended
// recently enough that the restart loop is still inside its grace period.
func (r *SessionRunner) Healthy(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live {
		return nil
	}
	if !r.lastAt.IsZero() && time.Since(r.lastAt) < 2*restartDelay {
		return nil
	}
	return errors.New("no live recognition session")
}

// Run opens recognition sessions until ctx is cancelled. A session that ends
// (server closed the stream, network failure) is reopened after
// [restartDelay]; session start failures are retried on the same cadence.
// Run returns ctx.Err() on cancellation.
func (r *SessionRunner) Run(ctx context.Context) error {
	for {
		if err := r.runOnce(ctx); err != nil {
			slog.Warn("session ended", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(restartDelay):
		}
	}
}

// runOnce opens one session and consumes it to completion.
func (r *SessionRunner) runOnce(ctx context.Context) error {
	sess, err := r.provider.StartSession(ctx, r.sessionCfg)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	r.setLive(true)
	defer r.setLive(false)
	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(ctx, -1)

	slog.Info("recognition session open",
		"sample_rate", r.sessionCfg.SampleRate,
		"language", r.sessionCfg.Language,
	)
	r.coordinator.SessionOpened(ctx)

	if r.audioSource != nil {
		go r.pumpAudio(ctx, sess)
	}

	// Single consumer: events are handled in arrival order, one at a time.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sess.Events():
			if !ok {
				return errors.New("event stream closed")
			}
			r.coordinator.HandleEvent(ctx, ev)
		}
	}
}

// pumpAudio copies PCM chunks from the audio source into the session until
// the source drains or the session rejects a write.
func (r *SessionRunner) pumpAudio(ctx context.Context, sess recognizer.Session) {
	buf := make([]byte, audioChunkSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.audioSource.Read(buf)
		if n > 0 {
			if sendErr := sess.SendAudio(buf[:n]); sendErr != nil {
				slog.Debug("audio send stopped", "err", sendErr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("audio source read error", "err", err)
			}
			// Drained input: flush so the engine settles its final hypothesis.
			sess.Close()
			return
		}
	}
}

func (r *SessionRunner) setLive(live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = live
	if !live {
		r.lastAt = time.Now()
	}
}
