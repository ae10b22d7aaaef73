// Package alert implements the coordinator at the centre of the pipeline:
// the state machine that turns an in-order stream of recognizer events into
// presentation updates, speech synthesis, and outbound notifications.
//
// The coordinator processes events strictly sequentially on the caller's
// goroutine — one session, one consumer. That discipline is what makes the
// rest of the design lock-free: partials and finals can never interleave, and
// the injected [State] is mutated from a single path.
//
// Side-effect ordering on a danger final is fixed: presentation update, then
// speech-synthesis invocation, then notification enqueue. The three effects
// are independent — a failing speaker never blocks the notification and vice
// versa. Only the notification's delivery leaves the critical path; its
// enqueue is synchronous and non-blocking.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/strazhlabs/strazh/internal/classify"
	"github.com/strazhlabs/strazh/internal/extract"
	"github.com/strazhlabs/strazh/internal/notify"
	"github.com/strazhlabs/strazh/internal/observe"
	"github.com/strazhlabs/strazh/internal/present"
	"github.com/strazhlabs/strazh/pkg/recognizer"
	"github.com/strazhlabs/strazh/pkg/synth"
)

// Display messages shown through the presentation sink.
const (
	// MsgWaiting is presented before a recognition session is open.
	MsgWaiting = "Ожидание речи..."

	// MsgListening is presented once the session is live.
	MsgListening = "🎤 Говорите, я слушаю..."

	// msgTimeout is presented on a no-speech timeout from the recognizer.
	msgTimeout = "⏰ Таймаут. Попробуйте снова."
)

// Phase is the coordinator's position in the per-utterance state machine.
type Phase int

const (
	// PhaseIdle means no hypotheses have arrived yet.
	PhaseIdle Phase = iota

	// PhaseListening means partial hypotheses are arriving.
	PhaseListening

	// PhaseCalm is the per-utterance terminal state for a non-danger final.
	PhaseCalm

	// PhaseAlerted is the per-utterance terminal state for a danger final.
	PhaseAlerted
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseCalm:
		return "calm"
	case PhaseAlerted:
		return "alerted"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithState injects the alert State. When unset a fresh State is created.
func WithState(s *State) Option {
	return func(c *Coordinator) {
		c.state = s
	}
}

// WithDedupWindow enables de-duplication of repeated danger finals: a danger
// final whose text duplicates the previous alert within window still updates
// the presentation sink but does not re-trigger speech or notification.
//
// This deviates from the baseline behaviour, which re-fires every danger
// final with no suppression. The window defaults to zero (disabled) to keep
// the baseline; enable it deliberately to avoid alert storms on repeated
// identical utterances.
func WithDedupWindow(window time.Duration) Option {
	return func(c *Coordinator) {
		c.dedupWindow = window
	}
}

// WithSimilarityThreshold relaxes the de-dup comparison from exact equality
// to Jaro-Winkler similarity: texts scoring at or above threshold (0..1)
// count as duplicates. Only consulted when a de-dup window is set. The
// default threshold of 1.0 means exact match only.
func WithSimilarityThreshold(threshold float64) Option {
	return func(c *Coordinator) {
		c.similarity = threshold
	}
}

// WithMetrics injects the metrics instance. When unset, DefaultMetrics is
// used.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithClock injects the time source used for de-dup window decisions and
// alert timestamps. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator consumes recognizer events for one session and fans out side
// effects. Not safe for concurrent use: feed it from a single goroutine, in
// arrival order.
type Coordinator struct {
	sink       present.Sink
	speaker    synth.Speaker
	dispatcher notify.Dispatcher

	state   *State
	metrics *observe.Metrics
	now     func() time.Time

	// Tunables behind tmu can be swapped by a config reload while events
	// flow; everything else is fixed at construction.
	tmu         sync.RWMutex
	classifier  *classify.Classifier
	dedupWindow time.Duration
	similarity  float64

	phase Phase
}

// New creates a Coordinator. classifier, sink, speaker, and dispatcher are
// required collaborators; speaker and dispatcher may be no-op implementations
// when those capabilities are not configured.
func New(classifier *classify.Classifier, sink present.Sink, speaker synth.Speaker, dispatcher notify.Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		classifier: classifier,
		sink:       sink,
		speaker:    speaker,
		dispatcher: dispatcher,
		similarity: 1.0,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.state == nil {
		c.state = NewState()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Phase returns the coordinator's current state-machine phase.
func (c *Coordinator) Phase() Phase { return c.phase }

// ApplyKeywords swaps the keyword list without restarting the pipeline.
// Safe to call from a config-reload goroutine.
func (c *Coordinator) ApplyKeywords(keywords []string) {
	cl := classify.New(keywords)
	c.tmu.Lock()
	c.classifier = cl
	c.tmu.Unlock()
	slog.Info("alert: keyword list replaced", "count", len(keywords))
}

// ApplyAlertTuning swaps the de-dup window and similarity threshold without
// restarting the pipeline. Safe to call from a config-reload goroutine.
func (c *Coordinator) ApplyAlertTuning(window time.Duration, threshold float64) {
	if threshold == 0 {
		threshold = 1.0
	}
	c.tmu.Lock()
	c.dedupWindow = window
	c.similarity = threshold
	c.tmu.Unlock()
	slog.Info("alert: de-dup tuning replaced", "window", window, "threshold", threshold)
}

// State returns the injected alert state.
func (c *Coordinator) State() *State { return c.state }

// SessionOpened presents the listening prompt for a freshly opened
// recognition session and resets the phase for the next utterance.
func (c *Coordinator) SessionOpened(context.Context) {
	c.phase = PhaseListening
	c.sink.Present(MsgListening, present.SeverityNormal)
}

// HandleEvent processes one recognizer event. Events must be delivered in
// arrival order from a single goroutine.
func (c *Coordinator) HandleEvent(ctx context.Context, ev recognizer.Event) {
	switch ev.Kind {
	case recognizer.KindPartial:
		c.handlePartial(ctx, ev.Payload)
	case recognizer.KindResult:
		c.handleSettled(ctx, ev.Payload, false)
	case recognizer.KindFinal:
		c.handleSettled(ctx, ev.Payload, true)
	case recognizer.KindError:
		c.handleError(ctx, ev.Err)
	case recognizer.KindTimeout:
		c.handleTimeout(ctx)
	}
}

// handlePartial renders a live, tentative hypothesis. Partials are advisory:
// no classification side effects, no speech, no notification — only the
// display is updated. Empty partials (the engine's keep-alive heartbeat) are
// skipped so they do not blank the current display.
func (c *Coordinator) handlePartial(ctx context.Context, payload string) {
	c.metrics.RecordHypothesis(ctx, "partial")
	c.phase = PhaseListening

	text := extract.Text(payload)
	if text == "" || text == extract.Sentinel {
		return
	}
	c.sink.Present(text, present.SeverityNormal)
}

// handleSettled classifies a settled hypothesis and, on danger, escalates:
// present, then invoke speech synthesis, then enqueue the notification.
func (c *Coordinator) handleSettled(ctx context.Context, payload string, final bool) {
	kind := "result"
	if final {
		kind = "final"
	}
	c.metrics.RecordHypothesis(ctx, kind)

	c.tmu.RLock()
	classifier := c.classifier
	window, threshold := c.dedupWindow, c.similarity
	c.tmu.RUnlock()

	text := extract.Text(payload)
	res := classifier.Classify(text)

	if !res.IsDanger {
		c.phase = PhaseCalm
		if final {
			c.sink.Present("🔚 Финальный результат:\n"+text, present.SeverityNormal)
		} else {
			c.sink.Present("✅ Распознано:\n"+text, present.SeverityNormal)
		}
		return
	}

	c.phase = PhaseAlerted
	if final {
		c.sink.Present("🛑 Опасность!\n"+text, present.SeverityDanger)
	} else {
		c.sink.Present("🚨 Обнаружено:\n"+text, present.SeverityDanger)
	}

	now := c.now()
	if c.isDuplicate(text, now, window, threshold) {
		c.metrics.AlertsSuppressed.Add(ctx, 1)
		slog.Info("alert: duplicate within de-dup window, suppressing re-trigger",
			"text", text)
		c.state.Record(text, now)
		return
	}
	c.state.Record(text, now)

	c.metrics.RecordAlert(ctx, res.MatchedText)
	slog.Warn("alert: danger keyword detected",
		"keyword", res.MatchedText,
		"text", text)

	// Ordering contract: presentation happened above, synthesis is invoked
	// here, the notification is enqueued last. The speaker is expected to be
	// fire-and-forget (wrap blocking backends in synth.Detach); its failure
	// is logged and must not stop the notification.
	start := time.Now()
	if err := c.speaker.Speak(ctx, text); err != nil {
		slog.Error("alert: speech synthesis failed", "err", err)
	}
	c.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())

	c.dispatcher.Enqueue(notify.NewRequest(text))
}

// isDuplicate reports whether text duplicates the previous alert within the
// de-dup window. Always false when the window is disabled.
func (c *Coordinator) isDuplicate(text string, now time.Time, window time.Duration, threshold float64) bool {
	if window <= 0 {
		return false
	}
	last, at, ok := c.state.Last()
	if !ok || now.Sub(at) > window {
		return false
	}
	if last == text {
		return true
	}
	if threshold < 1.0 && matchr.JaroWinkler(last, text, false) >= threshold {
		return true
	}
	return false
}

// handleError surfaces a recognizer error to the user. The coordinator keeps
// running: recognizer restart policy belongs to the session owner.
func (c *Coordinator) handleError(ctx context.Context, err error) {
	c.metrics.RecognizerErrors.Add(ctx, 1)
	desc := "unknown"
	if err != nil {
		desc = err.Error()
	}
	slog.Error("alert: recognizer error", "err", desc)
	c.sink.Present("❌ Ошибка: "+desc, present.SeverityNormal)
}

// handleTimeout surfaces a no-speech timeout. Alert state is untouched.
func (c *Coordinator) handleTimeout(context.Context) {
	c.sink.Present(msgTimeout, present.SeverityNormal)
}
