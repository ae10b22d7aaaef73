package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/strazhlabs/strazh/internal/classify"
	"github.com/strazhlabs/strazh/internal/extract"
	"github.com/strazhlabs/strazh/internal/notify"
	"github.com/strazhlabs/strazh/internal/present"
	"github.com/strazhlabs/strazh/pkg/recognizer"
	synthmock "github.com/strazhlabs/strazh/pkg/synth/mock"
)

// recordingSink captures every presentation update in order.
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

type sinkCall struct {
	text     string
	severity present.Severity
}

func (s *recordingSink) Present(text string, severity present.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{text: text, severity: severity})
}

func (s *recordingSink) last(t *testing.T) sinkCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatal("no presentation updates recorded")
	}
	return s.calls[len(s.calls)-1]
}

// recordingDispatcher captures enqueued notification requests.
type recordingDispatcher struct {
	mu       sync.Mutex
	requests []notify.Request
}

func (d *recordingDispatcher) Enqueue(req notify.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
}

func (d *recordingDispatcher) all() []notify.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notify.Request, len(d.requests))
	copy(out, d.requests)
	return out
}

type fixture struct {
	coord      *Coordinator
	sink       *recordingSink
	speaker    *synthmock.Speaker
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	sink := &recordingSink{}
	speaker := &synthmock.Speaker{}
	dispatcher := &recordingDispatcher{}
	coord := New(classify.New(classify.DefaultKeywords), sink, speaker, dispatcher, opts...)
	return &fixture{coord: coord, sink: sink, speaker: speaker, dispatcher: dispatcher}
}

func partialEvent(text string) recognizer.Event {
	return recognizer.Event{Kind: recognizer.KindPartial, Payload: `{"partial": "` + text + `"}`}
}

func resultEvent(text string) recognizer.Event {
	return recognizer.Event{Kind: recognizer.KindResult, Payload: `{"text": "` + text + `"}`}
}

func finalEvent(text string) recognizer.Event {
	return recognizer.Event{Kind: recognizer.KindFinal, Payload: `{"text": "` + text + `"}`}
}

func TestCoordinator_PartialIsDisplayOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), partialEvent("у меня нож"))

	call := f.sink.last(t)
	if call.text != "у меня нож" {
		t.Errorf("presented %q, want raw partial text", call.text)
	}
	if call.severity != present.SeverityNormal {
		t.Errorf("severity = %v, want normal even for dangerous-sounding partials", call.severity)
	}
	if got := len(f.speaker.Calls()); got != 0 {
		t.Errorf("partial triggered %d Speak calls, want 0", got)
	}
	if got := len(f.dispatcher.all()); got != 0 {
		t.Errorf("partial triggered %d notifications, want 0", got)
	}
	if f.coord.Phase() != PhaseListening {
		t.Errorf("phase = %v, want %v", f.coord.Phase(), PhaseListening)
	}
}

func TestCoordinator_EmptyPartialKeepsDisplay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), partialEvent("привет"))
	f.coord.HandleEvent(context.Background(), partialEvent(""))

	call := f.sink.last(t)
	if call.text != "привет" {
		t.Errorf("empty partial overwrote display with %q", call.text)
	}
}

func TestCoordinator_CalmResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), resultEvent("я иду домой"))

	call := f.sink.last(t)
	if want := "✅ Распознано:\nя иду домой"; call.text != want {
		t.Errorf("presented %q, want %q", call.text, want)
	}
	if call.severity != present.SeverityNormal {
		t.Errorf("severity = %v, want normal", call.severity)
	}
	if len(f.speaker.Calls()) != 0 || len(f.dispatcher.all()) != 0 {
		t.Error("calm result must not trigger speech or notification")
	}
	if f.coord.Phase() != PhaseCalm {
		t.Errorf("phase = %v, want %v", f.coord.Phase(), PhaseCalm)
	}
}

func TestCoordinator_CalmFinal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), finalEvent("я иду домой"))

	call := f.sink.last(t)
	if want := "🔚 Финальный результат:\nя иду домой"; call.text != want {
		t.Errorf("presented %q, want %q", call.text, want)
	}
	if len(f.speaker.Calls()) != 0 || len(f.dispatcher.all()) != 0 {
		t.Error("calm final must not trigger speech or notification")
	}
}

func TestCoordinator_DangerResultEscalates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), resultEvent("у меня нож"))

	call := f.sink.last(t)
	if want := "🚨 Обнаружено:\nу меня нож"; call.text != want {
		t.Errorf("presented %q, want %q", call.text, want)
	}
	if call.severity != present.SeverityDanger {
		t.Errorf("severity = %v, want danger", call.severity)
	}

	speaks := f.speaker.Calls()
	if len(speaks) != 1 {
		t.Fatalf("got %d Speak calls, want exactly 1", len(speaks))
	}
	if speaks[0].Text != "у меня нож" {
		t.Errorf("spoke %q, want full recognized text", speaks[0].Text)
	}

	reqs := f.dispatcher.all()
	if len(reqs) != 1 {
		t.Fatalf("got %d notifications, want exactly 1", len(reqs))
	}
	if reqs[0].Text != "у меня нож" {
		t.Errorf("notification text = %q, want undecorated recognized text", reqs[0].Text)
	}
	if reqs[0].ID == "" {
		t.Error("notification request has empty ID")
	}

	if f.coord.Phase() != PhaseAlerted {
		t.Errorf("phase = %v, want %v", f.coord.Phase(), PhaseAlerted)
	}
	if _, _, ok := f.coord.State().Last(); !ok {
		t.Error("alert state not recorded")
	}
}

func TestCoordinator_DangerFinalDisplay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), finalEvent("там бомба"))

	call := f.sink.last(t)
	if want := "🛑 Опасность!\nтам бомба"; call.text != want {
		t.Errorf("presented %q, want %q", call.text, want)
	}
	if call.severity != present.SeverityDanger {
		t.Errorf("severity = %v, want danger", call.severity)
	}
}

func TestCoordinator_MalformedPayloadFallsBackToSentinel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), recognizer.Event{
		Kind:    recognizer.KindResult,
		Payload: `{not json at all`,
	})

	call := f.sink.last(t)
	if !strings.Contains(call.text, extract.Sentinel) {
		t.Errorf("presented %q, want the unrecognized-text sentinel", call.text)
	}
	if call.severity != present.SeverityNormal {
		t.Errorf("severity = %v, want normal for sentinel", call.severity)
	}
	if len(f.speaker.Calls()) != 0 || len(f.dispatcher.all()) != 0 {
		t.Error("sentinel text must never escalate")
	}
}

func TestCoordinator_BaselineRefiresRepeatedDanger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))
	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))

	if got := len(f.speaker.Calls()); got != 2 {
		t.Errorf("got %d Speak calls, want 2: baseline has no de-duplication", got)
	}
	if got := len(f.dispatcher.all()); got != 2 {
		t.Errorf("got %d notifications, want 2: baseline has no de-duplication", got)
	}
}

func TestCoordinator_DedupWindowSuppressesRepeat(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := newFixture(t, WithDedupWindow(time.Minute), WithClock(clock))

	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))
	now = now.Add(10 * time.Second)
	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))

	if got := len(f.dispatcher.all()); got != 1 {
		t.Fatalf("got %d notifications within window, want 1", got)
	}
	if got := len(f.speaker.Calls()); got != 1 {
		t.Fatalf("got %d Speak calls within window, want 1", got)
	}

	// The suppressed repeat still updates the display.
	call := f.sink.last(t)
	if want := "🛑 Опасность!\nу меня нож"; call.text != want {
		t.Errorf("suppressed repeat presented %q, want %q", call.text, want)
	}

	// Outside the window the same text fires again.
	now = now.Add(2 * time.Minute)
	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))
	if got := len(f.dispatcher.all()); got != 2 {
		t.Errorf("got %d notifications after window expired, want 2", got)
	}
}

func TestCoordinator_DedupSimilarityMatchesNearDuplicates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := newFixture(t,
		WithDedupWindow(time.Minute),
		WithSimilarityThreshold(0.9),
		WithClock(clock),
	)

	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))
	now = now.Add(5 * time.Second)
	f.coord.HandleEvent(context.Background(), finalEvent("у меня ножи"))

	if got := len(f.dispatcher.all()); got != 1 {
		t.Errorf("got %d notifications for near-identical texts, want 1", got)
	}
}

func TestCoordinator_SpeakerFailureDoesNotStopNotification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.speaker.SpeakErr = errors.New("tts backend down")

	f.coord.HandleEvent(context.Background(), finalEvent("помогите"))

	if got := len(f.speaker.Calls()); got != 1 {
		t.Fatalf("got %d Speak calls, want 1", got)
	}
	if got := len(f.dispatcher.all()); got != 1 {
		t.Errorf("got %d notifications after speaker failure, want 1", got)
	}
}

func TestCoordinator_KeepsRunningAfterDanger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), finalEvent("стрелять будут"))
	f.coord.HandleEvent(context.Background(), resultEvent("всё спокойно"))

	call := f.sink.last(t)
	if want := "✅ Распознано:\nвсё спокойно"; call.text != want {
		t.Errorf("presented %q after a danger final, want %q", call.text, want)
	}
	if f.coord.Phase() != PhaseCalm {
		t.Errorf("phase = %v, want %v", f.coord.Phase(), PhaseCalm)
	}
}

func TestCoordinator_ErrorPresentation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), recognizer.Event{
		Kind: recognizer.KindError,
		Err:  errors.New("connection reset"),
	})

	call := f.sink.last(t)
	if want := "❌ Ошибка: connection reset"; call.text != want {
		t.Errorf("presented %q, want %q", call.text, want)
	}
	if len(f.speaker.Calls()) != 0 || len(f.dispatcher.all()) != 0 {
		t.Error("recognizer error must not trigger alert side effects")
	}
}

func TestCoordinator_TimeoutPresentation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), recognizer.Event{Kind: recognizer.KindTimeout})

	call := f.sink.last(t)
	if want := "⏰ Таймаут. Попробуйте снова."; call.text != want {
		t.Errorf("presented %q, want %q", call.text, want)
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseListening, "listening"},
		{PhaseCalm, "calm"},
		{PhaseAlerted, "alerted"},
		{Phase(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.phase.String(); got != tc.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tc.phase, got, tc.want)
		}
	}
}

func TestCoordinator_ApplyKeywords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), finalEvent("пожар в здании"))
	if got := len(f.dispatcher.all()); got != 0 {
		t.Fatalf("got %d notifications before the keyword reload, want 0", got)
	}

	f.coord.ApplyKeywords([]string{"пожар"})
	f.coord.HandleEvent(context.Background(), finalEvent("пожар в здании"))
	if got := len(f.dispatcher.all()); got != 1 {
		t.Errorf("got %d notifications after the keyword reload, want 1", got)
	}
}

func TestCoordinator_ApplyAlertTuning(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))

	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))
	f.coord.ApplyAlertTuning(time.Minute, 0)

	now = now.Add(5 * time.Second)
	f.coord.HandleEvent(context.Background(), finalEvent("у меня нож"))

	if got := len(f.dispatcher.all()); got != 1 {
		t.Errorf("got %d notifications after enabling the de-dup window, want 1", got)
	}
}
