package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/strazhlabs/strazh/internal/notify"
	"github.com/strazhlabs/strazh/internal/observe"
	"github.com/strazhlabs/strazh/internal/resilience"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "42"); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := New("token", ""); err == nil {
		t.Error("expected error for empty chat id")
	}
}

// recordingServer captures sendMessage requests.
type recordingServer struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func (rs *recordingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.requests = append(rs.requests, r.Clone(r.Context()))
		status := rs.status
		rs.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (rs *recordingServer) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.requests)
}

func TestEnqueue_DeliversEncodedAlert(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()

	n, err := New("bot-token", "186902597", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.Enqueue(notify.NewRequest("у меня нож"))
	n.Close()

	if got := rs.count(); got != 1 {
		t.Fatalf("server received %d requests, want 1", got)
	}

	r := rs.requests[0]
	if !strings.HasPrefix(r.URL.Path, "/botbot-token/sendMessage") {
		t.Errorf("path = %q, want /bot{token}/sendMessage", r.URL.Path)
	}
	q := r.URL.Query()
	if got := q.Get("chat_id"); got != "186902597" {
		t.Errorf("chat_id = %q, want 186902597", got)
	}
	text := q.Get("text")
	if !strings.Contains(text, "у меня нож") {
		t.Errorf("text = %q, want it to contain the alert phrase", text)
	}
	if !strings.HasPrefix(text, "🚨 Опасность: ") {
		t.Errorf("text = %q, want the warning prefix", text)
	}
	// The raw query must be fully percent-encoded: no literal Cyrillic bytes.
	if strings.Contains(r.URL.RawQuery, "нож") {
		t.Errorf("raw query %q contains unencoded Cyrillic", r.URL.RawQuery)
	}
}

func TestEnqueue_FailureIsSwallowed(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{status: http.StatusBadGateway}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()

	n, err := New("t", "c", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Neither Enqueue nor Close may panic, block, or surface the failure.
	n.Enqueue(notify.NewRequest("нож"))
	n.Enqueue(notify.NewRequest("бомба"))
	n.Close()

	if got := rs.count(); got != 2 {
		t.Errorf("server received %d requests, want 2 (no retries, no early abort)", got)
	}
}

func TestEnqueue_AfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := New("t", "c", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.Close()
	n.Enqueue(notify.NewRequest("нож")) // must not panic on the closed queue
	n.Close()                           // double Close is safe
}

// newTestMetrics returns a Metrics instance backed by a ManualReader so the
// test can inspect recorded values.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// notificationOutcomes collects the strazh.notifications counter broken down
// by its status attribute, plus the strazh.notify.duration observation count.
func notificationOutcomes(t *testing.T, reader *sdkmetric.ManualReader) (map[string]int64, uint64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	outcomes := make(map[string]int64)
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "strazh.notifications":
				sum, ok := met.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("strazh.notifications is %T, want Sum[int64]", met.Data)
				}
				for _, dp := range sum.DataPoints {
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					outcomes[status.AsString()] += dp.Value
				}
			case "strazh.notify.duration":
				h, ok := met.Data.(metricdata.Histogram[float64])
				if !ok {
					t.Fatalf("strazh.notify.duration is %T, want Histogram[float64]", met.Data)
				}
				for _, dp := range h.DataPoints {
					durations += dp.Count
				}
			}
		}
	}
	return outcomes, durations
}

func TestEnqueue_RecordsDeliveryMetrics(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)

	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failSrv.Close()

	// One delivered notification.
	ok, err := New("t", "c", WithEndpoint(okSrv.URL), WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok.Enqueue(notify.NewRequest("нож"))
	ok.Close()

	// One failed delivery opens the breaker; the rest are shed without
	// reaching the wire.
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "telegram-test",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	failing, err := New("t", "c", WithEndpoint(failSrv.URL), WithMetrics(m), WithBreaker(b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		failing.Enqueue(notify.NewRequest("бомба"))
	}
	failing.Close()

	outcomes, durations := notificationOutcomes(t, reader)
	want := map[string]int64{"ok": 1, "error": 1, "dropped": 2}
	for status, n := range want {
		if outcomes[status] != n {
			t.Errorf("notifications{status=%q} = %d, want %d", status, outcomes[status], n)
		}
	}
	// Latency is observed only for attempts that reached the wire.
	if durations != 2 {
		t.Errorf("notify duration observations = %d, want 2", durations)
	}
}

func TestEnqueue_BreakerShortCircuits(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rs.handler())
	defer srv.Close()

	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "telegram-test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	n, err := New("t", "c", WithEndpoint(srv.URL), WithBreaker(b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 5; i++ {
		n.Enqueue(notify.NewRequest("нож"))
	}
	n.Close()

	// Only the first two attempts reach the wire; the rest are shed.
	if got := rs.count(); got != 2 {
		t.Errorf("server received %d requests, want 2 (breaker open)", got)
	}
	if got := b.State(); got != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", got)
	}
}
