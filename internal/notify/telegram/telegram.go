// Package telegram delivers alert notifications through the Telegram Bot API.
//
// Delivery is a single GET to
// /bot{token}/sendMessage?chat_id={id}&text={urlencoded} per request —
// success means a 2xx status. There are no retries: a success logs the remote
// status at info level, any failure (transport, non-2xx) logs at error level
// and is swallowed. A circuit breaker short-circuits delivery attempts while
// the endpoint is consistently unreachable; short-circuited requests are
// logged and dropped like any other failure.
//
// The bot token and chat id are injected configuration. They are credentials:
// never hardcode them.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/strazhlabs/strazh/internal/notify"
	"github.com/strazhlabs/strazh/internal/observe"
	"github.com/strazhlabs/strazh/internal/resilience"
)

const (
	defaultEndpoint = "https://api.telegram.org"
	defaultTimeout  = 10 * time.Second

	// defaultQueueSize bounds the dispatch queue. Alerts beyond a full queue
	// are dropped with an error log — blocking the pipeline would be worse.
	defaultQueueSize = 64

	// alertPrefix is prepended to every delivered alert text.
	alertPrefix = "🚨 Опасность: "
)

// Compile-time assertion that Notifier implements notify.Dispatcher.
var _ notify.Dispatcher = (*Notifier)(nil)

// Option is a functional option for configuring a Notifier.
type Option func(*Notifier)

// WithEndpoint overrides the Telegram API base URL. Intended for tests.
func WithEndpoint(endpoint string) Option {
	return func(n *Notifier) {
		n.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		n.httpClient.Timeout = d
	}
}

// WithQueueSize sets the dispatch queue depth. Defaults to 64.
func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queueSize = size
		}
	}
}

// WithBreaker injects a circuit breaker guarding the endpoint. When unset a
// breaker with default tuning is created.
func WithBreaker(b *resilience.Breaker) Option {
	return func(n *Notifier) {
		n.breaker = b
	}
}

// WithMetrics injects the metrics instance. When unset, DefaultMetrics is
// used.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// Notifier implements notify.Dispatcher against the Telegram Bot API.
// A single background worker drains the queue so that callers never wait on
// the network. Safe for concurrent use.
type Notifier struct {
	token    string
	chatID   string
	endpoint string

	httpClient *http.Client
	breaker    *resilience.Breaker
	metrics    *observe.Metrics
	queueSize  int

	queue chan notify.Request
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Notifier and starts its dispatch worker. token and chatID
// must be non-empty; they come from configuration, not source code.
func New(token, chatID string, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram: bot token must not be empty")
	}
	if chatID == "" {
		return nil, errors.New("telegram: chat id must not be empty")
	}
	n := &Notifier{
		token:      token,
		chatID:     chatID,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		queueSize:  defaultQueueSize,
	}
	for _, o := range opts {
		o(n)
	}
	if n.breaker == nil {
		n.breaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "telegram"})
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}

	n.queue = make(chan notify.Request, n.queueSize)
	n.wg.Add(1)
	go n.worker()
	return n, nil
}

// Enqueue hands req to the dispatch worker without blocking. When the queue
// is full the request is dropped and logged; the caller is never delayed or
// informed — notification is fire-and-forget by contract.
func (n *Notifier) Enqueue(req notify.Request) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.metrics.RecordNotification(context.Background(), "dropped")
		slog.Error("telegram: dispatcher closed, dropping notification",
			"request_id", req.ID)
		return
	}
	select {
	case n.queue <- req:
		n.mu.Unlock()
	default:
		n.mu.Unlock()
		n.metrics.RecordNotification(context.Background(), "dropped")
		slog.Error("telegram: dispatch queue full, dropping notification",
			"request_id", req.ID)
	}
}

// Close stops accepting requests, drains the queue, and waits for the worker
// to finish in-flight delivery. Safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

// worker drains the queue and delivers requests one at a time. Enqueue order
// is preserved per notifier; cross-alert delivery order is best-effort only.
// Each attempt records an outcome counter; delivery latency is recorded for
// attempts that reached the wire (a short-circuited breaker never does).
func (n *Notifier) worker() {
	defer n.wg.Done()
	ctx := context.Background()
	for req := range n.queue {
		start := time.Now()
		err := n.breaker.Execute(func() error {
			return n.send(req)
		})
		switch {
		case err == nil:
			// send already logged the status.
			n.metrics.NotifyDuration.Record(ctx, time.Since(start).Seconds())
			n.metrics.RecordNotification(ctx, "ok")
		case errors.Is(err, resilience.ErrOpen):
			n.metrics.RecordNotification(ctx, "dropped")
			slog.Error("telegram: endpoint unavailable, dropping notification",
				"request_id", req.ID)
		default:
			n.metrics.NotifyDuration.Record(ctx, time.Since(start).Seconds())
			n.metrics.RecordNotification(ctx, "error")
			slog.Error("telegram: delivery failed",
				"request_id", req.ID,
				"err", err)
		}
	}
}

// send performs one sendMessage call. The alert text is percent-encoded with
// the warning prefix; url.Values escapes all reserved and non-ASCII runes.
func (n *Notifier) send(req notify.Request) error {
	q := url.Values{}
	q.Set("chat_id", n.chatID)
	q.Set("text", alertPrefix+req.Text)
	reqURL := fmt.Sprintf("%s/bot%s/sendMessage?%s", n.endpoint, n.token, q.Encode())

	ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	slog.Info("telegram: notification delivered",
		"request_id", req.ID,
		"status", resp.StatusCode,
		"queued_for", time.Since(req.EnqueuedAt).Round(time.Millisecond))
	return nil
}
