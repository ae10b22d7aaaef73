package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strazhlabs/strazh/internal/config"
	"github.com/strazhlabs/strazh/pkg/recognizer"
	recmock "github.com/strazhlabs/strazh/pkg/recognizer/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNew_RequiresRecognizer(t *testing.T) {
	t.Parallel()

	_, err := New(testConfig(), &Providers{}, WithDispatcher(&memoryDispatcher{}))
	if err == nil {
		t.Fatal("New() = nil error without a recognizer provider")
	}
}

func TestNew_WiresPipeline(t *testing.T) {
	t.Parallel()

	dispatcher := &memoryDispatcher{}
	a, err := New(testConfig(), &Providers{Recognizer: &recmock.Provider{}},
		WithDispatcher(dispatcher),
		WithSink(&memorySink{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A danger final through the coordinator must reach the injected
	// dispatcher.
	a.Coordinator().HandleEvent(context.Background(), recognizer.Event{
		Kind:    recognizer.KindFinal,
		Payload: `{"text": "у меня нож"}`,
	})
	if dispatcher.count() != 1 {
		t.Errorf("got %d notifications, want 1", dispatcher.count())
	}
}

func TestNew_DisablesNotificationsWithoutCredentials(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), &Providers{Recognizer: &recmock.Provider{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.notifierCheck(context.Background()); err != nil {
		t.Errorf("notifierCheck() = %v, want nil when telegram is deliberately unconfigured", err)
	}
}

func TestApp_ApplyReload(t *testing.T) {
	t.Parallel()

	dispatcher := &memoryDispatcher{}
	old := testConfig()
	a, err := New(old, &Providers{Recognizer: &recmock.Provider{}},
		WithDispatcher(dispatcher),
		WithSink(&memorySink{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// "пожар" is not in the default keyword list.
	a.Coordinator().HandleEvent(context.Background(), recognizer.Event{
		Kind:    recognizer.KindFinal,
		Payload: `{"text": "пожар в здании"}`,
	})
	if dispatcher.count() != 0 {
		t.Fatalf("got %d notifications before reload, want 0", dispatcher.count())
	}

	new := testConfig()
	new.Keywords = []string{"пожар"}
	a.ApplyReload(old, new)

	a.Coordinator().HandleEvent(context.Background(), recognizer.Event{
		Kind:    recognizer.KindFinal,
		Payload: `{"text": "пожар в здании"}`,
	})
	if dispatcher.count() != 1 {
		t.Errorf("got %d notifications after reload, want 1", dispatcher.count())
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), &Providers{Recognizer: &recmock.Provider{}},
		WithDispatcher(&memoryDispatcher{}),
		WithSink(&memorySink{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want nil or context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
