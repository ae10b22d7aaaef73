// Package coqui provides a synth.Speaker backed by a standard Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
// with URL query parameters; the server answers with a WAV body.
//
// The synthesised audio is handed to a configurable player callback. When no
// player is configured the audio is fetched and discarded — the round-trip
// still validates that the server can speak the alert text, which keeps the
// failure visible in logs on misconfigured deployments.
//
// Typical usage:
//
//	sp, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("ru"),
//	    coqui.WithPlayer(playWAV),
//	)
//	_ = sp.Speak(ctx, "у меня нож")
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/strazhlabs/strazh/pkg/synth"
)

const (
	ttsEndpoint     = "/api/tts"
	defaultLanguage = "ru"
	defaultTimeout  = 30 * time.Second

	// maxAudioBytes caps how much synthesised audio is read from the server.
	// A short alert phrase is well under 1 MiB of WAV; anything larger is a
	// server fault.
	maxAudioBytes = 16 << 20
)

// Compile-time assertion that Speaker implements synth.Speaker.
var _ synth.Speaker = (*Speaker)(nil)

// PlayFunc consumes a complete WAV clip. It is called synchronously from
// Speak; long-running players should honour ctx.
type PlayFunc func(ctx context.Context, wav []byte) error

// Option is a functional option for configuring a Speaker.
type Option func(*Speaker)

// WithLanguage sets the language id sent to the TTS server (e.g., "ru", "en").
// This is the spoken locale, set once at construction. Defaults to "ru".
func WithLanguage(lang string) Option {
	return func(s *Speaker) {
		s.language = lang
	}
}

// WithSpeakerID selects a voice on multi-speaker models. Empty (the default)
// uses the server's default voice.
func WithSpeakerID(id string) Option {
	return func(s *Speaker) {
		s.speakerID = id
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) {
		s.httpClient.Timeout = d
	}
}

// WithPlayer sets the callback that receives synthesised WAV audio.
// When unset, audio is discarded after a successful fetch.
func WithPlayer(play PlayFunc) Option {
	return func(s *Speaker) {
		s.play = play
	}
}

// Speaker implements synth.Speaker against a Coqui TTS server.
// Safe for concurrent use; each Speak call is an independent HTTP request.
type Speaker struct {
	serverURL  string
	language   string
	speakerID  string
	play       PlayFunc
	httpClient *http.Client
}

// New creates a Speaker targeting the Coqui TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Speaker, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Speaker{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Speak synthesises text and plays it through the configured player.
// Empty text is a no-op. Errors cover request construction, transport,
// non-2xx responses, and player failures.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.buildURL(text), nil)
	if err != nil {
		return fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("coqui: server returned %s", resp.Status)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return fmt.Errorf("coqui: read audio: %w", err)
	}

	if s.play == nil {
		return nil
	}
	if err := s.play(ctx, wav); err != nil {
		return fmt.Errorf("coqui: play: %w", err)
	}
	return nil
}

// buildURL constructs the /api/tts request URL for text.
func (s *Speaker) buildURL(text string) string {
	q := url.Values{}
	q.Set("text", text)
	if s.language != "" {
		q.Set("language_id", s.language)
	}
	if s.speakerID != "" {
		q.Set("speaker_id", s.speakerID)
	}
	return s.serverURL + ttsEndpoint + "?" + q.Encode()
}
