// Package vosk provides a recognizer.Provider backed by a vosk-server
// instance speaking the Vosk WebSocket protocol.
//
// The protocol is simple: after the connection is established the client
// sends a JSON configuration message ({"config": {...}}), then streams raw
// 16-bit little-endian PCM audio as binary messages. The server answers with
// JSON text messages — {"partial": "..."} for interim hypotheses and
// {"text": "..."} once a speech segment settles. Sending {"eof": 1} flushes
// buffered audio and produces one last settled hypothesis before the server
// closes the stream.
//
// Payloads are forwarded verbatim on the event stream; the consumer owns
// extraction and error recovery for malformed server output.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/strazhlabs/strazh/pkg/recognizer"
)

const (
	defaultSampleRate = 16000

	// eventChanBuf is the buffer depth of the session event channel. Vosk
	// partials arrive at most a few times per second, so a small buffer is
	// enough to decouple the read loop from a momentarily slow consumer.
	eventChanBuf = 64

	// audioChanBuf is the buffer depth of the outgoing audio channel.
	audioChanBuf = 256
)

// Compile-time assertion that Provider implements recognizer.Provider.
var _ recognizer.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithSampleRate sets the provider-level default audio sample rate in Hz,
// used when SessionConfig.SampleRate is zero. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithNoSpeechTimeout enables a client-side silence watchdog: when the server
// produces no hypothesis for d, the session emits a single timeout event and
// re-arms. Zero (the default) disables the watchdog — vosk-server itself
// never reports timeouts.
func WithNoSpeechTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.noSpeechTimeout = d
	}
}

// Provider implements recognizer.Provider backed by a vosk-server WebSocket
// endpoint. Multiple sessions may be open simultaneously; each session owns
// its own connection.
type Provider struct {
	serverURL       string
	sampleRate      int
	noSpeechTimeout time.Duration
}

// New creates a Provider connecting to the vosk-server WebSocket endpoint at
// serverURL (e.g., "ws://localhost:2700"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("vosk: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// voskConfig is the configuration message sent as the first frame of a session.
type voskConfig struct {
	Config struct {
		SampleRate      int `json:"sample_rate"`
		MaxAlternatives int `json:"max_alternatives,omitempty"`
	} `json:"config"`
}

// StartSession dials the server, sends the configuration frame, and returns a
// live session. It respects cfg.SampleRate and cfg.MaxAlternatives; zero
// values fall back to provider-level defaults.
func (p *Provider) StartSession(ctx context.Context, cfg recognizer.SessionConfig) (recognizer.Session, error) {
	conn, _, err := websocket.Dial(ctx, p.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk: dial %s: %w", p.serverURL, err)
	}

	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	var vc voskConfig
	vc.Config.SampleRate = sr
	vc.Config.MaxAlternatives = cfg.MaxAlternatives

	raw, err := json.Marshal(vc)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "config marshal failed")
		return nil, fmt.Errorf("vosk: marshal config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		conn.Close(websocket.StatusInternalError, "config write failed")
		return nil, fmt.Errorf("vosk: send config: %w", err)
	}

	s := &session{
		conn:            conn,
		events:          make(chan recognizer.Event, eventChanBuf),
		audio:           make(chan []byte, audioChanBuf),
		done:            make(chan struct{}),
		noSpeechTimeout: p.noSpeechTimeout,
		activity:        make(chan struct{}, 1),
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)
	if s.noSpeechTimeout > 0 {
		s.wg.Add(1)
		go s.watchdog()
	}

	return s, nil
}

// ---- session ----------------------------------------------------------------

// session is a live vosk-server streaming session. It implements
// recognizer.Session.
type session struct {
	conn   *websocket.Conn
	events chan recognizer.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// eofSent flips once Close has requested the eof flush; the next settled
	// hypothesis from the server is then tagged as the final one.
	mu      sync.Mutex
	eofSent bool

	noSpeechTimeout time.Duration
	activity        chan struct{}
}

// SendAudio queues a PCM chunk for delivery to the server.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("vosk: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("vosk: session is closed")
	}
}

// Events returns the in-order stream of recognition events.
func (s *session) Events() <-chan recognizer.Event { return s.events }

// closeGrace bounds how long Close waits for the server to deliver the
// flushed final hypothesis and close the stream on its own.
const closeGrace = 5 * time.Second

// Close flushes pending audio with an eof frame and tears the session down.
// The flush happens inside the write loop: it drains every queued chunk onto
// the wire first and only then sends eof, so the server sees the full
// utterance tail before the end-of-stream marker. The server answers the eof
// with one last settled hypothesis; Close waits for it (bounded by
// closeGrace) so the final event is not lost.
func (s *session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.eofSent = true
		s.mu.Unlock()
		close(s.done)
		guard := time.AfterFunc(closeGrace, func() {
			s.conn.Close(websocket.StatusGoingAway, "close grace elapsed")
		})
		s.wg.Wait()
		guard.Stop()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop forwards queued audio chunks to the server as binary messages.
// It owns the eof frame: on shutdown it drains the remaining queue onto the
// wire first, so no queued audio lands after the end-of-stream marker.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still queued, then signal end of stream.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						s.writeEOF()
						return
					}
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					s.writeEOF()
					return
				}
			}
		}
	}
}

// writeEOF asks the server to flush buffered audio and settle the last
// hypothesis. A background context: the session context may already be
// cancelled during shutdown and the frame must still go out.
func (s *session) writeEOF() {
	_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"eof" : 1}`))
}

// readLoop receives JSON messages from the server and emits tagged events.
// Server payloads are forwarded verbatim; only the partial/settled distinction
// is decoded here to pick the event kind.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Expected: Close tore down the connection.
			default:
				s.emit(recognizer.Event{
					Kind:      recognizer.KindError,
					Err:       fmt.Errorf("vosk: read: %w", err),
					Timestamp: time.Now(),
				})
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		payload := string(data)
		kind := recognizer.KindResult
		if isPartialPayload(payload) {
			kind = recognizer.KindPartial
		} else {
			s.mu.Lock()
			if s.eofSent {
				kind = recognizer.KindFinal
			}
			s.mu.Unlock()
		}

		s.poke()
		s.emit(recognizer.Event{
			Kind:      kind,
			Payload:   payload,
			Timestamp: time.Now(),
		})
	}
}

// watchdog emits a timeout event when the server has been silent for the
// configured window, then re-arms and waits for the next hypothesis.
func (s *session) watchdog() {
	defer s.wg.Done()
	timer := time.NewTimer(s.noSpeechTimeout)
	defer timer.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.noSpeechTimeout)
		case <-timer.C:
			s.emit(recognizer.Event{
				Kind:      recognizer.KindTimeout,
				Timestamp: time.Now(),
			})
			timer.Reset(s.noSpeechTimeout)
		}
	}
}

// poke signals the watchdog that a hypothesis arrived. Non-blocking.
func (s *session) poke() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

// emit delivers ev. The buffered attempt keeps events flowing through
// shutdown; an event is dropped only when the consumer has abandoned the
// session with a full buffer.
func (s *session) emit(ev recognizer.Event) {
	select {
	case s.events <- ev:
	default:
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// isPartialPayload reports whether the raw server payload is an interim
// hypothesis ({"partial": ...}) rather than a settled one ({"text": ...}).
// Decoding failures are treated as settled so that the consumer's extraction
// fallback sees the payload.
func isPartialPayload(payload string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return strings.Contains(payload, `"partial"`)
	}
	_, ok := probe["partial"]
	return ok
}
