package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/strazhlabs/strazh/pkg/recognizer"
	"github.com/strazhlabs/strazh/pkg/synth"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pipeline boundary. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	recognizer map[string]func(ProviderEntry) (recognizer.Provider, error)
	synth      map[string]func(ProviderEntry) (synth.Speaker, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizer: make(map[string]func(ProviderEntry) (recognizer.Provider, error)),
		synth:      make(map[string]func(ProviderEntry) (synth.Speaker, error)),
	}
}

// RegisterRecognizer registers a recognizer provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(ProviderEntry) (recognizer.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer[name] = factory
}

// RegisterSynth registers a speech-synthesis factory under name.
func (r *Registry) RegisterSynth(name string, factory func(ProviderEntry) (synth.Speaker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[name] = factory
}

// CreateRecognizer instantiates a recognizer provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (recognizer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSynth instantiates a speech synthesizer using the factory registered
// under entry.Name.
func (r *Registry) CreateSynth(entry ProviderEntry) (synth.Speaker, error) {
	r.mu.RLock()
	factory, ok := r.synth[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synth/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
