package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/speechstudio/pkg/playback"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for speech
// providers and audio outputs. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	speech  map[string]func(ProviderEntry) (speech.Provider, error)
	outputs map[string]func(AudioConfig) (playback.Output, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		speech:  make(map[string]func(ProviderEntry) (speech.Provider, error)),
		outputs: make(map[string]func(AudioConfig) (playback.Output, error)),
	}
}

// RegisterSpeech registers a speech provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// RegisterOutput registers an audio output factory under name.
func (r *Registry) RegisterOutput(name OutputName, factory func(AudioConfig) (playback.Output, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[string(name)] = factory
}

// CreateSpeech instantiates the speech provider described by entry.
// Returns [ErrProviderNotRegistered] (wrapped) if entry.Name is unknown.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Provider, error) {
	r.mu.RLock()
	f, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateOutput instantiates the audio output selected by cfg.Output.
// Returns [ErrProviderNotRegistered] (wrapped) if the output is unknown.
func (r *Registry) CreateOutput(cfg AudioConfig) (playback.Output, error) {
	r.mu.RLock()
	f, ok := r.outputs[string(cfg.Output)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q", ErrProviderNotRegistered, cfg.Output)
	}
	return f(cfg)
}
