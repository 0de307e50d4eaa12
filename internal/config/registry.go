package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/audio/output"
	"github.com/MrWong99/aria/pkg/provider/content"
	"github.com/MrWong99/aria/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory signatures accepted by the [Registry].
type (
	ContentFactory func(ctx context.Context, entry ProviderEntry, persona content.Persona) (content.Provider, error)
	LiveFactory    func(entry ProviderEntry) (live.Provider, error)
	InputFactory   func(dev DeviceConfig, frameSamples int) (audio.Microphone, error)
	OutputFactory  func(dev DeviceConfig) (output.Sink, error)
)

// Registry maps provider and device names to their constructors. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	content map[string]ContentFactory
	live    map[string]LiveFactory
	input   map[Device]InputFactory
	output  map[Device]OutputFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		content: make(map[string]ContentFactory),
		live:    make(map[string]LiveFactory),
		input:   make(map[Device]InputFactory),
		output:  make(map[Device]OutputFactory),
	}
}

// RegisterContent registers a content provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterContent(name string, f ContentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[name] = f
}

// RegisterLive registers a live session provider factory under name.
func (r *Registry) RegisterLive(name string, f LiveFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = f
}

// RegisterInput registers a microphone factory for dev.
func (r *Registry) RegisterInput(dev Device, f InputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input[dev] = f
}

// RegisterOutput registers an output sink factory for dev.
func (r *Registry) RegisterOutput(dev Device, f OutputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output[dev] = f
}

// CreateContent instantiates the content provider registered under
// entry.Name.
func (r *Registry) CreateContent(ctx context.Context, entry ProviderEntry, persona content.Persona) (content.Provider, error) {
	r.mu.RLock()
	f, ok := r.content[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: content/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(ctx, entry, persona)
}

// CreateLive instantiates the live provider registered under entry.Name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	f, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateInput instantiates the microphone for dev.Device.
func (r *Registry) CreateInput(dev DeviceConfig, frameSamples int) (audio.Microphone, error) {
	r.mu.RLock()
	f, ok := r.input[dev.Device]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: input/%q", ErrProviderNotRegistered, dev.Device)
	}
	return f(dev, frameSamples)
}

// CreateOutput instantiates the output sink for dev.Device.
func (r *Registry) CreateOutput(dev DeviceConfig) (output.Sink, error) {
	r.mu.RLock()
	f, ok := r.output[dev.Device]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q", ErrProviderNotRegistered, dev.Device)
	}
	return f(dev)
}
