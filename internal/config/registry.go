package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sotto-voice/sotto/pkg/provider/stt"
	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

// ErrEngineNotRegistered is returned by Create* methods when no factory has
// been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: engine not registered")

// Registry maps engine names to their constructor functions. The binary
// registers the backends it is built with; config validation stays
// independent of which backends are linked in. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	vad map[VADEngine]func(VADConfig) (vad.Engine, error)
	stt map[string]func(TranscriptionConfig) (stt.Engine, error)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vad: make(map[VADEngine]func(VADConfig) (vad.Engine, error)),
		stt: make(map[string]func(TranscriptionConfig) (stt.Engine, error)),
	}
}

// RegisterVAD registers a VAD engine factory under name. A later
// registration under the same name replaces the earlier one.
func (r *Registry) RegisterVAD(name VADEngine, factory func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSTT registers a transcription engine factory under name.
func (r *Registry) RegisterSTT(name string, factory func(TranscriptionConfig) (stt.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateVAD constructs the VAD engine selected by cfg.Engine.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad %q", ErrEngineNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}

// CreateSTT constructs the transcription engine registered under name.
func (r *Registry) CreateSTT(name string, cfg TranscriptionConfig) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt %q", ErrEngineNotRegistered, name)
	}
	return factory(cfg)
}
