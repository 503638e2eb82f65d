package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/hallvoice/pkg/provider/llm"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ErrNoCredential is returned by speech factories when the entry carries no
// API key. Callers treat it as "not configured" rather than fatal.
var ErrNoCredential = errors.New("config: provider credential not set")

// factories is a name-keyed set of constructors for one provider kind.
type factories[P any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]func(ProviderEntry) (P, error)
}

func newFactories[P any](kind string) *factories[P] {
	return &factories[P]{kind: kind, m: make(map[string]func(ProviderEntry) (P, error))}
}

func (f *factories[P]) register(name string, fn func(ProviderEntry) (P, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = fn
}

func (f *factories[P]) create(entry ProviderEntry) (P, error) {
	f.mu.RLock()
	fn, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q (have %s)", ErrProviderNotRegistered, f.kind, entry.Name, strings.Join(f.names(), ", "))
	}
	return fn(entry)
}

func (f *factories[P]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.m))
}

// Registry resolves the provider names used in config files to
// constructors. The gateway registers speech providers; the live assistant
// registers classifier models. Safe for concurrent use.
type Registry struct {
	llm *factories[llm.Provider]
	tts *factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: newFactories[llm.Provider]("llm"), tts: newFactories[tts.Provider]("tts")}
}

// RegisterLLM registers a classifier model factory. A later registration
// under the same name replaces the earlier one.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterTTS registers a speech provider factory.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// CreateLLM builds the model named by entry.Name. Unknown names yield
// [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.create(entry) }

// CreateTTS builds the speech provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.create(entry) }

// LLMNames lists the registered classifier backends, sorted.
func (r *Registry) LLMNames() []string { return r.llm.names() }

// TTSNames lists the registered speech providers, sorted.
func (r *Registry) TTSNames() []string { return r.tts.names() }

// CreateSpeech builds the speech provider for entry and, when it also
// implements [tts.TokenIssuer], the token issuer. A missing credential
// yields nil values and no error so the gateway can start unconfigured.
func (r *Registry) CreateSpeech(entry ProviderEntry) (tts.Provider, tts.TokenIssuer, error) {
	p, err := r.CreateTTS(entry)
	if errors.Is(err, ErrNoCredential) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	issuer, _ := p.(tts.TokenIssuer)
	return p, issuer, nil
}
