package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Deps is what a factory receives when a client is resolved.
type Deps struct {
	// Secret is the stored credential, empty when the provider needs none.
	Secret string
	// BaseURL is the endpoint resolved for this call.
	BaseURL string
}

// STTFactory builds an STT client.
type STTFactory func(Deps) (STT, error)

// LLMFactory builds an LLM client.
type LLMFactory func(Deps) (LLM, error)

// Spec describes a registration.
type Spec struct {
	// Secret names the credential to look up; empty means none is needed.
	Secret string
	// BaseURL, when set, is called on every resolution so endpoint settings
	// apply to the next session without re-registering.
	BaseURL func() string
}

// Info describes a registered provider.
type Info struct {
	ID              string `json:"id"`
	NeedsCredential bool   `json:"needs_credential"`
	Secret          string `json:"secret,omitempty"`
}

// SecretSource looks up stored credentials.
type SecretSource interface {
	Get(name string) (string, bool, error)
}

type sttEntry struct {
	spec    Spec
	factory STTFactory
}

type llmEntry struct {
	spec    Spec
	factory LLMFactory
}

// Registry maps provider ids to factories.
type Registry struct {
	secrets SecretSource
	backoff time.Duration

	mu  sync.RWMutex
	stt map[string]sttEntry
	llm map[string]llmEntry
}

// NewRegistry creates an empty Registry. backoff is the pause before the
// single retry of a transient failure.
func NewRegistry(secrets SecretSource, backoff time.Duration) *Registry {
	return &Registry{
		secrets: secrets,
		backoff: backoff,
		stt:     make(map[string]sttEntry),
		llm:     make(map[string]llmEntry),
	}
}

// RegisterSTT adds or replaces an STT provider.
func (r *Registry) RegisterSTT(id string, spec Spec, f STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[id] = sttEntry{spec: spec, factory: f}
}

// RegisterLLM adds or replaces an LLM provider.
func (r *Registry) RegisterLLM(id string, spec Spec, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[id] = llmEntry{spec: spec, factory: f}
}

// STT resolves id to a client whose Transcribe retries transient failures once.
func (r *Registry) STT(id string) (STT, error) {
	r.mu.RLock()
	e, ok := r.stt[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stt provider %q: %w", id, ErrUnknownProvider)
	}

	deps, err := r.deps(id, e.spec)
	if err != nil {
		return nil, err
	}
	client, err := e.factory(deps)
	if err != nil {
		return nil, fmt.Errorf("stt provider %q: %w", id, err)
	}
	return &retrySTT{id: id, inner: client, backoff: r.backoff}, nil
}

// LLM resolves id to a client whose Complete retries transient failures once.
func (r *Registry) LLM(id string) (LLM, error) {
	r.mu.RLock()
	e, ok := r.llm[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm provider %q: %w", id, ErrUnknownProvider)
	}

	deps, err := r.deps(id, e.spec)
	if err != nil {
		return nil, err
	}
	client, err := e.factory(deps)
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", id, err)
	}
	return &retryLLM{id: id, inner: client, backoff: r.backoff}, nil
}

// STTProviders lists the registered STT providers sorted by id.
func (r *Registry) STTProviders() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.stt))
	for id, e := range r.stt {
		out = append(out, Info{ID: id, NeedsCredential: e.spec.Secret != "", Secret: e.spec.Secret})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LLMProviders lists the registered LLM providers sorted by id.
func (r *Registry) LLMProviders() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.llm))
	for id, e := range r.llm {
		out = append(out, Info{ID: id, NeedsCredential: e.spec.Secret != "", Secret: e.spec.Secret})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) deps(id string, spec Spec) (Deps, error) {
	var d Deps
	if spec.BaseURL != nil {
		d.BaseURL = spec.BaseURL()
	}
	if spec.Secret == "" {
		return d, nil
	}
	if r.secrets == nil {
		return d, fmt.Errorf("provider %q: %w", id, ErrCredentialMissing)
	}

	secret, ok, err := r.secrets.Get(spec.Secret)
	if err != nil {
		return d, fmt.Errorf("provider %q: read credential: %w", id, err)
	}
	if !ok || secret == "" {
		return d, fmt.Errorf("provider %q: %w", id, ErrCredentialMissing)
	}
	d.Secret = secret
	return d, nil
}
