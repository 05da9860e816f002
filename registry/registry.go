package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ncecere/textgen-sdk/provider"
)

// Registry is a simple registry of named completion models.
//
// It maps identifiers (for example, "tgi:local" or
// "hf:mistralai/Mistral-Nemo-Base-2407") to configured models so that
// application code can look models up by name without depending on a
// specific transport.
type Registry interface {
	// CompletionModel returns the registered completion model for the given name.
	// If no such model exists, a *NoSuchModelError is returned.
	CompletionModel(name string) (provider.CompletionModel, error)

	// RegisterCompletionModel registers or replaces a completion model under the given name.
	// Passing a nil model removes any existing registration for that name.
	RegisterCompletionModel(name string, model provider.CompletionModel)

	// Names returns the registered names in sorted order.
	Names() []string
}

// NoSuchModelError indicates that a requested model name was not
// found in the registry.
type NoSuchModelError struct {
	// Name is the model name that was requested.
	Name string
	// Kind is the optional kind of model, such as "completion".
	Kind string
}

func (e *NoSuchModelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Kind == "" {
		return fmt.Sprintf("registry: no such model %q", e.Name)
	}
	return fmt.Sprintf("registry: no such %s model %q", e.Kind, e.Name)
}

// InMemoryRegistry is a concurrency-safe in-memory implementation of Registry.
// It is suitable for typical application startup wiring where models are
// registered once and then used throughout the lifetime of the process.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	models map[string]provider.CompletionModel
}

// Ensure InMemoryRegistry implements Registry.
var _ Registry = (*InMemoryRegistry)(nil)

// NewInMemoryRegistry creates a new empty in-memory registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		models: make(map[string]provider.CompletionModel),
	}
}

// CompletionModel implements Registry.CompletionModel.
func (r *InMemoryRegistry) CompletionModel(name string) (provider.CompletionModel, error) {
	r.mu.RLock()
	model, ok := r.models[name]
	r.mu.RUnlock()
	if !ok || model == nil {
		return nil, &NoSuchModelError{Name: name, Kind: "completion"}
	}
	return model, nil
}

// RegisterCompletionModel implements Registry.RegisterCompletionModel.
func (r *InMemoryRegistry) RegisterCompletionModel(name string, model provider.CompletionModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model == nil {
		delete(r.models, name)
		return
	}
	r.models[name] = model
}

// Names implements Registry.Names.
func (r *InMemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
