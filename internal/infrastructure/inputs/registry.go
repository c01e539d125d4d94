package inputs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// GlobalRegistry is where input packages register their factory in init().
var GlobalRegistry = NewRegistry()

// Registry holds registered input factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for an input type.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Name()] = factory
}

// Create validates cfg and builds a MessageInput for the given type.
func (r *Registry) Create(name string, cfg Config, handler BatchHandler) (MessageInput, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown input type: %s", name)
	}
	if err := validateConfig(factory, cfg); err != nil {
		return nil, err
	}
	return factory.Create(cfg, handler)
}

// ValidateConfig checks required fields and runs the factory's optional
// ValidateConfig. Unknown types are reported as an error.
func (r *Registry) ValidateConfig(typeName string, cfg Config) error {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown input type: %s", typeName)
	}
	return validateConfig(factory, cfg)
}

func validateConfig(factory Factory, cfg Config) error {
	if missing := factory.ConfigSpec().Missing(cfg); len(missing) > 0 {
		return fmt.Errorf("%s input: missing %s", factory.Name(), strings.Join(missing, ", "))
	}
	if v, ok := factory.(interface{ ValidateConfig(Config) error }); ok {
		return v.ValidateConfig(cfg)
	}
	return nil
}

// ListRegistered returns all registered input type names, sorted.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTypeInfo returns the config fields for the given input type. ok is false if the type is not registered.
func (r *Registry) GetTypeInfo(name string) (info InputTypeInfo, ok bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return InputTypeInfo{}, false
	}
	return factory.ConfigSpec(), true
}

// AllTypesInfo returns config specs for all registered input types, sorted by type.
func (r *Registry) AllTypesInfo() []InputTypeInfo {
	r.mu.RLock()
	out := make([]InputTypeInfo, 0, len(r.factories))
	for _, factory := range r.factories {
		out = append(out, factory.ConfigSpec())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// StartAll creates and starts one input per spec. HTTP endpoint inputs with a
// non-empty Path are handed to mount. On error the inputs already started
// are stopped.
func (r *Registry) StartAll(ctx context.Context, specs []InputSpec, handler BatchHandler, mount func(path string, h http.Handler)) ([]MessageInput, error) {
	started := make([]MessageInput, 0, len(specs))
	for _, spec := range specs {
		input, err := r.Create(spec.Type, spec.ConfigWithName(), handler)
		if err == nil {
			err = input.Start(ctx)
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("input %q: %w", spec.Name, err), StopAll(started))
		}
		started = append(started, input)
		if ep, ok := input.(HTTPEndpointInput); ok && ep.Path() != "" && mount != nil {
			mount(ep.Path(), ep.Handler())
		}
	}
	return started, nil
}

// StopAll stops every input and joins their errors.
func StopAll(running []MessageInput) error {
	var errs []error
	for _, in := range running {
		if err := in.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
