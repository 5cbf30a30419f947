package llmprovider

import "fmt"

// Registry is a name -> Factory mapping used to build a Provider for a
// configured model at startup.
type Registry struct {
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a Factory.
func (r *Registry) Register(f Factory) {
	if _, exists := r.factories[f.Name()]; !exists {
		r.order = append(r.order, f.Name())
	}
	r.factories[f.Name()] = f
}

// Create builds a Provider from the named factory.
func (r *Registry) Create(providerName, model string, opts GenOptions) (Provider, error) {
	f, ok := r.factories[providerName]
	if !ok {
		return nil, fmt.Errorf("llmprovider: no factory registered for %q", providerName)
	}
	return f.Create(model, opts), nil
}

// Names returns the registered factory names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
