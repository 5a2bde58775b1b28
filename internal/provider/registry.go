package provider

import (
	"github.com/finbridge/banklink/internal/domain"
)

// Registry is a static map from provider identifier to adapter, resolved once
// at startup. No runtime registration and no reflection-based dispatch.
type Registry struct {
	providers map[string]Provider
	primary   string
}

func NewRegistry(primary string, providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m, primary: primary}
}

// Get resolves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewUnknownProviderError(name)
	}
	return p, nil
}

// Primary returns the name of the preferred default provider.
func (r *Registry) Primary() string {
	return r.primary
}

// Names returns all registered provider names, primary first.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	if _, ok := r.providers[r.primary]; ok {
		names = append(names, r.primary)
	}
	for name := range r.providers {
		if name != r.primary {
			names = append(names, name)
		}
	}
	return names
}
