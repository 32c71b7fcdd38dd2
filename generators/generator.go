package generators

import (
	"context"
	"encoding/json"
)

// Generator turns a service configuration into one or more artifact files
// written below workDir. It returns the artifact file names relative to
// workDir. Implementations must not write outside workDir.
type Generator interface {
	Generate(ctx context.Context, cfg json.RawMessage, workDir string) ([]string, error)
}

// Registry maps a service type to its Generator. It is static configuration
// assembled at startup, not a plugin system; unknown types are a hard error
// at the call site.
type Registry struct {
	generators map[string]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

func (r *Registry) Register(serviceType string, g Generator) {
	r.generators[serviceType] = g
}

func (r *Registry) Resolve(serviceType string) (Generator, bool) {
	g, ok := r.generators[serviceType]
	return g, ok
}

// ServiceTypes returns the registered type names, for status endpoints.
func (r *Registry) ServiceTypes() []string {
	types := make([]string, 0, len(r.generators))
	for t := range r.generators {
		types = append(types, t)
	}
	return types
}
