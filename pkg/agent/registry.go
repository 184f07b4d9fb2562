package agent

import (
	"fmt"

	"github.com/deskstep/deskstep/pkg/types"
)

type Factory func(ctx types.ExecutionContext) (Agent, error)

// registry stores each provider type's factory function. GetAgent calls
// the appropriate factory to yield a new instance for one episode.
var registry = map[string]Factory{}

// RegisterFactory is called in each implementation's init() function to
// register its factory with the registry.
func RegisterFactory(providerType string, factory Factory) {
	registry[providerType] = factory
}

// GetAgent returns a fresh Agent for the provider type named in the
// execution context.
func GetAgent(ctx types.ExecutionContext) (Agent, error) {
	factory, ok := registry[ctx.Provider.Type]
	if !ok {
		return nil, fmt.Errorf("no agent registered for provider type: %s", ctx.Provider.Type)
	}
	return factory(ctx)
}
