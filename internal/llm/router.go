package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Router is a Client that picks a provider per model. Models without a
// route go to the default provider.
type Router struct {
	def       string
	providers map[string]Client
	routes    map[string]string
}

// NewRouter returns an empty Router whose unrouted models go to the
// provider registered as def.
func NewRouter(def string) *Router {
	return &Router{def: def, providers: map[string]Client{}, routes: map[string]string{}}
}

// Register makes c available under name.
func (r *Router) Register(name string, c Client) { r.providers[name] = c }

// Route sends model to provider.
func (r *Router) Route(model, provider string) { r.routes[model] = provider }

// ProviderFor names the provider Chat would use for model.
func (r *Router) ProviderFor(model string) string {
	if p, ok := r.routes[model]; ok {
		return p
	}
	return r.def
}

func (r *Router) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	name := r.ProviderFor(model)
	c, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("model %q: provider %q not configured", model, name)
	}
	return c.Chat(ctx, model, messages, tools)
}

// Ping checks every registered provider.
func (r *Router) Ping(ctx context.Context) error {
	if len(r.providers) == 0 {
		return errors.New("no chat provider configured")
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := r.providers[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
