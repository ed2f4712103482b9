// Package search backs the web_search tool. Providers are registered on
// a [Manager] in preference order; a query goes to the primary provider
// and falls through to the others when it fails.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrNoProvider is returned by a Manager with nothing registered.
var ErrNoProvider = errors.New("no web search provider configured")

// ErrMissingKey is returned by keyed providers built without a key.
var ErrMissingKey = errors.New("api key not configured")

// Result is one hit as handed to the model.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Options tune a single query.
type Options struct {
	// Count caps the number of results. Zero means DefaultCount.
	Count int
	// Language is an ISO 639-1 code passed through to providers that
	// understand it.
	Language string
}

func (o Options) count() int {
	if o.Count <= 0 {
		return DefaultCount
	}
	return o.Count
}

// Provider is one search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes queries across registered providers.
type Manager struct {
	primary   string
	providers []Provider
}

// NewManager returns a Manager that tries the provider named primary
// before any other.
func NewManager(primary string) *Manager {
	return &Manager{primary: primary}
}

// Register appends p. A provider with the same name is replaced in
// place.
func (m *Manager) Register(p Provider) {
	if i := slices.IndexFunc(m.providers, func(q Provider) bool { return q.Name() == p.Name() }); i >= 0 {
		m.providers[i] = p
		return
	}
	m.providers = append(m.providers, p)
}

// Configured reports whether any provider is registered.
func (m *Manager) Configured() bool { return len(m.providers) > 0 }

// Providers lists provider names in the order Search tries them.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.order() {
		names = append(names, p.Name())
	}
	return names
}

func (m *Manager) order() []Provider {
	out := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		if p.Name() == m.primary {
			out = append(out, p)
		}
	}
	for _, p := range m.providers {
		if p.Name() != m.primary {
			out = append(out, p)
		}
	}
	return out
}

// Search returns the first successful provider's results, truncated to
// opts.Count. When every provider fails the errors are joined.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if len(m.providers) == 0 {
		return nil, ErrNoProvider
	}
	var errs []error
	for _, p := range m.order() {
		results, err := p.Search(ctx, query, opts)
		if err == nil {
			if n := opts.count(); len(results) > n {
				results = results[:n]
			}
			return results, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
