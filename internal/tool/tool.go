// Package tool defines the tools a model may call during a turn and the
// providers that resolve them.
package tool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Tool is a named function the model can invoke.
type Tool struct {
	Name        string
	Description string
	// InputSchema is a JSON schema object describing the arguments.
	InputSchema map[string]any
	// Execute runs the tool with the raw JSON arguments produced by the model.
	Execute func(ctx context.Context, input []byte) (string, error)
}

// Set maps tool names to tools.
type Set map[string]Tool

// Names returns the tool names in stable order.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Provider resolves the tools available right now.
type Provider interface {
	Tools(ctx context.Context) (Set, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Set, error)

// Tools implements Provider.
func (f ProviderFunc) Tools(ctx context.Context) (Set, error) {
	return f(ctx)
}

// Static returns a provider that always resolves to set.
func Static(set Set) Provider {
	return ProviderFunc(func(context.Context) (Set, error) {
		return set, nil
	})
}

// Merge returns a provider that resolves every provider concurrently and
// unions the results. When two providers expose the same name, the one listed
// first wins. Any provider failure fails the whole resolution.
func Merge(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (Set, error) {
		var mu sync.Mutex
		var wg errgroup.Group
		sets := make([]Set, len(providers))
		for i, p := range providers {
			if p == nil {
				continue
			}
			wg.Go(func() error {
				set, err := p.Tools(ctx)
				if err != nil {
					return err
				}
				mu.Lock()
				sets[i] = set
				mu.Unlock()
				return nil
			})
		}
		if err := wg.Wait(); err != nil {
			return nil, fmt.Errorf("resolve tools: %w", err)
		}

		result := Set{}
		for _, set := range sets {
			for name, t := range set {
				if _, exists := result[name]; exists {
					continue
				}
				result[name] = t
			}
		}
		return result, nil
	})
}
