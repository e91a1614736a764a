package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/jo-hoe/podify/internal/podcast"
)

// Client is a text-generation backend.
type Client interface {
	Name() string
	// Ready reports missing credentials without making a request.
	Ready() error
	// Complete returns the model's reply to a system and user prompt pair.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Registry holds initialized clients by provider name.
type Registry struct {
	byName map[string]Client
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Client)}
}

func (r *Registry) Add(c Client) {
	r.byName[c.Name()] = c
}

func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the client for provider or a ConfigurationError when it is
// unknown or missing credentials.
func (r *Registry) Resolve(provider podcast.LLMProvider) (Client, error) {
	c, ok := r.Get(string(provider))
	if !ok {
		return nil, &podcast.ConfigurationError{Op: "llm", Err: fmt.Errorf("provider %q not configured", provider)}
	}
	if err := c.Ready(); err != nil {
		return nil, &podcast.ConfigurationError{Op: "llm " + c.Name(), Err: err}
	}
	return c, nil
}
