// pkg/registry/registry.go
package registry

import (
	"sort"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/servers"
)

// Registry maps server names to the tool sub-servers.
type Registry struct {
	order   []string
	servers map[string]servers.Server
}

func New(srvs ...servers.Server) *Registry {
	r := &Registry{servers: make(map[string]servers.Server, len(srvs))}
	for _, s := range srvs {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a server under its own name.
func (r *Registry) Register(s servers.Server) {
	if _, exists := r.servers[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.servers[s.Name()] = s
}

// Get returns the named server or an UNKNOWN_SERVER error listing what is available.
func (r *Registry) Get(name string) (servers.Server, error) {
	s, ok := r.servers[name]
	if !ok {
		return nil, apperrors.NewUnknownServerError(name).WithMetadata("available", r.Names())
	}
	return s, nil
}

// Names lists the registered servers in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// ListAll returns every server's tools keyed by server name.
func (r *Registry) ListAll() map[string][]servers.Tool {
	out := make(map[string][]servers.Tool, len(r.servers))
	for name, s := range r.servers {
		out[name] = s.ListTools()
	}
	return out
}

// ToolOwner finds the server exposing a tool name.
func (r *Registry) ToolOwner(tool string) (string, bool) {
	names := r.Names()
	sort.Strings(names)
	for _, name := range names {
		for _, t := range r.servers[name].ListTools() {
			if t.Name == tool {
				return name, true
			}
		}
	}
	return "", false
}
