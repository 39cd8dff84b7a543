// pkg/registry/schema.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"shopping-agent/internal/servers"
)

// Catalog is the JSON export of every server and tool, kept under configs/.
type Catalog struct {
	Version     string          `json:"version"`
	LastUpdated string          `json:"lastUpdated"`
	Servers     []CatalogServer `json:"servers"`
}

type CatalogServer struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tools       []servers.Tool `json:"tools"`
}

// Catalog snapshots the registry in registration order.
func (r *Registry) Catalog(version string) *Catalog {
	c := &Catalog{
		Version:     version,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	for _, name := range r.order {
		s := r.servers[name]
		c.Servers = append(c.Servers, CatalogServer{
			Name:        name,
			Description: s.Description(),
			Tools:       s.ListTools(),
		})
	}
	return c
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return &c, nil
}

func SaveCatalog(c *Catalog, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}

// Validate checks for missing fields and tool names exposed by more than one server.
func (c *Catalog) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("catalog contains no servers")
	}

	seenServers := make(map[string]bool)
	seenTools := make(map[string]string)
	for _, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server missing required field: name")
		}
		if seenServers[s.Name] {
			return fmt.Errorf("duplicate server name: %s", s.Name)
		}
		seenServers[s.Name] = true

		for _, t := range s.Tools {
			if t.Name == "" {
				return fmt.Errorf("server %s has a tool missing required field: name", s.Name)
			}
			if t.Description == "" {
				return fmt.Errorf("tool %s missing required field: description", t.Name)
			}
			if owner, dup := seenTools[t.Name]; dup {
				return fmt.Errorf("tool %s exposed by both %s and %s", t.Name, owner, s.Name)
			}
			seenTools[t.Name] = s.Name
		}
	}
	return nil
}

// ToolCount is the number of tools across all servers.
func (c *Catalog) ToolCount() int {
	n := 0
	for _, s := range c.Servers {
		n += len(s.Tools)
	}
	return n
}

// Diff lists tools present in current but not in c (added) and the reverse
// (removed), as server/tool pairs.
func (c *Catalog) Diff(current *Catalog) (added, removed []string) {
	saved := c.toolSet()
	now := current.toolSet()
	for key := range now {
		if !saved[key] {
			added = append(added, key)
		}
	}
	for key := range saved {
		if !now[key] {
			removed = append(removed, key)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func (c *Catalog) toolSet() map[string]bool {
	set := make(map[string]bool)
	for _, s := range c.Servers {
		for _, t := range s.Tools {
			set[s.Name+"/"+t.Name] = true
		}
	}
	return set
}
