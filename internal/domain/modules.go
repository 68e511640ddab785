package domain

import (
	"sort"
	"strings"
)

// DefaultEndpoints maps module names to API paths.
var DefaultEndpoints = map[string]string{
	"members":      "members",
	"employees":    "hr/employees",
	"transactions": "finance/transactions",
	"welfare":      "welfare",
	"inventory":    "inventory",
	"events":       "events",
	"appointments": "appointments",
}

// ModuleRegistry resolves module names to endpoint paths.
type ModuleRegistry struct {
	endpoints map[string]string
}

// NewModuleRegistry starts from DefaultEndpoints and applies extra on top.
// An empty value in extra removes the module.
func NewModuleRegistry(extra map[string]string) *ModuleRegistry {
	endpoints := make(map[string]string, len(DefaultEndpoints)+len(extra))
	for m, e := range DefaultEndpoints {
		endpoints[m] = e
	}
	for m, e := range extra {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		e = strings.Trim(strings.TrimSpace(e), "/")
		if e == "" {
			delete(endpoints, m)
			continue
		}
		endpoints[m] = e
	}
	return &ModuleRegistry{endpoints: endpoints}
}

// Endpoint returns the path for module or ErrUnknownModule.
func (r *ModuleRegistry) Endpoint(module string) (string, error) {
	if e, ok := r.endpoints[module]; ok {
		return e, nil
	}
	return "", ErrUnknownModule
}

// Modules returns the known module names, sorted.
func (r *ModuleRegistry) Modules() []string {
	names := make([]string, 0, len(r.endpoints))
	for m := range r.endpoints {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}
