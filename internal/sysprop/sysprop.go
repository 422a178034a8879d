// Package sysprop holds process-level properties: name/value pairs set on
// the command line with -D or programmatically at startup. They take
// precedence over environment variables when resolving master keys and
// ${sys:NAME} placeholders.
package sysprop

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Properties is a concurrency-safe name to value table.
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty property table.
func New() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Get returns the value for name and whether it was set.
func (p *Properties) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[name]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (p *Properties) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
}

// Delete removes name from the table.
func (p *Properties) Delete(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, name)
}

// Names returns the property names in sorted order.
func (p *Properties) Names() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.values))
	for name := range p.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseAssignments parses "name=value" pairs as given to -D. The value may
// be empty; the name may not.
func (p *Properties) ParseAssignments(pairs []string) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid property %q: expected name=value", pair)
		}
		p.Set(name, value)
	}
	return nil
}
