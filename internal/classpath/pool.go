// Package classpath holds decoded classes by internal name and answers
// lookups that follow the superclass chain.
package classpath

import (
	"fmt"
	"sort"
	"sync"

	"github.com/standardbeagle/bcq/internal/types"
)

// Pool is a concurrency-safe set of decoded classes keyed by internal name
type Pool struct {
	mu      sync.RWMutex
	classes map[string]*types.Class
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{classes: make(map[string]*types.Class)}
}

// Add stores c, replacing any class with the same name. It reports whether
// a class was replaced.
func (p *Pool) Add(c *types.Class) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, replaced := p.classes[c.Name]
	p.classes[c.Name] = c
	return replaced
}

// Remove drops the class named name and reports whether it was present
func (p *Pool) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.classes[name]
	delete(p.classes, name)
	return ok
}

// Class returns the class named name
func (p *Pool) Class(name string) (*types.Class, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.classes[name]
	return c, ok
}

// Len is the number of classes
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.classes)
}

// Names returns the class names in sorted order
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.classes))
	for name := range p.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classes returns every class ordered by name
func (p *Pool) Classes() []*types.Class {
	names := p.Names()
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*types.Class, 0, len(names))
	for _, name := range names {
		if c, ok := p.classes[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns every method of every class, classes in name order
func (p *Pool) Methods() []*types.Method {
	var out []*types.Method
	for _, c := range p.Classes() {
		out = append(out, c.Methods...)
	}
	return out
}

// FindMethod returns the method declared by owner with exactly name and desc
func (p *Pool) FindMethod(owner, name, desc string) (*types.Method, error) {
	c, ok := p.Class(owner)
	if !ok {
		return nil, fmt.Errorf("class %q not found", owner)
	}
	m := c.Method(name, desc)
	if m == nil {
		return nil, fmt.Errorf("method %s%s not found in %s", name, desc, owner)
	}
	return m, nil
}

// Supers returns owner followed by each superclass present in the pool,
// stopping at the first one that is missing. Cycles end the chain.
func (p *Pool) Supers(owner string) []*types.Class {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var chain []*types.Class
	seen := make(map[string]bool)
	for name := owner; name != "" && !seen[name]; {
		c, ok := p.classes[name]
		if !ok {
			break
		}
		seen[name] = true
		chain = append(chain, c)
		name = c.SuperName
	}
	return chain
}

// FindMethodTree returns every declaration of name and desc along the
// superclass chain of owner, most derived first
func (p *Pool) FindMethodTree(owner, name, desc string) []*types.Method {
	var out []*types.Method
	for _, c := range p.Supers(owner) {
		if m := c.Method(name, desc); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// FindFieldTree returns the "<owner>.<name>" keys of every declaration of
// the field along the superclass chain of owner, most derived first. An
// empty desc matches any field type.
func (p *Pool) FindFieldTree(owner, name, desc string) []string {
	var out []string
	for _, c := range p.Supers(owner) {
		if f := c.Field(name, desc); f != nil {
			out = append(out, f.Key())
		}
	}
	return out
}

// SuperMethods returns the declarations m overrides in its superclasses
func (p *Pool) SuperMethods(m *types.Method) []*types.Method {
	tree := p.FindMethodTree(m.Owner, m.Name, m.Desc)
	out := make([]*types.Method, 0, len(tree))
	for _, decl := range tree {
		if decl.Owner != m.Owner {
			out = append(out, decl)
		}
	}
	return out
}
