package modhost

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog maps entry-point names to module factories. Module packages on
// disk name the entry point they want; the loader resolves it here instead
// of inspecting loaded code for implementing types.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under entry. Entry names must be unique.
func (c *Catalog) Register(entry string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: factory for %s is nil", ErrFactoryReturnedNil, entry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[entry]; exists {
		return fmt.Errorf("%w: %s", ErrEntryPointExists, entry)
	}
	c.factories[entry] = factory
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (c *Catalog) MustRegister(entry string, factory Factory) {
	if err := c.Register(entry, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under entry.
func (c *Catalog) Lookup(entry string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[entry]
	return f, ok
}

// Names returns all entry points in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
