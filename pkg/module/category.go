package module

import (
	"errors"
	"sync"
)

// Category is an ordered group of modules sharing a category id.
type Category struct {
	id    string
	owner Owner

	mu      sync.RWMutex
	members []Module
}

func newCategory(id string, owner Owner) *Category {
	return &Category{id: id, owner: owner}
}

func (c *Category) ID() string { return c.id }

// Modules returns the members in insertion order.
func (c *Category) Modules() []Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Module(nil), c.members...)
}

func (c *Category) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// ReloadAll reloads every reloadable member, in order.
func (c *Category) ReloadAll() error {
	var errs []error
	for _, m := range c.Modules() {
		if !m.Meta().Reloadable() {
			continue
		}
		if err := c.owner.ReloadModule(m.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAll removes every reloadable member, in order.
func (c *Category) RemoveAll() error {
	var errs []error
	for _, m := range c.Modules() {
		if !m.Meta().Reloadable() {
			continue
		}
		if err := c.owner.RemoveModule(m.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Category) add(m Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, x := range c.members {
		if x.ID() == m.ID() {
			return
		}
	}
	c.members = append(c.members, m)
}

func (c *Category) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.members {
		if x.ID() == id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return
		}
	}
}
