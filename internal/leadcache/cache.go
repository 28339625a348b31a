// Package leadcache holds fetched lead lists per category for the lifetime of
// a session.
package leadcache

import (
	"sync"

	"github.com/shanehull/prospector/internal/model"
)

type Cache interface {
	Get(categoryID string) ([]model.Lead, bool)
	Put(categoryID string, leads []model.Lead)
	Has(categoryID string) bool
}

// Memory never evicts. An empty, non-nil entry is a valid cached value.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]model.Lead
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string][]model.Lead)}
}

func (c *Memory) Get(categoryID string) ([]model.Lead, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	leads, ok := c.m[categoryID]
	return leads, ok
}

func (c *Memory) Put(categoryID string, leads []model.Lead) {
	if leads == nil {
		leads = []model.Lead{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[categoryID] = leads
}

func (c *Memory) Has(categoryID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.m[categoryID]
	return ok
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
