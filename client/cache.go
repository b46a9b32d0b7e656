package client

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"fmgo/schema"
)

// layoutCache is the process-wide layout-by-name cache. GetOrPopulate
// is atomic: under concurrent access a layout's metadata is populated
// at most once and every caller sees the same instance.
type layoutCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *schema.Layout]
}

func newLayoutCache(size int) (*layoutCache, error) {
	cache, err := lru.New[string, *schema.Layout](size)
	if err != nil {
		return nil, err
	}
	return &layoutCache{lru: cache}, nil
}

func (c *layoutCache) GetOrPopulate(name string, populate func() (*schema.Layout, error)) (*schema.Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if layout, ok := c.lru.Get(name); ok {
		return layout, nil
	}
	layout, err := populate()
	if err != nil {
		return nil, err
	}
	c.lru.Add(name, layout)
	return layout, nil
}

func (c *layoutCache) Get(name string) (*schema.Layout, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(name)
}

func (c *layoutCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
